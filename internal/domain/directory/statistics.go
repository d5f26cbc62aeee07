package directory

import "strings"

// unknownBucket collects entities missing the grouped property.
const unknownBucket = "Unknown"

// Statistics summarizes a population of person entities.
type Statistics struct {
	TotalUsers    int
	ActiveUsers   int
	InactiveUsers int
	ByStatus      map[string]int
	ByGender      map[string]int
	ByDepartment  map[string]int
	ByLocation    map[string]int
	// FilteredBy holds the per-filter counts set by ApplyFilters.
	FilteredBy map[string]int
}

// activeStatuses are the status values counted as active.
var activeStatuses = map[string]bool{"A": true, "Active": true, "t": true}

// ComputeStatistics aggregates env. TotalUsers uses the inline count when the
// directory reported one.
func ComputeStatistics(env *Envelope) *Statistics {
	s := &Statistics{
		TotalUsers:   env.Count,
		ByStatus:     make(map[string]int),
		ByGender:     make(map[string]int),
		ByDepartment: make(map[string]int),
		ByLocation:   make(map[string]int),
	}
	if s.TotalUsers < len(env.Results) {
		s.TotalUsers = len(env.Results)
	}

	for _, e := range env.Results {
		status := bucket(e, "STATUS")
		s.ByStatus[status]++
		if activeStatuses[status] {
			s.ActiveUsers++
		} else {
			s.InactiveUsers++
		}
		s.ByGender[bucket(e, "GENDER")]++
		s.ByDepartment[bucket(e, "DEPARTMENT")]++
		s.ByLocation[bucket(e, "LOCATION")]++
	}
	return s
}

// ApplyFilters records, for each filter key naming one of the groupings
// (status, gender, department, location), how many users carry the given
// value. Keys that name no grouping are ignored.
func (s *Statistics) ApplyFilters(filters map[string]string) {
	for key, value := range filters {
		group := s.group(key)
		if group == nil {
			continue
		}
		if s.FilteredBy == nil {
			s.FilteredBy = make(map[string]int)
		}
		s.FilteredBy[key] = group[value]
	}
}

func (s *Statistics) group(key string) map[string]int {
	switch strings.ToLower(key) {
	case "status":
		return s.ByStatus
	case "gender":
		return s.ByGender
	case "department":
		return s.ByDepartment
	case "location":
		return s.ByLocation
	default:
		return nil
	}
}

// AsMap flattens the statistics into the tool response shape, adding a
// filtered_by_<key> entry per applied filter.
func (s *Statistics) AsMap() map[string]any {
	out := map[string]any{
		"totalUsers":    s.TotalUsers,
		"activeUsers":   s.ActiveUsers,
		"inactiveUsers": s.InactiveUsers,
		"byStatus":      s.ByStatus,
		"byGender":      s.ByGender,
		"byDepartment":  s.ByDepartment,
		"byLocation":    s.ByLocation,
	}
	for key, n := range s.FilteredBy {
		out["filtered_by_"+key] = n
	}
	return out
}

func bucket(e Entity, name string) string {
	f := fieldsByName[name]
	v := e.String(f.Property)
	if v == "" {
		v = e.String(f.Name)
	}
	if strings.TrimSpace(v) == "" {
		return unknownBucket
	}
	return v
}
