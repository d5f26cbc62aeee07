package directory

// PersonKeyNav is the navigation property holding person-level identifiers.
const PersonKeyNav = "personKeyNav"

// Project renders an entity in the human vocabulary. Every vocabulary field
// is present in the result; values missing on the entity (and on its
// personKeyNav expansion, when present) are nil.
func Project(e Entity) map[string]any {
	nav, _ := e.Nested(PersonKeyNav)
	out := make(map[string]any, len(fieldTable))
	for _, f := range fieldTable {
		out[f.Name] = lookupValue(e, nav, f)
	}
	return out
}

// ProjectFields is Project restricted to names (any casing). Names outside
// the vocabulary are ignored. An empty names list returns every field.
func ProjectFields(e Entity, names []string) map[string]any {
	all := Project(e)
	if len(names) == 0 {
		return all
	}
	out := make(map[string]any, len(names))
	for _, n := range names {
		name := CanonicalName(n)
		if v, ok := all[name]; ok {
			out[name] = v
		}
	}
	return out
}

func lookupValue(e, nav Entity, f Field) any {
	for _, src := range []Entity{e, nav} {
		if src == nil {
			continue
		}
		if v, ok := src[f.Property]; ok && v != nil {
			return v
		}
		if v, ok := src[f.Name]; ok && v != nil {
			return v
		}
	}
	return nil
}

// SnapshotOf extracts the required-field snapshot from an entity.
func SnapshotOf(e Entity) Snapshot {
	s := make(Snapshot)
	for _, f := range fieldTable {
		if !f.Required {
			continue
		}
		if v := e.String(f.Property); v != "" {
			s[f.Name] = v
		}
	}
	return s
}

// RequiredProperties returns the OData properties to $select when reading a
// snapshot, including the key.
func RequiredProperties() []string {
	userID, _ := Property(FieldUserID)
	props := []string{userID}
	for _, f := range fieldTable {
		if f.Required {
			props = append(props, f.Property)
		}
	}
	return props
}
