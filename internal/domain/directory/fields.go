package directory

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Field is one entry of the closed field vocabulary. Name is the human
// spelling callers use (always upper-case); Property is the OData property
// name the directory expects on the wire.
type Field struct {
	Name         string `yaml:"name"`
	Property     string `yaml:"property"`
	Required     bool   `yaml:"required,omitempty"`
	Relationship bool   `yaml:"relationship,omitempty"`
	// Sentinel is the link target that means "explicitly unassigned".
	// Only set for relationship fields.
	Sentinel string `yaml:"sentinel,omitempty"`
}

// Well-known human field names referenced by the resolver and tools.
const (
	FieldUserID   = "USERID"
	FieldUsername = "USERNAME"
	FieldStatus   = "STATUS"
	FieldEmail    = "EMAIL"
	FieldEmpID    = "EMPID"
	FieldManager  = "MANAGER"
	FieldHR       = "HR"
)

// Unassign sentinels for the relationship fields.
const (
	NoManager = "NO_MANAGER"
	NoHR      = "NO_HR"
)

var fieldTable = []Field{
	{Name: "STATUS", Property: "status", Required: true},
	{Name: "USERID", Property: "userId"},
	{Name: "USERNAME", Property: "username", Required: true},
	{Name: "FIRSTNAME", Property: "firstName"},
	{Name: "LASTNAME", Property: "lastName"},
	{Name: "MI", Property: "mi"},
	{Name: "GENDER", Property: "gender"},
	{Name: "EMAIL", Property: "email"},
	{Name: "MANAGER", Property: "manager", Relationship: true, Sentinel: NoManager},
	{Name: "HR", Property: "hr", Relationship: true, Sentinel: NoHR},
	{Name: "DEPARTMENT", Property: "department"},
	{Name: "JOBCODE", Property: "jobCode"},
	{Name: "DIVISION", Property: "division"},
	{Name: "LOCATION", Property: "location"},
	{Name: "TIMEZONE", Property: "timeZone"},
	{Name: "HIREDATE", Property: "hireDate"},
	{Name: "EMPID", Property: "empId"},
	{Name: "TITLE", Property: "title"},
	{Name: "BIZ_PHONE", Property: "bizPhone"},
	{Name: "FAX", Property: "fax"},
	{Name: "ADDR1", Property: "addr1"},
	{Name: "ADDR2", Property: "addr2"},
	{Name: "CITY", Property: "city"},
	{Name: "STATE", Property: "state"},
	{Name: "ZIP", Property: "zip"},
	{Name: "COUNTRY", Property: "country"},
	{Name: "REVIEW_FREQ", Property: "reviewFreq"},
	{Name: "LAST_REVIEW_DATE", Property: "lastReviewDate"},
	{Name: "CUSTOM01", Property: "custom01"},
	{Name: "CUSTOM02", Property: "custom02"},
	{Name: "CUSTOM03", Property: "custom03"},
	{Name: "CUSTOM04", Property: "custom04"},
	{Name: "CUSTOM05", Property: "custom05"},
	{Name: "CUSTOM06", Property: "custom06"},
	{Name: "CUSTOM07", Property: "custom07"},
	{Name: "CUSTOM08", Property: "custom08"},
	{Name: "CUSTOM09", Property: "custom09"},
	{Name: "CUSTOM10", Property: "custom10"},
	{Name: "CUSTOM11", Property: "custom11"},
	{Name: "CUSTOM12", Property: "custom12"},
	{Name: "CUSTOM13", Property: "custom13"},
	{Name: "CUSTOM14", Property: "custom14"},
	{Name: "CUSTOM15", Property: "custom15"},
	{Name: "MATRIX_MANAGER", Property: "matrixManager"},
	{Name: "DEFAULT_LOCALE", Property: "defaultLocale"},
	{Name: "PROXY", Property: "proxy"},
	{Name: "CUSTOM_MANAGER", Property: "customManager"},
	{Name: "SECOND_MANAGER", Property: "secondManager"},
	{Name: "LOGIN_METHOD", Property: "loginMethod"},
	{Name: "PERSON_GUID", Property: "personGuid"},
	{Name: "PERSON_ID_EXTERNAL", Property: "personIdExternal"},
}

var (
	fieldsByName     map[string]Field
	fieldsByProperty map[string]Field
)

func init() {
	fieldsByName = make(map[string]Field, len(fieldTable))
	fieldsByProperty = make(map[string]Field, len(fieldTable))
	for _, f := range fieldTable {
		fieldsByName[f.Name] = f
		fieldsByProperty[f.Property] = f
	}
}

// Fields returns a copy of the vocabulary in table order.
func Fields() []Field {
	out := make([]Field, len(fieldTable))
	copy(out, fieldTable)
	return out
}

// FieldNames returns the human names of the vocabulary in table order.
func FieldNames() []string {
	names := make([]string, len(fieldTable))
	for i, f := range fieldTable {
		names[i] = f.Name
	}
	return names
}

// RequiredFields returns the human names every write payload must carry.
func RequiredFields() []string {
	var names []string
	for _, f := range fieldTable {
		if f.Required {
			names = append(names, f.Name)
		}
	}
	return names
}

// LookupField finds a vocabulary entry by human name, ignoring case.
func LookupField(name string) (Field, bool) {
	f, ok := fieldsByName[CanonicalName(name)]
	return f, ok
}

// LookupProperty finds a vocabulary entry by its exact OData property name.
func LookupProperty(property string) (Field, bool) {
	f, ok := fieldsByProperty[property]
	return f, ok
}

// Property translates a human field name to its OData property name.
func Property(name string) (string, bool) {
	f, ok := LookupField(name)
	return f.Property, ok
}

// Matches reports whether an argument key names f: the human name in any
// case, the OData property, or the <property>Id argument form. Surrounding
// whitespace is ignored, as it is when changes are normalized.
func (f Field) Matches(key string) bool {
	key = strings.TrimSpace(key)
	return strings.ToUpper(key) == f.Name ||
		strings.EqualFold(key, f.Property) ||
		strings.EqualFold(key, f.Property+"Id")
}

// LinkTarget returns the key a relationship value points at. Nil, blank
// strings and the exact sentinel spelling all mean unassigned and yield the
// sentinel. Numbers and booleans are formatted; objects and lists are
// rejected.
func LinkTarget(f Field, value any) (string, error) {
	var target string
	switch v := value.(type) {
	case nil:
	case string:
		target = strings.TrimSpace(v)
	case float64, bool, json.Number:
		target = Entity{"v": v}.String("v")
	case int, int64:
		target = fmt.Sprint(v)
	default:
		return "", &InvalidFieldValueError{
			Field:  f.Name,
			Reason: fmt.Sprintf("expected a user key, got %T", value),
		}
	}
	if target == "" {
		return f.Sentinel, nil
	}
	return target, nil
}

// CanonicalName is the comparison form of a human field name.
func CanonicalName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
