package directory

import "strings"

// Eq renders an OData equality predicate with the literal quoted. Embedded
// single quotes are doubled as OData v2 requires.
func Eq(property, value string) string {
	return property + " eq '" + strings.ReplaceAll(value, "'", "''") + "'"
}

// Or joins predicates with the OData "or" operator.
func Or(predicates ...string) string {
	return strings.Join(predicates, " or ")
}

// And joins predicates with the OData "and" operator.
func And(predicates ...string) string {
	return strings.Join(predicates, " and ")
}

// EntityURI renders the entity pointer used in __metadata and link references.
func EntityURI(entitySet string, key CanonicalKey) string {
	return entitySet + "('" + strings.ReplaceAll(string(key), "'", "''") + "')"
}
