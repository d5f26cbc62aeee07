// Package auth holds the caller identities and API-key verification used by
// the HTTP transport and the tool-call policy.
package auth

// Role names an access level that policy rules can test for.
type Role string

const (
	// RoleAdmin may call every tool.
	RoleAdmin Role = "admin"
	// RoleWriter may read and update employee records.
	RoleWriter Role = "writer"
	// RoleReader may only call read tools.
	RoleReader Role = "reader"
)

// IsValid returns true if the role is a known valid role.
func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleWriter, RoleReader:
		return true
	default:
		return false
	}
}

// Identity is an authenticated caller.
type Identity struct {
	ID    string
	Name  string
	Roles []Role
}

// HasRole returns true if the identity has the specified role.
func (i *Identity) HasRole(role Role) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// RoleNames returns the roles as plain strings for policy evaluation.
func (i *Identity) RoleNames() []string {
	out := make([]string, len(i.Roles))
	for n, r := range i.Roles {
		out[n] = string(r)
	}
	return out
}

// LocalIdentity is the caller attached to stdio sessions, where the process
// owner is the only possible client.
func LocalIdentity() *Identity {
	return &Identity{ID: "local", Name: "Local stdio client", Roles: []Role{RoleAdmin}}
}

// APIKey binds a stored key hash to an identity.
type APIKey struct {
	// Hash is an Argon2id PHC string or "sha256:<hex>".
	Hash       string
	IdentityID string
}
