package models

// Identity is who a session belongs to. It is what the session token carries,
// what the session endpoint returns and what clients cache. It never holds the
// password hash.
type Identity struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Name  string   `json:"name,omitempty"`
	Role  UserRole `json:"role"`
}

// IsZero reports whether the identity is empty
func (i Identity) IsZero() bool {
	return i.ID == ""
}

// HasRole reports whether the identity carries the given role. Admins pass
// every role check.
func (i Identity) HasRole(role UserRole) bool {
	return i.Role == role || i.Role == RoleAdmin
}
