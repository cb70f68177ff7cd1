package domain

// Scope selects the audience of an API call: an end-user or staff.
type Scope string

const (
	ScopeUser  Scope = "user"
	ScopeAdmin Scope = "admin"
)

// SenderType maps the acting scope to the message sender type.
func (s Scope) SenderType() SenderType {
	if s == ScopeAdmin {
		return SenderTypeAdmin
	}
	return SenderTypeUser
}

// Role is carried in identity tokens.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Identity is the verified caller of the service.
type Identity struct {
	Subject string
	Email   string
	Name    string
	Role    Role
}

// Scope returns the audience derived from the role.
func (i Identity) Scope() Scope {
	if i.Role == RoleAdmin {
		return ScopeAdmin
	}
	return ScopeUser
}
