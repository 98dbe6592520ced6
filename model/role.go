package model

// Role determines which protocol messages a participant may author.
type Role string

const (
	// RoleArbiter approves or denies requests and owns the authoritative registry.
	RoleArbiter Role = "arbiter"
	// RoleRequester must obtain approval before moving a token.
	RoleRequester Role = "requester"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleArbiter || r == RoleRequester
}

// Participant identifies a session member.
type Participant struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	Role Role   `json:"role" yaml:"role"`
}

// IsArbiter reports whether the participant holds arbitration authority.
func (p Participant) IsArbiter() bool { return p.Role == RoleArbiter }
