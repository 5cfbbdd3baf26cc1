package model

// Role participant role inside a room
type Role string

const (
	RoleStudent Role = "student"
	RoleTutor   Role = "tutor"
	RoleOwner   Role = "owner"
)

func (r Role) String() string {
	return string(r)
}

// Cursor pointer position on the shared canvas
type Cursor struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Presence is the ephemeral per-connection record. It is replaced
// wholesale on every update, never merged field by field, and it is
// keyed by the opaque connection id, so a reconnect under a new
// connection starts from a blank record.
type Presence struct {
	ConnectionID string  `json:"connectionId"`
	DisplayName  string  `json:"displayName"`
	AvatarRef    string  `json:"avatarRef,omitempty"`
	Role         Role    `json:"role"`
	Cursor       *Cursor `json:"cursor,omitempty"`
	IsActing     bool    `json:"isActing"`
}
