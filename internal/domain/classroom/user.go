package classroom

import "time"

type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
)

func (r Role) Valid() bool { return r == RoleStudent || r == RoleTeacher }

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	AvatarURL string    `json:"avatar_url"`
	LastSeen  time.Time `json:"last_seen"`
	CreatedAt time.Time `json:"created_at"`
}

type UserPatch struct {
	ID        string     `json:"id"`
	Name      *string    `json:"name,omitempty"`
	Email     *string    `json:"email,omitempty"`
	Role      *Role      `json:"role,omitempty"`
	AvatarURL *string    `json:"avatar_url,omitempty"`
	LastSeen  *time.Time `json:"last_seen,omitempty"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

func (p UserPatch) RecordID() string { return p.ID }

// Apply merges the present fields over u. The role of an existing profile is
// never changed from the client side.
func (p UserPatch) Apply(u User) User {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Role != nil && u.Role == "" {
		u.Role = *p.Role
	}
	if p.AvatarURL != nil {
		u.AvatarURL = *p.AvatarURL
	}
	if p.LastSeen != nil {
		u.LastSeen = *p.LastSeen
	}
	if p.CreatedAt != nil {
		u.CreatedAt = *p.CreatedAt
	}
	return u
}

func (p UserPatch) New() User { return p.Apply(User{ID: p.ID}) }
