package models

type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleTeacher UserRole = "teacher"
	RoleProctor UserRole = "proctor"
	RoleAdmin   UserRole = "admin"
)

var UserRoles = []UserRole{RoleStudent, RoleTeacher, RoleProctor, RoleAdmin}

func (r UserRole) IsValid() bool {
	for _, role := range UserRoles {
		if r == role {
			return true
		}
	}
	return false
}

// CanReview reports whether the role may read any session, grade answers
// and abandon sessions.
func (r UserRole) CanReview() bool {
	return r == RoleTeacher || r == RoleProctor || r == RoleAdmin
}

// Caller is the authenticated identity behind a request.
type Caller struct {
	ID   string   `json:"id"`
	Name string   `json:"name,omitempty"`
	Role UserRole `json:"role"`
}
