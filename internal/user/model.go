package user

import (
	"time"
)

// Role is the closed set of roles a user can hold. The service stores the
// label but does not enforce permissions on it.
type Role string

const (
	RoleIntaker         Role = "Intaker"
	RoleCaseManager     Role = "Case_Manager"
	RoleClinicalAdvisor Role = "Clinical_Advisor"
	RoleProjectManager  Role = "Project_Manager"
	RoleFAudit          Role = "F_Audit"
	RoleCounselor       Role = "Counselor"
)

// DefaultRole is assigned at signup.
const DefaultRole = RoleIntaker

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleIntaker, RoleCaseManager, RoleClinicalAdvisor,
		RoleProjectManager, RoleFAudit, RoleCounselor:
		return true
	}
	return false
}

// LoginRecord is one entry of a user's append-only login history.
type LoginRecord struct {
	LoginAt   time.Time `json:"login_at"`
	IPAddress string    `json:"ip_address"`
}

// User is the identity record.
//
// ID is the stable internal identifier; UserID is the externally facing one,
// generated at creation and never reused. PasswordHash is always an encoded
// argon2id hash, never plaintext.
type User struct {
	ID           int64  `json:"id"`
	UserID       string `json:"user_id"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"` // Never expose password hash in JSON
	Role         Role   `json:"role"`
	Online       bool   `json:"online"`

	LoginHistory []LoginRecord `json:"login_history"`

	ResetPasswordToken   *string    `json:"-"`
	ResetPasswordExpires *time.Time `json:"-"`

	Avatar  *string `json:"avatar,omitempty"`
	Bio     *string `json:"bio,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Address *string `json:"address,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
