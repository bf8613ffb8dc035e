package database

import (
	"time"

	"github.com/uptrace/bun"
)

// LoginRecord is one entry of the append-only login history, stored as an
// element of the users.login_history jsonb array.
type LoginRecord struct {
	LoginAt   time.Time `json:"login_at"`
	IPAddress string    `json:"ip_address"`
}

// User is the row model for the users table.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID           int64  `bun:"id,pk,autoincrement"`
	UserID       string `bun:"user_id,notnull,unique"`
	Username     string `bun:"username,notnull,unique"`
	Email        string `bun:"email,notnull,unique"`
	PasswordHash string `bun:"password_hash,notnull"`
	Role         string `bun:"role,notnull,default:'Intaker'"`
	Online       bool   `bun:"online,notnull,default:false"`

	// Append-only; grows without bound by design.
	LoginHistory []LoginRecord `bun:"login_history,type:jsonb,notnull,default:'[]'"`

	// Present only while a password reset is outstanding.
	ResetPasswordToken   *string    `bun:"reset_password_token"`
	ResetPasswordExpires *time.Time `bun:"reset_password_expires"`

	Avatar  *string `bun:"avatar"`
	Bio     *string `bun:"bio"`
	Phone   *string `bun:"phone"`
	Address *string `bun:"address"`

	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}
