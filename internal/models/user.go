package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleAdmin    UserRole = "ADMIN"
	RoleAuditor  UserRole = "AUDITOR"
	RoleOperator UserRole = "OPERATOR"
)

// User represents an application user stored in the users table.
// Password hashes never reach audit details (audit:"-").
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-" audit:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty" audit:"-"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at" audit:"-"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at" audit:"-"`
}

// TableName names the backing table for the tracker.
func (User) TableName() string { return "users" }
