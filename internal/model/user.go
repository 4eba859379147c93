package model

import "time"

// Role is the fixed set of staff roles.  Roles are stored as lower case
// strings in users.role.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSupervisor Role = "supervisor"
	RoleStandard   Role = "standard"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleSupervisor, RoleStandard:
		return true
	}
	return false
}

// User represents a staff account as stored in the `users` table.
// Users are provisioned out-of-band and never hard-deleted; IsActive is
// cleared instead.
//
// Fields:
//
//	ID           – primary key identifier of the user.
//	Username     – unique login name.
//	PasswordHash – bcrypt hashed password.
//	Role         – admin, supervisor or standard.
//	IsActive     – whether the account may log in.
//	LastLoginAt  – last successful login (null before the first one).
//	CreatedAt    – timestamp of creation.
//	UpdatedAt    – timestamp of last update.
type User struct {
	ID           uint64     // users.id
	Username     string     // users.username
	PasswordHash string     // users.password_hash
	Role         Role       // users.role
	IsActive     bool       // users.is_active
	LastLoginAt  *time.Time // users.last_login_at (nullable)
	CreatedAt    time.Time  // users.created_at
	UpdatedAt    time.Time  // users.updated_at
}

// RefreshCredential models an entry in the `refresh_tokens` table.  Each
// record belongs to one user; a live record (not revoked, not expired) is
// what the rest of the code calls a session.  The token itself is never
// stored, only its SHA‑256 hash.
type RefreshCredential struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
	CreatedAt time.Time  // refresh_tokens.created_at
}

// Live reports whether the credential is usable at the given instant.
func (c RefreshCredential) Live(now time.Time) bool {
	return c.RevokedAt == nil && now.Before(c.ExpiresAt)
}
