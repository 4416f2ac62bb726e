package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is the account type. Buyers and sellers have step lists; brokers and
// agents only work the checklist and listings.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleSeller Role = "seller"
	RoleBroker Role = "broker"
	RoleAgent  Role = "agent"
)

// Valid reports whether role is a known account type.
func (r Role) Valid() bool {
	switch r {
	case RoleBuyer, RoleSeller, RoleBroker, RoleAgent:
		return true
	default:
		return false
	}
}

// User mirrors the users table. It carries no JSON tags so handlers decide
// what to expose.
type User struct {
	ID           string
	Email        string
	FullName     string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RegisterRequest contains user registration data supplied by callers.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
	Role     Role   `json:"role"`
}

// LoginRequest contains user login credentials.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Claims is the session carried in the bearer token. Name is used for
// checklist attribution.
type Claims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Role   Role   `json:"role"`
	jwt.RegisteredClaims
}
