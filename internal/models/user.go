package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID             int64           `json:"id"`
	Username       string          `json:"username"`
	Email          string          `json:"email"`
	PasswordHash   string          `json:"-"`
	Role           UserRole        `json:"role"`
	Status         UserStatus      `json:"status"`
	ParentID       *int64          `json:"parent_id,omitempty"`
	CreditBalance  decimal.Decimal `json:"credit_balance"`
	QuotaBalance   int64           `json:"quota_balance"`
	TodayPurchased int64           `json:"today_purchased"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

type UserRole string

const (
	RoleSuperadmin UserRole = "superadmin"
	RoleAgent      UserRole = "agent"
	RoleChild      UserRole = "child"
)

func (r UserRole) Valid() bool {
	switch r {
	case RoleSuperadmin, RoleAgent, RoleChild:
		return true
	}
	return false
}

type UserStatus string

const (
	StatusPending  UserStatus = "pending"
	StatusActive   UserStatus = "active"
	StatusDisabled UserStatus = "disabled"
)

type RegisterRequest struct {
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Password string   `json:"password"`
	Role     UserRole `json:"role"`
	ParentID *int64   `json:"parent_id,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type AuthResponse struct {
	User         *User  `json:"user"`
	Token        string `json:"token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}
