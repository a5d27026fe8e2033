package models

import "github.com/golang-jwt/jwt/v5"

// Claims is the JWT payload for access and refresh tokens.
type Claims struct {
	UserID    int64    `json:"user_id"`
	Email     string   `json:"email,omitempty"`
	Role      UserRole `json:"role,omitempty"`
	TokenType string   `json:"token_type"`
	jwt.RegisteredClaims
}
