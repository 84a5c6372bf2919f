package jwt

import "github.com/golang-jwt/jwt"

// User types carried in Payload.UserType.
const (
	UserTypeGuest      = "guest"
	UserTypeRegistered = "registered"
)

// Payload is the claim set of a QuickChat identity token.
type Payload struct {
	jwt.StandardClaims `json:"standard_claims"`

	// ID is the user id the token was issued to.
	ID string `json:"id"`

	// UserType distinguishes guest accounts from password accounts.
	UserType string `json:"user_type"`
}
