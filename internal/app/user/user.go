/*
Package user defines the public shape of a chat participant and the rules for editing it.
*/
package user

import (
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	// MaxDisplayNameLength bounds display names, in runes.
	MaxDisplayNameLength = 50

	// MaxBioLength bounds profile bios, in runes.
	MaxBioLength = 280

	// MinPasswordLength and MaxPasswordLength bound passwords, in runes.
	MinPasswordLength = 6
	MaxPasswordLength = 72

	// DefaultBio is given to every new account.
	DefaultBio = "Hi Everyone, I am using QuickChat"

	// AvatarKeyPrefix prefixes uploaded avatar object keys: avatars/<userID>/<file>.
	AvatarKeyPrefix = "avatars/"
)

// PresetAvatarKeys are the built-in avatars a client can render without object storage.
var PresetAvatarKeys = map[string]struct{}{
	"profile_martin":  {},
	"profile_alison":  {},
	"profile_enrique": {},
	"profile_marco":   {},
	"profile_richard": {},
}

// User is a chat participant as exposed to clients.
type User struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"displayName"`
	AvatarKey   string    `json:"avatarKey,omitempty"`
	Bio         string    `json:"bio,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NormalizeDisplayName trims name and reports whether the result is acceptable.
func NormalizeDisplayName(name string) (string, bool) {
	trimmed := strings.TrimSpace(name)
	n := utf8.RuneCountInString(trimmed)
	return trimmed, n > 0 && n <= MaxDisplayNameLength
}

// NormalizeEmail lower-cases and validates an email address.
func NormalizeEmail(email string) (string, bool) {
	trimmed := strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed {
		return "", false
	}
	return trimmed, true
}

// ValidPassword reports whether password has an acceptable length.
func ValidPassword(password string) bool {
	n := utf8.RuneCountInString(password)
	return n >= MinPasswordLength && n <= MaxPasswordLength
}

// AvatarKeyAllowed reports whether userID may point its profile at key.
// The empty key clears the avatar.
func AvatarKeyAllowed(userID, key string) bool {
	if key == "" {
		return true
	}
	if _, ok := PresetAvatarKeys[key]; ok {
		return true
	}
	ownPrefix := AvatarKeyPrefix + userID + "/"
	return strings.HasPrefix(key, ownPrefix) && len(key) > len(ownPrefix) && !strings.Contains(key, "..")
}
