/*
Package randx generates cryptographically random identifiers for guest accounts.
*/
package randx

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	// upperAlphabet is used for the human-facing guest suffix.
	upperAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

	// lowerAlphabet is used for the synthetic guest email local part.
	lowerAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

	// GuestSuffixLength is the number of characters after "Guest ".
	GuestSuffixLength = 4

	// GuestEmailRandomLength is the number of random characters in a guest email.
	GuestEmailRandomLength = 6

	// GuestEmailDomain is the reserved domain for guest accounts; it never receives mail.
	GuestEmailDomain = "quickchat.local"
)

// String returns n characters drawn uniformly from alphabet using crypto/rand.
func String(alphabet string, n int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	result := make([]byte, n)

	for i := range n {
		num, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate random index: %w", err)
		}
		result[i] = alphabet[num.Int64()]
	}

	return string(result), nil
}

// GuestDisplayName returns a name like "Guest 7QX2".
func GuestDisplayName() (string, error) {
	suffix, err := String(upperAlphabet, GuestSuffixLength)
	if err != nil {
		return "", err
	}
	return "Guest " + suffix, nil
}

// GuestEmail returns a unique-enough placeholder address like "guest_k3x9q1@quickchat.local".
func GuestEmail() (string, error) {
	local, err := String(lowerAlphabet, GuestEmailRandomLength)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("guest_%s@%s", local, GuestEmailDomain), nil
}
