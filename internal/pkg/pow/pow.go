/*
Package pow implements the proof-of-work gate in front of guest account creation.

A client fetches a nonce, searches for a counter whose SHA-256(nonce+counter) hex digest starts
with the configured number of zeros, and exchanges the proof for a short-lived, single-use token.
*/
package pow

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// TokenHeaderKey is the header carrying a proof token.
	TokenHeaderKey = "X-PoW-Token"

	// ProofTokenDuration is how long an issued proof token can be redeemed.
	ProofTokenDuration = 30 * time.Second

	// NonceExpiryDuration is how long a challenge nonce can be solved.
	NonceExpiryDuration = 5 * time.Minute
)

var (
	ErrNonceInvalid = errors.New("nonce expired or invalid")
	ErrProofInvalid = errors.New("proof does not meet difficulty requirement")
)

// Challenge is handed to clients by the challenge endpoint.
type Challenge struct {
	Nonce      string    `json:"nonce"`
	Difficulty int       `json:"difficulty"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Manager issues challenges and tracks outstanding nonces and proof tokens. Safe for concurrent use.
type Manager struct {
	difficulty int

	mu     sync.Mutex
	nonces map[string]time.Time
	tokens map[string]time.Time

	now       func() time.Time
	done      chan struct{}
	closeOnce sync.Once
}

// NewManager creates a Manager for the given difficulty and starts its expiry sweeper.
func NewManager(difficulty int) *Manager {
	m := &Manager{
		difficulty: difficulty,
		nonces:     make(map[string]time.Time),
		tokens:     make(map[string]time.Time),
		now:        time.Now,
		done:       make(chan struct{}),
	}

	go m.sweep()

	return m
}

// Difficulty reports the number of leading hex zeros a proof must have.
func (m *Manager) Difficulty() int {
	return m.difficulty
}

// Issue creates and records a new challenge.
func (m *Manager) Issue() Challenge {
	m.mu.Lock()
	defer m.mu.Unlock()

	nonce := uuid.NewString()
	expiresAt := m.now().Add(NonceExpiryDuration)
	m.nonces[nonce] = expiresAt

	return Challenge{Nonce: nonce, Difficulty: m.difficulty, ExpiresAt: expiresAt}
}

// Verify checks counter against nonce. On success the nonce is consumed and a proof token is returned.
func (m *Manager) Verify(nonce, counter string) (string, error) {
	if !Satisfies(nonce, counter, m.difficulty) {
		return "", ErrProofInvalid
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	expiresAt, ok := m.nonces[nonce]
	if !ok || m.now().After(expiresAt) {
		return "", ErrNonceInvalid
	}
	delete(m.nonces, nonce)

	token := uuid.NewString()
	m.tokens[token] = m.now().Add(ProofTokenDuration)

	return token, nil
}

// Redeem consumes the proof token carried by r (header or pow_token query parameter).
// Each token can be redeemed once.
func (m *Manager) Redeem(r *http.Request) bool {
	token := r.Header.Get(TokenHeaderKey)
	if token == "" {
		token = r.URL.Query().Get("pow_token")
	}
	if token == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	expiresAt, ok := m.tokens[token]
	if !ok {
		return false
	}
	delete(m.tokens, token)

	return !m.now().After(expiresAt)
}

// Close stops the expiry sweeper.
func (m *Manager) Close() {
	m.closeOnce.Do(func() { close(m.done) })
}

func (m *Manager) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.mu.Lock()
			now := m.now()
			for nonce, expiresAt := range m.nonces {
				if now.After(expiresAt) {
					delete(m.nonces, nonce)
				}
			}
			for token, expiresAt := range m.tokens {
				if now.After(expiresAt) {
					delete(m.tokens, token)
				}
			}
			m.mu.Unlock()
		}
	}
}

// Satisfies reports whether SHA-256(nonce+counter) has difficulty leading hex zeros.
func Satisfies(nonce, counter string, difficulty int) bool {
	hash := sha256.Sum256([]byte(nonce + counter))
	return strings.HasPrefix(hex.EncodeToString(hash[:]), strings.Repeat("0", difficulty))
}

// Solve brute-forces a counter for nonce. It is what clients run; difficulty above 6 gets slow.
func Solve(nonce string, difficulty int) string {
	for i := 0; ; i++ {
		counter := strconv.Itoa(i)
		if Satisfies(nonce, counter, difficulty) {
			return counter
		}
	}
}
