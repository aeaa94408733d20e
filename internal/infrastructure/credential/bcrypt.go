// Package credential hashes account secrets with bcrypt.
package credential

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// ErrMismatch is returned when a secret does not match its hash.
var ErrMismatch = errors.New("credential: secret does not match")

// Hasher hashes secrets at a fixed bcrypt cost.
type Hasher struct {
	cost int
}

// NewHasher returns a hasher. A cost outside bcrypt's range uses the default.
func NewHasher(cost int) Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return Hasher{cost: cost}
}

// Cost returns the bcrypt cost in use.
func (h Hasher) Cost() int { return h.cost }

// Hash returns the bcrypt hash of secret.
func (h Hasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("credential: empty secret")
	}
	out, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", fmt.Errorf("credential: hash: %w", err)
	}
	return string(out), nil
}

// Verify checks secret against a hash produced by Hash.
func (h Hasher) Verify(hash, secret string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return err
}
