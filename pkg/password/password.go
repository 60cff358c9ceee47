// Package password hashes and verifies user passwords with bcrypt.
package password

import (
	"errors"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	MinLength = 6
	// MinCost is the lowest bcrypt work factor accepted.
	MinCost = 10
	// bcrypt ignores everything past 72 bytes.
	maxBytes = 72
)

var (
	ErrTooShort = errors.New("password must be at least 6 characters")
	ErrTooLong  = errors.New("password must be at most 72 bytes")
)

func Validate(pw string) error {
	if utf8.RuneCountInString(pw) < MinLength {
		return ErrTooShort
	}
	if len(pw) > maxBytes {
		return ErrTooLong
	}
	return nil
}

type Hasher struct {
	cost int
}

func NewHasher(cost int) *Hasher {
	if cost < MinCost {
		cost = MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{cost: cost}
}

func (h *Hasher) Cost() int { return h.cost }

func (h *Hasher) Hash(pw string) (string, error) {
	if err := Validate(pw); err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), h.cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Verify reports whether pw matches hash. Malformed hashes never match.
func (h *Hasher) Verify(pw, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}
