package security

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// CodeHasher wraps bcrypt hashing and verification of verification codes so
// that only hashes are stored.
type CodeHasher struct {
	cost int
}

func NewCodeHasher(cost int) *CodeHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &CodeHasher{cost: cost}
}

func (h *CodeHasher) Hash(code string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(code), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Matches reports whether code matches hashed. Only a mismatch yields false
// with a nil error; a malformed hash is returned as an error.
func (h *CodeHasher) Matches(code, hashed string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(code))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, err
}
