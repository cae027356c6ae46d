package services

import (
	"taskify/backend/internal/apperror"

	"golang.org/x/crypto/bcrypt"
)

// CredentialHasher hashes passwords and session fingerprints.
type CredentialHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
}

type BcryptHasher struct {
	cost int
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", apperror.Input("cannot hash an empty value")
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Verify reports false for empty input and malformed digests instead of
// returning an error, so callers cannot tell a broken digest from a mismatch.
func (h *BcryptHasher) Verify(plaintext, digest string) bool {
	if plaintext == "" || digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
