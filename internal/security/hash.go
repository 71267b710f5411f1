package security

import (
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

const (
	// DefaultCost matches the work factor of existing stored hashes.
	DefaultCost = 10
	// MaxSecretBytes is the longest input bcrypt accepts.
	MaxSecretBytes = 72
)

var (
	ErrEmptySecret   = errors.New("secret must not be empty")
	ErrSecretTooLong = errors.New("secret exceeds 72 bytes")
)

// BcryptHasher hashes and verifies passwords and PINs.
type BcryptHasher struct {
	cost int

	dummyOnce sync.Once
	dummyHash []byte
}

func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash returns a salted bcrypt hash of secret.
func (h *BcryptHasher) Hash(secret string) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	if len(secret) > MaxSecretBytes {
		return "", ErrSecretTooLong
	}
	out, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Compare reports whether secret matches hash. A mismatch is not an error; a
// malformed hash is.
func (h *BcryptHasher) Compare(hash, secret string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), truncateSecret(secret))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, err
}

// CompareDummy spends one comparison against a throwaway hash so that requests
// for unknown accounts take as long as requests with a wrong secret.
func (h *BcryptHasher) CompareDummy(secret string) {
	h.dummyOnce.Do(func() {
		h.dummyHash, _ = bcrypt.GenerateFromPassword([]byte("biz-compass-dummy-credential"), h.cost)
	})
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, truncateSecret(secret))
}

// truncateSecret keeps the bytes bcrypt actually hashes. Hashes written by
// tooling that silently truncated long secrets still verify.
func truncateSecret(secret string) []byte {
	if len(secret) > MaxSecretBytes {
		return []byte(secret[:MaxSecretBytes])
	}
	return []byte(secret)
}
