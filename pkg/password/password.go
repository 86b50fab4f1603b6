package password

import (
	"context"

	"golang.org/x/crypto/bcrypt"
)

// MinLength is the minimum accepted password length.
const MinLength = 6

// Hasher wraps bcrypt with a bound on concurrent hashing so CPU-heavy
// key derivation cannot starve request handling under load.
type Hasher struct {
	sem chan struct{}
}

// NewHasher builds a Hasher allowing at most workers concurrent hashes.
func NewHasher(workers int) *Hasher {
	if workers <= 0 {
		workers = 4
	}
	return &Hasher{sem: make(chan struct{}, workers)}
}

// Hash derives a bcrypt hash for the password. It blocks while all hashing
// slots are busy and honours context cancellation while waiting.
func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	select {
	case h.sem <- struct{}{}:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	defer func() { <-h.sem }()

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// InFlight reports how many hash computations currently hold a slot.
func (h *Hasher) InFlight() int {
	return len(h.sem)
}

// Verify reports whether the password matches the stored hash.
func (h *Hasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
