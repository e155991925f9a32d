package auth

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// DefaultBcryptCost is the work factor used when none is configured.
const DefaultBcryptCost = 10

// bcrypt only looks at the first 72 bytes of its input.
const maxPasswordBytes = 72

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces a salted one-way hash of the password.
	Hash(ctx context.Context, password string) (string, error)

	// Verify checks if the password matches the hash.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid hash.
	Verify(ctx context.Context, password, hash string) (bool, error)
}

// BcryptHasher implements PasswordHasher using bcrypt. At most `workers`
// hashes run at the same time; callers beyond that wait for a slot.
type BcryptHasher struct {
	cost    int
	sem     *semaphore.Weighted
	observe func(time.Duration)
}

// NewBcryptHasher creates a BcryptHasher. An out-of-range cost falls back to
// DefaultBcryptCost and workers <= 0 means one slot per CPU.
func NewBcryptHasher(cost, workers int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultBcryptCost
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &BcryptHasher{
		cost:    cost,
		sem:     semaphore.NewWeighted(int64(workers)),
		observe: func(time.Duration) {},
	}
}

// ObserveWith registers a callback receiving the duration of every bcrypt call.
func (h *BcryptHasher) ObserveWith(fn func(time.Duration)) *BcryptHasher {
	if fn != nil {
		h.observe = fn
	}
	return h
}

// Hash produces a bcrypt hash of the password.
func (h *BcryptHasher) Hash(ctx context.Context, password string) (string, error) {
	if password == "" {
		return "", oops.Code(CodeMissingFields).Errorf("password cannot be empty")
	}
	if len(password) > maxPasswordBytes {
		return "", oops.Code(CodePasswordTooLong).
			With("max", maxPasswordBytes).
			Errorf("password must be at most %d bytes", maxPasswordBytes)
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", oops.Code(CodeHashFailed).With("operation", "acquire").Wrap(err)
	}
	defer h.sem.Release(1)

	start := time.Now()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	h.observe(time.Since(start))
	if err != nil {
		return "", oops.Code(CodeHashFailed).With("operation", "generate").Wrap(err)
	}
	return string(hash), nil
}

// Verify checks if the password matches the hash.
func (h *BcryptHasher) Verify(ctx context.Context, password, hash string) (bool, error) {
	// Such a password could never have been hashed.
	if len(password) > maxPasswordBytes {
		return false, nil
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, oops.Code(CodeHashFailed).With("operation", "acquire").Wrap(err)
	}
	defer h.sem.Release(1)

	start := time.Now()
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	h.observe(time.Since(start))

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, oops.Code(CodeHashInvalid).Wrap(err)
	}
}
