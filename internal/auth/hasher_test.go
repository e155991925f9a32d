package auth_test

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"studentauth/internal/auth"
)

func TestBcryptHasher_HashAndVerify(t *testing.T) {
	ctx := context.Background()
	h := auth.NewBcryptHasher(bcrypt.MinCost, 2)

	hash, err := h.Hash(ctx, "pw123")
	require.NoError(t, err)
	assert.NotEqual(t, "pw123", hash)

	ok, err := h.Verify(ctx, "pw123", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify(ctx, "wrong", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBcryptHasher_SaltsEveryHash(t *testing.T) {
	ctx := context.Background()
	h := auth.NewBcryptHasher(bcrypt.MinCost, 1)

	a, err := h.Hash(ctx, "same-password")
	require.NoError(t, err)
	b, err := h.Hash(ctx, "same-password")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestBcryptHasher_DefaultCost(t *testing.T) {
	h := auth.NewBcryptHasher(0, 0)

	hash, err := h.Hash(context.Background(), "pw123")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hash))
	require.NoError(t, err)
	assert.Equal(t, auth.DefaultBcryptCost, cost)
}

func TestBcryptHasher_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	h := auth.NewBcryptHasher(bcrypt.MinCost, 1)

	_, err := h.Hash(ctx, "")
	require.Error(t, err)
	assert.Equal(t, auth.CodeMissingFields, auth.Code(err))

	long := strings.Repeat("x", 73)
	_, err = h.Hash(ctx, long)
	require.Error(t, err)
	assert.Equal(t, auth.CodePasswordTooLong, auth.Code(err))
	assert.Equal(t, auth.KindValidation, auth.KindOf(err))

	ok, err := h.Verify(ctx, long, "$2a$04$abcdefghijklmnopqrstuu")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBcryptHasher_InvalidHash(t *testing.T) {
	h := auth.NewBcryptHasher(bcrypt.MinCost, 1)

	ok, err := h.Verify(context.Background(), "pw123", "not-a-bcrypt-hash")
	require.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, auth.CodeHashInvalid, auth.Code(err))
	assert.Equal(t, auth.KindDependency, auth.KindOf(err))
}

func TestBcryptHasher_HonoursContextWhilePoolIsBusy(t *testing.T) {
	h := auth.NewBcryptHasher(bcrypt.MinCost, 1)

	// Hold the only slot by blocking inside the observer.
	release := make(chan struct{})
	entered := make(chan struct{})
	var once atomic.Bool
	h.ObserveWith(func(time.Duration) {
		if once.CompareAndSwap(false, true) {
			close(entered)
			<-release
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.Hash(context.Background(), "first")
	}()
	<-entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.Hash(ctx, "second")
	require.Error(t, err)
	assert.Equal(t, auth.CodeHashFailed, auth.Code(err))

	close(release)
	<-done
}
