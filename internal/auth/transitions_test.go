package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studentauth/internal/models"
)

var t0 = time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

func TestVerifyEmail(t *testing.T) {
	tests := []struct {
		name     string
		account  func() *models.Account
		now      time.Time
		wantCode string
	}{
		{
			name: "pending and fresh",
			account: func() *models.Account {
				a := &models.Account{}
				attachVerification(a, VerificationSecret{Hash: "h", ExpiresAt: t0.Add(time.Hour)})
				return a
			},
			now: t0,
		},
		{
			name: "expired at the boundary",
			account: func() *models.Account {
				a := &models.Account{}
				attachVerification(a, VerificationSecret{Hash: "h", ExpiresAt: t0})
				return a
			},
			now:      t0,
			wantCode: CodeVerifyTokenExpired,
		},
		{
			name: "already verified",
			account: func() *models.Account {
				return &models.Account{Verified: true, Verification: &models.EmailVerification{SecretHash: "h"}}
			},
			now:      t0,
			wantCode: CodeAlreadyVerified,
		},
		{
			name:     "nothing pending",
			account:  func() *models.Account { return &models.Account{} },
			now:      t0,
			wantCode: CodeVerifyTokenNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := tt.account()
			err := verifyEmail(a, tt.now)
			if tt.wantCode != "" {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, Code(err))
				return
			}
			require.NoError(t, err)
			assert.True(t, a.Verified)
			require.NotNil(t, a.Verification)
			assert.Nil(t, a.Verification.ExpiresAt)
			assert.Equal(t, "h", a.Verification.SecretHash)
		})
	}
}

func TestConsumeOTP(t *testing.T) {
	pending := func() *models.Account {
		a := &models.Account{Verified: true}
		beginReset(a, OTP{Code: 123456, ExpiresAt: t0.Add(5 * time.Minute)})
		return a
	}

	t.Run("match clears reset", func(t *testing.T) {
		a := pending()
		require.Equal(t, models.StateResetPending, a.State())
		require.NoError(t, consumeOTP(a, 123456, t0))
		assert.Nil(t, a.Reset)
		assert.Equal(t, models.StateVerified, a.State())
	})

	t.Run("second use is missing", func(t *testing.T) {
		a := pending()
		require.NoError(t, consumeOTP(a, 123456, t0))
		err := consumeOTP(a, 123456, t0)
		assert.Equal(t, CodeOTPMissing, Code(err))
		assert.Equal(t, KindInvalidSecret, KindOf(err))
	})

	t.Run("mismatch keeps reset", func(t *testing.T) {
		a := pending()
		err := consumeOTP(a, 654321, t0)
		assert.Equal(t, CodeOTPMismatch, Code(err))
		assert.NotNil(t, a.Reset)
	})

	t.Run("expired", func(t *testing.T) {
		a := pending()
		err := consumeOTP(a, 123456, t0.Add(5*time.Minute))
		assert.Equal(t, CodeOTPExpired, Code(err))
		assert.Equal(t, KindExpiredSecret, KindOf(err))
	})

	t.Run("new otp replaces old", func(t *testing.T) {
		a := pending()
		beginReset(a, OTP{Code: 222222, ExpiresAt: t0.Add(10 * time.Minute)})
		assert.Equal(t, CodeOTPMismatch, Code(consumeOTP(a, 123456, t0)))
		assert.NoError(t, consumeOTP(a, 222222, t0))
	})
}

func TestSetPasswordAndRevocation(t *testing.T) {
	a := &models.Account{PasswordHash: "old"}
	beginReset(a, OTP{Code: 111111, ExpiresAt: t0.Add(time.Minute)})

	assert.False(t, tokenRevoked(a, t0.Add(-time.Hour)))

	changedAt := t0.Add(500 * time.Millisecond)
	setPassword(a, "new", changedAt)

	assert.Equal(t, "new", a.PasswordHash)
	assert.Nil(t, a.Reset)
	require.NotNil(t, a.PasswordChangedAt)

	assert.True(t, tokenRevoked(a, t0.Add(-time.Second)))
	// Same second as the change: a token minted right after still works.
	assert.False(t, tokenRevoked(a, t0))
	assert.False(t, tokenRevoked(a, t0.Add(time.Second)))
}
