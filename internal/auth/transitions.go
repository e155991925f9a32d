package auth

import (
	"crypto/subtle"
	"strconv"
	"time"

	"github.com/samber/oops"

	"studentauth/internal/models"
)

// The functions below are the only places that move an account between
// states. Each one mutates the account in memory; callers persist the
// result with a single Save so the effect and the consumed secret land
// together.

// attachVerification starts (or restarts) the email verification flow.
func attachVerification(a *models.Account, secret VerificationSecret) {
	exp := secret.ExpiresAt
	a.Verified = false
	a.Verification = &models.EmailVerification{
		SecretHash: secret.Hash,
		ExpiresAt:  &exp,
	}
}

// verifyEmail marks the account verified. The secret hash stays on the
// account so a replay is reported as already verified rather than unknown.
func verifyEmail(a *models.Account, now time.Time) error {
	if a.Verified {
		return oops.Code(CodeAlreadyVerified).
			With("account_id", a.Identity()).
			Errorf("email already verified")
	}
	if a.Verification == nil || a.Verification.ExpiresAt == nil {
		return oops.Code(CodeVerifyTokenNotFound).
			With("account_id", a.Identity()).
			Errorf("no pending verification")
	}
	if !now.Before(*a.Verification.ExpiresAt) {
		return oops.Code(CodeVerifyTokenExpired).
			With("account_id", a.Identity()).
			With("expired_at", *a.Verification.ExpiresAt).
			Errorf("verification secret expired")
	}

	a.Verified = true
	a.Verification.ExpiresAt = nil
	return nil
}

// beginReset attaches a fresh OTP, replacing any earlier one.
func beginReset(a *models.Account, code OTP) {
	a.Reset = &models.PasswordReset{OTP: code.Code, ExpiresAt: code.ExpiresAt}
}

// consumeOTP checks code against the pending reset and clears it on success.
// A failed comparison leaves the reset in place.
func consumeOTP(a *models.Account, code int, now time.Time) error {
	if a.State() != models.StateResetPending {
		return oops.Code(CodeOTPMissing).
			With("account_id", a.Identity()).
			Errorf("no otp pending")
	}
	if !now.Before(a.Reset.ExpiresAt) {
		return oops.Code(CodeOTPExpired).
			With("account_id", a.Identity()).
			With("expired_at", a.Reset.ExpiresAt).
			Errorf("otp expired")
	}

	want := []byte(strconv.Itoa(a.Reset.OTP))
	got := []byte(strconv.Itoa(code))
	if subtle.ConstantTimeCompare(want, got) != 1 {
		return oops.Code(CodeOTPMismatch).
			With("account_id", a.Identity()).
			Errorf("otp mismatch")
	}

	a.Reset = nil
	return nil
}

// setPassword replaces the password hash and starts a new token epoch.
// Any pending reset is dropped along with the old password.
func setPassword(a *models.Account, hash string, now time.Time) {
	changed := now.UTC()
	a.PasswordHash = hash
	a.PasswordChangedAt = &changed
	a.Reset = nil
}

// tokenRevoked reports whether a token issued at issuedAt predates the last
// password change. Tokens only carry second precision.
func tokenRevoked(a *models.Account, issuedAt time.Time) bool {
	if a.PasswordChangedAt == nil {
		return false
	}
	return issuedAt.Before(a.PasswordChangedAt.Truncate(time.Second))
}
