package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
	"github.com/samber/oops"
)

// Secret configuration.
const (
	VerificationSecretBytes = 32             // 32 bytes = 64 hex chars
	VerificationSecretTTL   = 24 * time.Hour // email verification window
	OTPTTL                  = 5 * time.Minute

	otpMin      = 100000
	otpMax      = 999999
	otpIssuer   = "studentauth"
	otpMaxDraws = 64
)

// VerificationSecret is a freshly minted email verification secret.
// Token goes into the emailed link; Hash is what gets stored.
type VerificationSecret struct {
	Token     string
	Hash      string
	ExpiresAt time.Time
}

// OTP is a freshly minted password reset code.
type OTP struct {
	Code      int
	ExpiresAt time.Time
}

// SecretGenerator mints verification secrets and reset OTPs.
type SecretGenerator struct {
	verificationTTL time.Duration
	otpTTL          time.Duration
}

// NewSecretGenerator creates a SecretGenerator. Zero TTLs select the defaults.
func NewSecretGenerator(verificationTTL, otpTTL time.Duration) *SecretGenerator {
	if verificationTTL <= 0 {
		verificationTTL = VerificationSecretTTL
	}
	if otpTTL <= 0 {
		otpTTL = OTPTTL
	}
	return &SecretGenerator{verificationTTL: verificationTTL, otpTTL: otpTTL}
}

// NewVerificationSecret returns a random verification secret expiring
// verificationTTL after now.
func (g *SecretGenerator) NewVerificationSecret(now time.Time) (VerificationSecret, error) {
	b := make([]byte, VerificationSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return VerificationSecret{}, oops.Code(CodeSecretFailed).
			With("operation", "verification secret").
			Wrap(err)
	}

	token := hex.EncodeToString(b)
	return VerificationSecret{
		Token:     token,
		Hash:      HashSecret(token),
		ExpiresAt: now.Add(g.verificationTTL),
	}, nil
}

// NewOTP returns a 6-digit code in [100000, 999999] expiring otpTTL after now.
// Each code is the first HOTP value of a fresh random key; codes with a
// leading zero are redrawn.
func (g *SecretGenerator) NewOTP(now time.Time) (OTP, error) {
	opts := hotp.ValidateOpts{Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1}

	for i := 0; i < otpMaxDraws; i++ {
		key, err := hotp.Generate(hotp.GenerateOpts{
			Issuer:      otpIssuer,
			AccountName: "password-reset",
			Digits:      otp.DigitsSix,
		})
		if err != nil {
			return OTP{}, oops.Code(CodeSecretFailed).With("operation", "otp key").Wrap(err)
		}

		code, err := hotp.GenerateCodeCustom(key.Secret(), 0, opts)
		if err != nil {
			return OTP{}, oops.Code(CodeSecretFailed).With("operation", "otp code").Wrap(err)
		}

		n, err := strconv.Atoi(code)
		if err != nil {
			return OTP{}, oops.Code(CodeSecretFailed).With("operation", "otp parse").Wrap(err)
		}
		if n >= otpMin && n <= otpMax {
			return OTP{Code: n, ExpiresAt: now.Add(g.otpTTL)}, nil
		}
	}

	return OTP{}, oops.Code(CodeSecretFailed).Errorf("could not draw an otp in range")
}

// HashSecret returns the hex SHA-256 digest under which a verification secret is stored.
func HashSecret(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
