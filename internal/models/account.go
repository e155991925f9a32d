package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// State is the credential state of an account, derived from which
// secrets are currently attached to it.
type State int

const (
	// StateUnverified means the email address has not been confirmed yet.
	StateUnverified State = iota
	// StateVerified means the email address has been confirmed and no reset is pending.
	StateVerified
	// StateResetPending means a password reset OTP has been issued and not consumed.
	StateResetPending
)

// String returns the lower-case name of the state.
func (s State) String() string {
	switch s {
	case StateUnverified:
		return "unverified"
	case StateVerified:
		return "verified"
	case StateResetPending:
		return "reset_pending"
	default:
		return "unknown"
	}
}

// EmailVerification holds the pending (or dormant) email verification secret.
// Only the SHA-256 digest of the emailed secret is stored.
type EmailVerification struct {
	SecretHash string     `bson:"secret_hash"`
	ExpiresAt  *time.Time `bson:"expires_at,omitempty"`
}

// PasswordReset holds an issued reset OTP. The OTP and its expiry live in one
// sub-document so they are always present or absent together.
type PasswordReset struct {
	OTP       int       `bson:"otp"`
	ExpiresAt time.Time `bson:"expires_at"`
}

// Account represents a registered student.
type Account struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name              string             `bson:"name" json:"name"`
	Email             string             `bson:"email" json:"email"`
	PasswordHash      string             `bson:"password" json:"-"`
	Verified          bool               `bson:"verified" json:"verified"`
	Verification      *EmailVerification `bson:"verification,omitempty" json:"-"`
	Reset             *PasswordReset     `bson:"reset,omitempty" json:"-"`
	PasswordChangedAt *time.Time         `bson:"password_changed_at,omitempty" json:"-"`
	CreatedAt         time.Time          `bson:"created_at" json:"createdAt"`
	UpdatedAt         time.Time          `bson:"updated_at" json:"updatedAt"`
}

// Identity returns the hex form of the account ID.
func (a *Account) Identity() string {
	return a.ID.Hex()
}

// State derives the current credential state. A pending reset takes
// precedence over the verification status.
func (a *Account) State() State {
	switch {
	case a.Reset != nil:
		return StateResetPending
	case a.Verified:
		return StateVerified
	default:
		return StateUnverified
	}
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.Verification != nil {
		v := *a.Verification
		if a.Verification.ExpiresAt != nil {
			exp := *a.Verification.ExpiresAt
			v.ExpiresAt = &exp
		}
		c.Verification = &v
	}
	if a.Reset != nil {
		r := *a.Reset
		c.Reset = &r
	}
	if a.PasswordChangedAt != nil {
		t := *a.PasswordChangedAt
		c.PasswordChangedAt = &t
	}
	return &c
}
