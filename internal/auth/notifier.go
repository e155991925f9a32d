package auth

import (
	"context"
	"time"
)

// NotificationKind names the out-of-band message to deliver.
type NotificationKind string

const (
	NotifyVerification     NotificationKind = "verification"
	NotifyPasswordResetOTP NotificationKind = "password_reset_otp"
	NotifyPasswordChanged  NotificationKind = "password_changed"
)

// Notification is handed to the Notifier after a transition is durably stored.
type Notification struct {
	Kind      NotificationKind `json:"kind"`
	To        string           `json:"to"`
	Name      string           `json:"name"`
	Link      string           `json:"link,omitempty"`
	OTP       int              `json:"otp,omitempty"`
	ExpiresAt time.Time        `json:"expiresAt,omitempty"`
	// ValidFor is the lifetime of the attached secret when it was issued.
	ValidFor time.Duration `json:"validFor,omitempty"`
}

// Notifier delivers notifications. Implementations should not block on
// delivery; a returned error is logged and never undoes the transition.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}
