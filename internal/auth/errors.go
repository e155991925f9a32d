package auth

import (
	"errors"

	"github.com/samber/oops"
)

// Store-level sentinels. AccountStore implementations return these unwrapped.
var (
	// ErrNotFound is returned when a requested account does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned when an email is already registered.
	ErrDuplicateEmail = errors.New("duplicate email")
)

// Error codes attached to every error returned by Service.
const (
	CodeMissingFields    = "VALIDATION_MISSING_FIELDS"
	CodeInvalidEmail     = "VALIDATION_INVALID_EMAIL"
	CodePasswordTooLong  = "VALIDATION_PASSWORD_TOO_LONG"
	CodePasswordMismatch = "PASSWORD_MISMATCH"

	CodeAccountNotFound     = "ACCOUNT_NOT_FOUND"
	CodeVerifyTokenNotFound = "VERIFY_TOKEN_NOT_FOUND"

	CodeDuplicateEmail = "ACCOUNT_DUPLICATE_EMAIL"

	CodeInvalidPassword = "AUTH_INVALID_PASSWORD"
	CodeTokenInvalid    = "AUTH_TOKEN_INVALID"
	CodeTokenExpired    = "AUTH_TOKEN_EXPIRED"
	CodeTokenRevoked    = "AUTH_TOKEN_REVOKED"

	CodeVerifyTokenExpired = "VERIFY_TOKEN_EXPIRED"
	CodeOTPExpired         = "OTP_EXPIRED"

	CodeAlreadyVerified = "VERIFY_ALREADY_VERIFIED"
	CodeOTPMissing      = "OTP_MISSING"
	CodeOTPMismatch     = "OTP_MISMATCH"

	CodeStoreFailed     = "STORE_FAILED"
	CodeHashFailed      = "HASH_FAILED"
	CodeHashInvalid     = "HASH_INVALID"
	CodeTokenSignFailed = "TOKEN_SIGN_FAILED"
	CodeSecretFailed    = "SECRET_FAILED"
)

// Kind is the client-facing class of an error.
type Kind int

const (
	// KindDependency covers hashing, storage, signing and unknown failures.
	KindDependency Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindAuthentication
	KindExpiredSecret
	KindInvalidSecret
)

// String returns a snake_case name, used as a metrics label.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindAuthentication:
		return "authentication"
	case KindExpiredSecret:
		return "expired_secret"
	case KindInvalidSecret:
		return "invalid_secret"
	default:
		return "dependency"
	}
}

type codeInfo struct {
	kind    Kind
	message string
}

const internalMessage = "internal server error"

var codeTable = map[string]codeInfo{
	CodeMissingFields:    {KindValidation, "Please fill all fields"},
	CodeInvalidEmail:     {KindValidation, "Invalid email format"},
	CodePasswordTooLong:  {KindValidation, "Password must be at most 72 bytes"},
	CodePasswordMismatch: {KindValidation, "Passwords do not match"},

	CodeAccountNotFound:     {KindNotFound, "Student not found"},
	CodeVerifyTokenNotFound: {KindNotFound, "Invalid or expired token"},

	CodeDuplicateEmail: {KindConflict, "Email already exists, please choose another one"},

	CodeInvalidPassword: {KindAuthentication, "Invalid password"},
	CodeTokenInvalid:    {KindAuthentication, "Invalid bearer token"},
	CodeTokenExpired:    {KindAuthentication, "Bearer token has expired"},
	CodeTokenRevoked:    {KindAuthentication, "Bearer token has been revoked"},

	CodeVerifyTokenExpired: {KindExpiredSecret, "Token has expired"},
	CodeOTPExpired:         {KindExpiredSecret, "OTP has expired"},

	CodeAlreadyVerified: {KindInvalidSecret, "Email is already verified"},
	CodeOTPMissing:      {KindInvalidSecret, "No OTP is pending for this account"},
	CodeOTPMismatch:     {KindInvalidSecret, "Invalid OTP"},

	CodeStoreFailed:     {KindDependency, internalMessage},
	CodeHashFailed:      {KindDependency, internalMessage},
	CodeHashInvalid:     {KindDependency, internalMessage},
	CodeTokenSignFailed: {KindDependency, internalMessage},
	CodeSecretFailed:    {KindDependency, internalMessage},
}

// Code returns the oops code carried by err, or "" if there is none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := any(oopsErr.Code()).(string)
	return code
}

// KindOf classifies err. Errors without a known code are dependency failures.
func KindOf(err error) Kind {
	if info, ok := codeTable[Code(err)]; ok {
		return info.kind
	}
	return KindDependency
}

// PublicMessage returns a message that is safe to show to clients.
func PublicMessage(err error) string {
	if info, ok := codeTable[Code(err)]; ok {
		return info.message
	}
	return internalMessage
}
