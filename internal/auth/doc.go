// Package auth implements the student credential lifecycle.
//
// # Components
//
//   - PasswordHasher / BcryptHasher - bcrypt hashing behind a bounded worker pool
//   - SecretGenerator - email verification secrets and 6-digit reset OTPs
//   - TokenIssuer - signed, time-limited bearer tokens
//   - AccountStore - persistence port implemented by internal/database
//   - Notifier - out-of-band delivery port implemented by internal/notify
//   - Service - the credential state machine
//
// Every Service method returns errors built with oops codes. Use KindOf to
// classify them and PublicMessage to render them for clients.
package auth
