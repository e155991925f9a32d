package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/samber/oops"

	"studentauth/internal/logging"
	"studentauth/internal/models"
	"studentauth/internal/util"
)

// DefaultVerificationURL is the base the verification link is built on.
const DefaultVerificationURL = "http://localhost:8080/api/students"

// Operation names used for logging and metrics.
const (
	OpRegister      = "register"
	OpVerifyEmail   = "verify_email"
	OpLogin         = "login"
	OpRequestReset  = "request_reset"
	OpVerifyOTP     = "verify_otp"
	OpChangePass    = "change_password"
	OpDeleteAccount = "delete_account"
	OpAuthenticate  = "authenticate"
)

// Recorder receives the outcome of every state transition.
type Recorder interface {
	RecordTransition(operation, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) RecordTransition(string, string) {}

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Token     string
	ExpiresAt time.Time
	Account   *models.Account
}

// Service implements the account credential lifecycle.
type Service struct {
	store    AccountStore
	hasher   PasswordHasher
	secrets  *SecretGenerator
	tokens   *TokenIssuer
	notifier Notifier

	now      func() time.Time
	logger   *slog.Logger
	recorder Recorder
	baseURL  string
}

// Option configures a Service.
type Option func(*Service)

// WithClock sets the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRecorder sets the transition outcome recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithVerificationURL sets the base URL of the verification link.
func WithVerificationURL(base string) Option {
	return func(s *Service) {
		if base != "" {
			s.baseURL = strings.TrimRight(base, "/")
		}
	}
}

// NewService creates a Service.
func NewService(store AccountStore, hasher PasswordHasher, secrets *SecretGenerator, tokens *TokenIssuer, notifier Notifier, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, oops.Errorf("account store is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if secrets == nil {
		return nil, oops.Errorf("secret generator is required")
	}
	if tokens == nil {
		return nil, oops.Errorf("token issuer is required")
	}
	if notifier == nil {
		return nil, oops.Errorf("notifier is required")
	}

	s := &Service{
		store:    store,
		hasher:   hasher,
		secrets:  secrets,
		tokens:   tokens,
		notifier: notifier,
		now:      time.Now,
		logger:   slog.Default(),
		recorder: nopRecorder{},
		baseURL:  DefaultVerificationURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates an unverified account and sends its verification link.
func (s *Service) Register(ctx context.Context, name, email, password string) (_ *models.Account, err error) {
	defer s.record(OpRegister, &err)

	name = strings.TrimSpace(name)
	email = util.NormalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return nil, oops.Code(CodeMissingFields).Errorf("name, email and password are required")
	}
	if !util.ValidateEmail(email) {
		return nil, oops.Code(CodeInvalidEmail).With("email", email).Errorf("invalid email format")
	}

	if _, err := s.store.FindByEmail(ctx, email); err == nil {
		return nil, oops.Code(CodeDuplicateEmail).With("email", email).Errorf("email already registered")
	} else if !errors.Is(err, ErrNotFound) {
		return nil, storeError(err, "find by email")
	}

	hash, err := s.hasher.Hash(ctx, password)
	if err != nil {
		return nil, err
	}

	now := s.now()
	secret, err := s.secrets.NewVerificationSecret(now)
	if err != nil {
		return nil, err
	}

	account := &models.Account{Name: name, Email: email, PasswordHash: hash}
	attachVerification(account, secret)

	created, err := s.store.Create(ctx, account)
	if err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, oops.Code(CodeDuplicateEmail).With("email", email).Wrap(err)
		}
		return nil, storeError(err, "create")
	}

	s.notify(ctx, Notification{
		Kind:      NotifyVerification,
		To:        created.Email,
		Name:      created.Name,
		Link:      s.verificationLink(secret.Token),
		ExpiresAt: secret.ExpiresAt,
		ValidFor:  secret.ExpiresAt.Sub(now),
	})

	s.logger.InfoContext(ctx, "account registered", "account_id", created.Identity())
	return created, nil
}

// VerifyEmail consumes a verification secret.
func (s *Service) VerifyEmail(ctx context.Context, token string) (_ *models.Account, err error) {
	defer s.record(OpVerifyEmail, &err)

	if token == "" {
		return nil, oops.Code(CodeMissingFields).Errorf("verification token is required")
	}

	account, err := s.store.FindByVerificationSecret(ctx, HashSecret(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeVerifyTokenNotFound).Wrap(err)
		}
		return nil, storeError(err, "find by verification secret")
	}

	if err := verifyEmail(account, s.now()); err != nil {
		return nil, err
	}

	saved, err := s.save(ctx, account)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "email verified", "account_id", saved.Identity())
	return saved, nil
}

// Login checks the password and issues a bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (_ *LoginResult, err error) {
	defer s.record(OpLogin, &err)

	email = util.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, oops.Code(CodeMissingFields).Errorf("email and password are required")
	}

	account, err := s.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}

	ok, err := s.hasher.Verify(ctx, password, account.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, oops.Code(CodeInvalidPassword).
			With("account_id", account.Identity()).
			Errorf("invalid password")
	}

	token, expiresAt, err := s.tokens.Issue(account.Identity())
	if err != nil {
		return nil, err
	}
	return &LoginResult{Token: token, ExpiresAt: expiresAt, Account: account}, nil
}

// RequestPasswordReset issues a new OTP, invalidating any earlier one.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (err error) {
	defer s.record(OpRequestReset, &err)

	email = util.NormalizeEmail(email)
	if email == "" {
		return oops.Code(CodeMissingFields).Errorf("email is required")
	}

	account, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}

	now := s.now()
	code, err := s.secrets.NewOTP(now)
	if err != nil {
		return err
	}
	beginReset(account, code)

	saved, err := s.save(ctx, account)
	if err != nil {
		return err
	}

	s.notify(ctx, Notification{
		Kind:      NotifyPasswordResetOTP,
		To:        saved.Email,
		Name:      saved.Name,
		OTP:       code.Code,
		ExpiresAt: code.ExpiresAt,
		ValidFor:  code.ExpiresAt.Sub(now),
	})
	return nil
}

// VerifyOTP consumes the pending reset OTP.
func (s *Service) VerifyOTP(ctx context.Context, email string, code int) (err error) {
	defer s.record(OpVerifyOTP, &err)

	email = util.NormalizeEmail(email)
	if email == "" || code == 0 {
		return oops.Code(CodeMissingFields).Errorf("email and otp are required")
	}

	account, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}

	if err := consumeOTP(account, code, s.now()); err != nil {
		return err
	}

	_, err = s.save(ctx, account)
	return err
}

// ChangePassword sets a new password. Tokens issued before the change stop
// authenticating.
func (s *Service) ChangePassword(ctx context.Context, email, newPassword, confirmPassword string) (err error) {
	defer s.record(OpChangePass, &err)

	email = util.NormalizeEmail(email)
	if email == "" || newPassword == "" || confirmPassword == "" {
		return oops.Code(CodeMissingFields).Errorf("email, new password and confirmation are required")
	}
	if newPassword != confirmPassword {
		return oops.Code(CodePasswordMismatch).Errorf("passwords do not match")
	}

	account, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}

	hash, err := s.hasher.Hash(ctx, newPassword)
	if err != nil {
		return err
	}
	setPassword(account, hash, s.now())

	saved, err := s.save(ctx, account)
	if err != nil {
		return err
	}

	s.notify(ctx, Notification{
		Kind: NotifyPasswordChanged,
		To:   saved.Email,
		Name: saved.Name,
	})
	s.logger.InfoContext(ctx, "password changed", "account_id", saved.Identity())
	return nil
}

// DeleteAccount removes an account and every secret attached to it.
func (s *Service) DeleteAccount(ctx context.Context, identity string) (_ *models.Account, err error) {
	defer s.record(OpDeleteAccount, &err)

	if identity == "" {
		return nil, oops.Code(CodeMissingFields).Errorf("account id is required")
	}

	deleted, err := s.store.DeleteByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeAccountNotFound).With("account_id", identity).Wrap(err)
		}
		return nil, storeError(err, "delete")
	}
	s.logger.InfoContext(ctx, "account deleted", "account_id", identity)
	return deleted, nil
}

// GetAccount returns the account with the given identity.
func (s *Service) GetAccount(ctx context.Context, identity string) (*models.Account, error) {
	account, err := s.store.FindByIdentity(ctx, identity)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeAccountNotFound).With("account_id", identity).Wrap(err)
		}
		return nil, storeError(err, "find by identity")
	}
	return account, nil
}

// ListAccounts returns every account.
func (s *Service) ListAccounts(ctx context.Context) ([]*models.Account, error) {
	accounts, err := s.store.List(ctx)
	if err != nil {
		return nil, storeError(err, "list")
	}
	return accounts, nil
}

// Authenticate resolves a bearer token to its account.
func (s *Service) Authenticate(ctx context.Context, token string) (_ *models.Account, err error) {
	defer s.record(OpAuthenticate, &err)

	if token == "" {
		return nil, oops.Code(CodeTokenInvalid).Errorf("bearer token is required")
	}

	claims, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}

	account, err := s.store.FindByIdentity(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeTokenInvalid).With("account_id", claims.AccountID).Wrap(err)
		}
		return nil, storeError(err, "find by identity")
	}

	if claims.IssuedAt == nil || tokenRevoked(account, claims.IssuedAt.Time) {
		return nil, oops.Code(CodeTokenRevoked).
			With("account_id", account.Identity()).
			Errorf("token issued before last password change")
	}
	return account, nil
}

func (s *Service) findByEmail(ctx context.Context, email string) (*models.Account, error) {
	account, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeAccountNotFound).With("email", email).Wrap(err)
		}
		return nil, storeError(err, "find by email")
	}
	return account, nil
}

func (s *Service) save(ctx context.Context, account *models.Account) (*models.Account, error) {
	saved, err := s.store.Save(ctx, account)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeAccountNotFound).With("account_id", account.Identity()).Wrap(err)
		}
		return nil, storeError(err, "save")
	}
	return saved, nil
}

// notify hands n to the notifier. Delivery problems never fail the
// transition that has already been stored.
func (s *Service) notify(ctx context.Context, n Notification) {
	if err := s.notifier.Notify(ctx, n); err != nil {
		logging.LogError(s.logger, "notification enqueue failed", oops.
			With("kind", string(n.Kind)).
			Wrap(err))
	}
}

func (s *Service) verificationLink(token string) string {
	return s.baseURL + "/verify-email?token=" + url.QueryEscape(token)
}

func (s *Service) record(op string, errp *error) {
	err := *errp
	if err == nil {
		s.recorder.RecordTransition(op, "success")
		return
	}
	kind := KindOf(err)
	if kind == KindDependency {
		logging.LogError(s.logger, op+" failed", err)
	}
	s.recorder.RecordTransition(op, kind.String())
}

func storeError(err error, operation string) error {
	return oops.Code(CodeStoreFailed).With("operation", operation).Wrap(err)
}
