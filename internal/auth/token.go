package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// DefaultTokenTTL is the lifetime of a bearer token.
const DefaultTokenTTL = time.Hour

// Claims is the bearer token payload. The account identity is the only
// custom claim.
type Claims struct {
	AccountID string `json:"id"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and parses HS256 bearer tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption configures a TokenIssuer.
type TokenOption func(*TokenIssuer)

// WithTokenClock overrides the clock used for iat/exp and validation.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(i *TokenIssuer) {
		if now != nil {
			i.now = now
		}
	}
}

// NewTokenIssuer creates a TokenIssuer. A zero ttl selects DefaultTokenTTL.
func NewTokenIssuer(secret []byte, ttl time.Duration, opts ...TokenOption) (*TokenIssuer, error) {
	if len(secret) == 0 {
		return nil, oops.Errorf("token signing secret is required")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	i := &TokenIssuer{secret: secret, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue returns a signed token for identity and its expiry.
func (i *TokenIssuer) Issue(identity string) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		AccountID: identity,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, oops.Code(CodeTokenSignFailed).Wrap(err)
	}
	return signed, expiresAt, nil
}

// Parse validates signature and expiry and returns the claims.
func (i *TokenIssuer) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, oops.Code(CodeTokenExpired).Wrap(err)
		}
		return nil, oops.Code(CodeTokenInvalid).Wrap(err)
	}
	if !token.Valid || claims.AccountID == "" {
		return nil, oops.Code(CodeTokenInvalid).Errorf("token carries no account")
	}
	return claims, nil
}
