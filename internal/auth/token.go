// Package auth issues and verifies the bearer tokens used by the API.
package auth

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
)

// TokenType distinguishes short-lived access tokens from refresh tokens.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

const (
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 24 * time.Hour
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the JWT payload. Subject carries the user id.
type Claims struct {
	jwt.RegisteredClaims
	Email string    `json:"email,omitempty"`
	Type  TokenType `json:"typ"`
}

// Pair is an access token with its matching refresh token.
type Pair struct {
	Access  string
	Refresh string
}

// Subject identifies the holder of a token.
type Subject struct {
	UserID string
	Email  string
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithTTL overrides the access and refresh token lifetimes. Zero values keep
// the defaults.
func WithTTL(access, refresh time.Duration) Option {
	return func(i *Issuer) {
		if access > 0 {
			i.accessTTL = access
		}
		if refresh > 0 {
			i.refreshTTL = refresh
		}
	}
}

// WithClock overrides the time source used to stamp and validate tokens.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// Issuer signs and verifies HS256 tokens with a shared secret.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer creates an Issuer. The secret must not be empty.
func NewIssuer(secret []byte, opts ...Option) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret is empty")
	}
	i := &Issuer{
		secret:     secret,
		accessTTL:  DefaultAccessTTL,
		refreshTTL: DefaultRefreshTTL,
		now:        time.Now,
	}
	for _, o := range opts {
		o(i)
	}
	return i, nil
}

// Issue returns a fresh access and refresh token for sub.
func (i *Issuer) Issue(sub Subject) (Pair, error) {
	access, err := i.sign(sub, TokenAccess, i.accessTTL)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := i.sign(sub, TokenRefresh, i.refreshTTL)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Access: access, Refresh: refresh}, nil
}

// Refresh exchanges a valid refresh token for a new access token.
func (i *Issuer) Refresh(refreshToken string) (string, error) {
	sub, err := i.Parse(refreshToken, TokenRefresh)
	if err != nil {
		return "", err
	}
	return i.sign(sub, TokenAccess, i.accessTTL)
}

// Parse verifies token and returns its subject. The token must be of the
// expected type.
func (i *Issuer) Parse(token string, expected TokenType) (Subject, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Subject{}, errors.Wrap(ErrInvalidToken, err.Error())
	}
	if claims.Type != expected || claims.Subject == "" {
		return Subject{}, ErrInvalidToken
	}
	return Subject{UserID: claims.Subject, Email: claims.Email}, nil
}

func (i *Issuer) sign(sub Subject, typ TokenType, ttl time.Duration) (string, error) {
	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: sub.Email,
		Type:  typ,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return signed, nil
}
