package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed = errors.New("jwtx: malformed token")
	ErrExpired   = errors.New("jwtx: token expired")
	ErrIssuer    = errors.New("jwtx: issuer mismatch")
)

// SessionClaims is what the browser holds: a reference to server-side session
// state, never the state itself.
type SessionClaims struct {
	jwt.RegisteredClaims

	// Session ID
	SID string `json:"sid"`
}

// SessionSigner signs and verifies session cookies with HS256.
type SessionSigner struct {
	secret []byte
	issuer string
	leeway time.Duration
	now    func() time.Time
}

func NewSessionSigner(secret, issuer string) *SessionSigner {
	return &SessionSigner{
		secret: []byte(secret),
		issuer: issuer,
		leeway: 5 * time.Second,
		now:    time.Now,
	}
}

// Sign returns a compact JWS binding sid until expiresAt.
func (s *SessionSigner) Sign(sid string, expiresAt time.Time) (string, error) {
	now := s.now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		SID: sid,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign session: %w", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm, issuer and expiry and returns the session id.
func (s *SessionSigner) Verify(token string) (string, error) {
	claims := &SessionClaims{}

	_, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(s.leeway),
		jwt.WithTimeFunc(s.now),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", ErrExpired
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return "", ErrIssuer
	default:
		return "", fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	if claims.SID == "" {
		return "", fmt.Errorf("%w: missing sid", ErrMalformed)
	}
	return claims.SID, nil
}
