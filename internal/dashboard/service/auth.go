package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"strings"
	"time"

	"github.com/ecobalance/dashboard/internal/dashboard/domain"
	"github.com/ecobalance/dashboard/internal/dashboard/store"
	"github.com/ecobalance/dashboard/pkg/cryptox"
	"github.com/ecobalance/dashboard/pkg/slogx"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	DefaultMFAIssuer = "EcoBalance"

	totpPeriod = 30
	totpSkew   = 1
	qrSize     = 256
)

var (
	ErrDuplicateUser      = errors.New("duplicate_user")
	ErrInvalidCredentials = errors.New("invalid_credentials")
)

type AuthService struct {
	Store  store.Store
	Issuer string // Issuer shown in authenticator apps

	// Now is the clock used for TOTP checks; nil means time.Now.
	Now func() time.Time
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *AuthService) issuer() string {
	if s.Issuer == "" {
		return DefaultMFAIssuer
	}
	return s.Issuer
}

// Register stores a new user. The username is checked up front for a clear
// error, and the store's unique key catches anyone racing us to it.
func (s *AuthService) Register(ctx context.Context, username, password, mfaSecret string) error {
	if username == "" || password == "" {
		return ErrInvalidCredentials
	}
	if mfaSecret == "" {
		return fmt.Errorf("%w: missing MFA secret", ErrInvalidCredentials)
	}

	_, err := s.Store.Users().GetUserByUsername(ctx, username)
	switch {
	case err == nil:
		return ErrDuplicateUser
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("failed to look up user: %w", err)
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	err = s.Store.Users().CreateUser(ctx, domain.User{
		Username:     username,
		PasswordHash: hash,
		MFASecret:    mfaSecret,
		CreatedAt:    s.now().UTC(),
	})
	if errors.Is(err, store.ErrAlreadyExists) {
		return ErrDuplicateUser
	}
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	slogx.FromContext(ctx).Info("user registered", slog.String("username", username))
	return nil
}

// NewEnrollment generates a fresh TOTP secret for username along with its
// provisioning URI and a QR rendering of it. Nothing is persisted.
func (s *AuthService) NewEnrollment(username string) (domain.MFAEnrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer(),
		AccountName: username,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.MFAEnrollment{}, fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return domain.MFAEnrollment{}, fmt.Errorf("failed to render QR code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return domain.MFAEnrollment{}, fmt.Errorf("failed to encode QR code: %w", err)
	}

	return domain.MFAEnrollment{
		Secret:  key.Secret(),
		URL:     key.URL(),
		QRCode:  buf.Bytes(),
		Issuer:  s.issuer(),
		Account: username,
	}, nil
}

// VerifyPassword fails closed: unknown users, store errors and malformed
// hashes all read as a wrong password.
func (s *AuthService) VerifyPassword(ctx context.Context, username, password string) bool {
	if username == "" || password == "" {
		return false
	}

	u, err := s.Store.Users().GetUserByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slogx.FromContext(ctx).Error("failed to load user", slog.Any("error", err))
		}
		return false
	}

	return cryptox.VerifyPassword(password, u.PasswordHash) == nil
}

// VerifyMFA checks a 6 digit code against secret, allowing one step of
// clock skew either way.
func (s *AuthService) VerifyMFA(secret, code string) bool {
	code = strings.TrimSpace(code)
	if secret == "" || len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}

	ok, err := totp.ValidateCustom(code, secret, s.now().UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      totpSkew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}
