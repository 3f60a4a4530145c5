// Package auth owns accounts: registration, login, JWT issuance and the
// account lookups the code registry needs.
package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/lumiprint/backend/internal/models"
	"github.com/lumiprint/backend/internal/remote"
)

var (
	// ErrDuplicateEmail is returned when registering with an email that
	// already exists.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrInvalidCredentials covers both unknown email and wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrEmailNotVerified blocks login until the verification code is
	// redeemed.
	ErrEmailNotVerified = errors.New("email not verified")
)

const tokenTTL = 24 * time.Hour

// Store is the remote-store surface for accounts.
type Store interface {
	Create(ctx context.Context, acc *models.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	// GetByEmail returns (nil, nil) when no account matches.
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	SetEmailVerified(ctx context.Context, id uuid.UUID) error
	SetPasswordHash(ctx context.Context, id uuid.UUID, hash string) error
}

// CodeIssuer creates the verification code sent right after registration.
type CodeIssuer interface {
	IssueVerification(ctx context.Context, accountID uuid.UUID, email string) (string, error)
}

type Service struct {
	store  Store
	exec   *remote.Executor
	issuer CodeIssuer
	secret []byte
}

func NewService(store Store, exec *remote.Executor, secret string) *Service {
	return &Service{store: store, exec: exec, secret: []byte(secret)}
}

// SetCodeIssuer breaks the construction cycle with the code registry, which
// itself needs this service for lookups.
func (s *Service) SetCodeIssuer(issuer CodeIssuer) { s.issuer = issuer }

// Register creates an unverified account with zero credits and issues its
// verification code. The welcome bonus is granted on verification, not here.
func (s *Service) Register(ctx context.Context, email, username, password string) (*models.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, errors.New("email and password required")
	}
	if len(password) < 6 {
		return nil, errors.New("password must be at least 6 characters")
	}

	existing, err := s.lookupByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateEmail
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	acc := &models.Account{
		ID:           uuid.New(),
		Email:        email,
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    now,
		LastUpdate:   now,
	}
	if err := s.exec.Do(ctx, "auth.create", func(ctx context.Context) error {
		return s.store.Create(ctx, acc)
	}); err != nil {
		return nil, err
	}

	if s.issuer != nil {
		if _, err := s.issuer.IssueVerification(ctx, acc.ID, acc.Email); err != nil {
			// The account exists; verification can be re-requested later.
			return acc, nil
		}
	}
	return acc, nil
}

// Login verifies the password and returns a signed token. Unverified accounts
// are refused with ErrEmailNotVerified.
func (s *Service) Login(ctx context.Context, email, password string) (string, *models.Account, error) {
	acc, err := s.lookupByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", nil, err
	}
	if acc == nil {
		return "", nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}
	if !acc.EmailVerified {
		return "", nil, ErrEmailNotVerified
	}
	token, err := s.issueToken(acc.ID)
	if err != nil {
		return "", nil, err
	}
	return token, acc, nil
}

func (s *Service) issueToken(accountID uuid.UUID) (string, error) {
	c := jwt.RegisteredClaims{
		Subject:   accountID.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

func (s *Service) ValidateToken(_ context.Context, token string) (uuid.UUID, error) {
	tok, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return uuid.Nil, err
	}
	c, ok := tok.Claims.(*jwt.RegisteredClaims)
	if !ok || !tok.Valid {
		return uuid.Nil, errors.New("invalid token")
	}
	return uuid.Parse(c.Subject)
}

// GetAccount returns the account by id.
func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var acc *models.Account
	err := s.exec.Do(ctx, "auth.get", func(ctx context.Context) error {
		var err error
		acc, err = s.store.GetByID(ctx, id)
		return err
	})
	return acc, err
}

// LookupByEmail returns the account or an error when none exists. The code
// registry uses it to resolve reset requests.
func (s *Service) LookupByEmail(ctx context.Context, email string) (*models.Account, error) {
	acc, err := s.lookupByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, errors.New("account not found")
	}
	return acc, nil
}

func (s *Service) lookupByEmail(ctx context.Context, email string) (*models.Account, error) {
	var acc *models.Account
	err := s.exec.Do(ctx, "auth.lookup", func(ctx context.Context) error {
		var err error
		acc, err = s.store.GetByEmail(ctx, email)
		return err
	})
	return acc, err
}

func (s *Service) MarkEmailVerified(ctx context.Context, accountID uuid.UUID) error {
	return s.exec.Do(ctx, "auth.verify", func(ctx context.Context) error {
		return s.store.SetEmailVerified(ctx, accountID)
	})
}

func (s *Service) UpdatePassword(ctx context.Context, accountID uuid.UUID, newPassword string) error {
	if len(newPassword) < 6 {
		return errors.New("password must be at least 6 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.exec.Do(ctx, "auth.password", func(ctx context.Context) error {
		return s.store.SetPasswordHash(ctx, accountID, string(hash))
	})
}
