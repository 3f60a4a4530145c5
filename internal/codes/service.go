// Package codes issues and consumes time-limited single-use codes: email
// verification, password reset and promotional credit codes.
package codes

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lumiprint/backend/internal/models"
	"github.com/lumiprint/backend/internal/remote"
)

// ErrInvalidCode covers unknown, already-consumed and concurrently-consumed
// codes; the caller cannot distinguish them.
var ErrInvalidCode = errors.New("invalid code")

// ErrExpiredCode is returned for codes past their TTL. The code is left
// unused.
var ErrExpiredCode = errors.New("expired code")

// Store is the remote-store surface for codes.
type Store interface {
	Insert(ctx context.Context, code *models.Code) error
	// FindUnused returns the first unused code matching kind and value. An
	// empty email skips the owner-email filter (promotional codes). Returns
	// (nil, nil) when nothing matches.
	FindUnused(ctx context.Context, kind, value, email string) (*models.Code, error)
	// MarkUsed flips used to true only if it is still false. ok=false means a
	// concurrent redeemer won.
	MarkUsed(ctx context.Context, id uuid.UUID, usedAt time.Time, usedBy *uuid.UUID) (bool, error)
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// AuthProvider is the slice of the auth service the registry needs.
type AuthProvider interface {
	LookupByEmail(ctx context.Context, email string) (*models.Account, error)
	MarkEmailVerified(ctx context.Context, accountID uuid.UUID) error
	UpdatePassword(ctx context.Context, accountID uuid.UUID, newPassword string) error
}

// CreditGranter is the slice of the ledger the registry needs.
type CreditGranter interface {
	AddCredits(ctx context.Context, accountID uuid.UUID, amount int, reason string) (int, error)
}

// Mailer delivers issued codes. Delivery is best-effort; the issued code is
// valid whether or not the mail went out.
type Mailer interface {
	SendVerificationCode(ctx context.Context, email, code string) error
	SendPasswordResetCode(ctx context.Context, email, code string) error
}

// Config carries code lengths, TTLs and the verification welcome bonus.
type Config struct {
	VerificationLength int
	VerificationTTL    time.Duration
	ResetLength        int
	ResetTTL           time.Duration
	WelcomeBonus       int
}

func DefaultConfig() Config {
	return Config{
		VerificationLength: 6,
		VerificationTTL:    10 * time.Minute,
		ResetLength:        8,
		ResetTTL:           15 * time.Minute,
		WelcomeBonus:       3,
	}
}

type Service struct {
	cfg    Config
	store  Store
	exec   *remote.Executor
	auth   AuthProvider
	ledger CreditGranter
	mailer Mailer
	log    *slog.Logger
	now    func() time.Time
}

func NewService(cfg Config, store Store, exec *remote.Executor, auth AuthProvider, ledger CreditGranter, mailer Mailer, log *slog.Logger) *Service {
	def := DefaultConfig()
	if cfg.VerificationLength <= 0 {
		cfg.VerificationLength = def.VerificationLength
	}
	if cfg.VerificationTTL <= 0 {
		cfg.VerificationTTL = def.VerificationTTL
	}
	if cfg.ResetLength <= 0 {
		cfg.ResetLength = def.ResetLength
	}
	if cfg.ResetTTL <= 0 {
		cfg.ResetTTL = def.ResetTTL
	}
	if cfg.WelcomeBonus <= 0 {
		cfg.WelcomeBonus = def.WelcomeBonus
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		cfg: cfg, store: store, exec: exec,
		auth: auth, ledger: ledger, mailer: mailer,
		log: log, now: func() time.Time { return time.Now().UTC() },
	}
}

// IssueVerification creates a verification code for the account and mails it.
func (s *Service) IssueVerification(ctx context.Context, accountID uuid.UUID, email string) (string, error) {
	value, err := randDigits(s.cfg.VerificationLength)
	if err != nil {
		return "", err
	}
	code := &models.Code{
		ID:        uuid.New(),
		Kind:      models.CodeKindVerification,
		Value:     value,
		AccountID: &accountID,
		Email:     email,
		CreatedAt: s.now(),
		ExpiresAt: s.now().Add(s.cfg.VerificationTTL),
	}
	if err := s.insert(ctx, code); err != nil {
		return "", err
	}
	if s.mailer != nil {
		if err := s.mailer.SendVerificationCode(ctx, email, value); err != nil {
			s.log.Warn("verification mail not delivered", "email", email, "error", err)
		}
	}
	return value, nil
}

// RedeemVerification consumes the code, then best-effort marks the email
// verified and grants the welcome bonus. Neither side effect is rolled into
// the consumption.
func (s *Service) RedeemVerification(ctx context.Context, value, email string) error {
	if _, err := s.consume(ctx, models.CodeKindVerification, value, email, nil); err != nil {
		return err
	}
	acc, lerr := s.auth.LookupByEmail(ctx, email)
	if lerr != nil || acc == nil {
		s.log.Error("verified email has no account, flag not set", "email", email, "error", lerr)
		return nil
	}
	if err := s.auth.MarkEmailVerified(ctx, acc.ID); err != nil {
		s.log.Error("email verified flag not set", "account_id", acc.ID, "error", err)
	}
	if _, err := s.ledger.AddCredits(ctx, acc.ID, s.cfg.WelcomeBonus, models.LedgerReasonWelcomeBonus); err != nil {
		s.log.Error("welcome bonus not granted", "account_id", acc.ID, "error", err)
	}
	return nil
}

// IssuePasswordReset creates a reset code for a known email and mails it.
func (s *Service) IssuePasswordReset(ctx context.Context, email string) (string, error) {
	acc, err := s.auth.LookupByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if acc == nil {
		return "", fmt.Errorf("no account for %s", email)
	}
	value, err := randDigits(s.cfg.ResetLength)
	if err != nil {
		return "", err
	}
	code := &models.Code{
		ID:        uuid.New(),
		Kind:      models.CodeKindPasswordReset,
		Value:     value,
		AccountID: &acc.ID,
		Email:     email,
		CreatedAt: s.now(),
		ExpiresAt: s.now().Add(s.cfg.ResetTTL),
	}
	if err := s.insert(ctx, code); err != nil {
		return "", err
	}
	if s.mailer != nil {
		if err := s.mailer.SendPasswordResetCode(ctx, email, value); err != nil {
			s.log.Warn("reset mail not delivered", "email", email, "error", err)
		}
	}
	return value, nil
}

// ResetPassword consumes a reset code and sets the new password through the
// auth provider.
func (s *Service) ResetPassword(ctx context.Context, value, email, newPassword string) error {
	code, err := s.consume(ctx, models.CodeKindPasswordReset, value, email, nil)
	if err != nil {
		return err
	}
	if code.AccountID == nil {
		return fmt.Errorf("reset code %s has no account", code.ID)
	}
	return s.auth.UpdatePassword(ctx, *code.AccountID, newPassword)
}

// IssuePromo registers a promotional code carrying a credit payload. The
// value is stored upper-cased; redemption matches case-insensitively.
func (s *Service) IssuePromo(ctx context.Context, value string, credits int, ttl time.Duration) (*models.Code, error) {
	if credits <= 0 {
		return nil, errors.New("promo credits must be positive")
	}
	value = strings.ToUpper(strings.TrimSpace(value))
	if value == "" {
		return nil, errors.New("promo value required")
	}
	code := &models.Code{
		ID:        uuid.New(),
		Kind:      models.CodeKindPromotional,
		Value:     value,
		Credits:   credits,
		CreatedAt: s.now(),
		ExpiresAt: s.now().Add(ttl),
	}
	if err := s.insert(ctx, code); err != nil {
		return nil, err
	}
	return code, nil
}

// RedeemPromo consumes a promotional code and grants its credit payload to
// the account. Returns the number of credits granted.
func (s *Service) RedeemPromo(ctx context.Context, value string, accountID uuid.UUID) (int, error) {
	if strings.TrimSpace(value) == "" {
		return 0, ErrInvalidCode
	}
	value = strings.ToUpper(strings.TrimSpace(value))
	code, err := s.consume(ctx, models.CodeKindPromotional, value, "", &accountID)
	if err != nil {
		return 0, err
	}
	if _, err := s.ledger.AddCredits(ctx, accountID, code.Credits, "code: "+value); err != nil {
		return 0, err
	}
	return code.Credits, nil
}

// PurgeExpired garbage-collects expired unused codes.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	var n int64
	err := s.exec.Do(ctx, "codes.purge_expired", func(ctx context.Context) error {
		var err error
		n, err = s.store.PurgeExpired(ctx, s.now())
		return err
	})
	return n, err
}

// consume looks up the unused code and flips it used with a conditional
// update. A lost race on the conditional update reads as ErrInvalidCode, so a
// code is consumable exactly once.
func (s *Service) consume(ctx context.Context, kind, value, email string, usedBy *uuid.UUID) (*models.Code, error) {
	var code *models.Code
	err := s.exec.Do(ctx, "codes.find", func(ctx context.Context) error {
		var err error
		code, err = s.store.FindUnused(ctx, kind, value, email)
		return err
	})
	if err != nil {
		return nil, err
	}
	if code == nil {
		return nil, ErrInvalidCode
	}
	if code.Expired(s.now()) {
		return nil, ErrExpiredCode
	}
	var ok bool
	usedAt := s.now()
	err = s.exec.Do(ctx, "codes.mark_used", func(ctx context.Context) error {
		var err error
		ok, err = s.store.MarkUsed(ctx, code.ID, usedAt, usedBy)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCode
	}
	code.Used = true
	code.UsedAt = &usedAt
	code.UsedBy = usedBy
	return code, nil
}

func (s *Service) insert(ctx context.Context, code *models.Code) error {
	return s.exec.Do(ctx, "codes.insert", func(ctx context.Context) error {
		return s.store.Insert(ctx, code)
	})
}

// randDigits draws n decimal digits from a cryptographically secure source.
func randDigits(n int) (string, error) {
	buf := make([]byte, n)
	for i := range buf {
		v, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("random digit: %w", err)
		}
		buf[i] = '0' + byte(v.Int64())
	}
	return string(buf), nil
}
