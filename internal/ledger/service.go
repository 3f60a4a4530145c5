// Package ledger owns the credit balance and its append-only audit trail.
package ledger

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lumiprint/backend/internal/models"
	"github.com/lumiprint/backend/internal/remote"
)

// ErrInsufficientFunds is returned when the account balance is too low for the
// requested debit. The balance returned alongside it is the pre-debit balance.
var ErrInsufficientFunds = errors.New("insufficient credits")

// ErrInvalidAmount is returned for zero or negative amounts, before any remote
// call is made.
var ErrInvalidAmount = errors.New("amount must be positive")

// ErrAccountNotFound is returned by Debit when the account does not exist.
var ErrAccountNotFound = errors.New("account not found")

// Store is the minimal remote-store surface the ledger needs.
type Store interface {
	// Balance returns the current balance and whether the account exists.
	Balance(ctx context.Context, accountID uuid.UUID) (int, bool, error)
	// AddCredits adds amount to the account, creating it with balance=amount
	// if missing, and returns the new balance.
	AddCredits(ctx context.Context, accountID uuid.UUID, amount int) (int, error)
	// Debit subtracts amount only if the balance covers it. ok=false means the
	// condition failed (missing account or insufficient balance); no state
	// changed in that case.
	Debit(ctx context.Context, accountID uuid.UUID, amount int) (newBalance int, ok bool, err error)
	AppendEntry(ctx context.Context, entry *models.LedgerEntry) error
	Entries(ctx context.Context, accountID uuid.UUID) ([]models.LedgerEntry, error)
}

// Service routes every store call through the remote executor. The debit is
// the authoritative state change; the history entry is an audit convenience
// written best-effort after it.
type Service struct {
	store Store
	exec  *remote.Executor
	log   *slog.Logger
}

func NewService(store Store, exec *remote.Executor, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{store: store, exec: exec, log: log}
}

// Balance returns 0 for accounts that do not exist yet.
func (s *Service) Balance(ctx context.Context, accountID uuid.UUID) (int, error) {
	var balance int
	err := s.exec.Do(ctx, "ledger.balance", func(ctx context.Context) error {
		var err error
		balance, _, err = s.store.Balance(ctx, accountID)
		return err
	})
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// AddCredits grants amount to the account, creating it on first grant.
func (s *Service) AddCredits(ctx context.Context, accountID uuid.UUID, amount int, reason string) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	var newBalance int
	err := s.exec.Do(ctx, "ledger.add_credits", func(ctx context.Context) error {
		var err error
		newBalance, err = s.store.AddCredits(ctx, accountID, amount)
		return err
	})
	if err != nil {
		return 0, err
	}
	s.appendEntry(ctx, accountID, amount, reason)
	return newBalance, nil
}

// Debit atomically subtracts amount if the balance covers it. On refusal the
// pre-debit balance is returned together with ErrInsufficientFunds or
// ErrAccountNotFound.
func (s *Service) Debit(ctx context.Context, accountID uuid.UUID, amount int) (int, error) {
	if amount <= 0 {
		return 0, ErrInvalidAmount
	}
	var (
		newBalance int
		ok         bool
	)
	err := s.exec.Do(ctx, "ledger.debit", func(ctx context.Context) error {
		var err error
		newBalance, ok, err = s.store.Debit(ctx, accountID, amount)
		return err
	})
	if err != nil {
		return 0, err
	}
	if !ok {
		balance, exists, rerr := s.currentBalance(ctx, accountID)
		if rerr != nil {
			return 0, rerr
		}
		if !exists {
			return 0, ErrAccountNotFound
		}
		return balance, ErrInsufficientFunds
	}
	s.appendEntry(ctx, accountID, -amount, models.LedgerReasonJobUse)
	return newBalance, nil
}

// Refund is a compensating credit grant after a failed paid job.
func (s *Service) Refund(ctx context.Context, accountID uuid.UUID, amount int, reason string) (int, error) {
	if reason == "" {
		reason = models.LedgerReasonJobRefund
	}
	return s.AddCredits(ctx, accountID, amount, reason)
}

// History returns the account's audit trail, newest first.
func (s *Service) History(ctx context.Context, accountID uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	err := s.exec.Do(ctx, "ledger.history", func(ctx context.Context) error {
		var err error
		entries, err = s.store.Entries(ctx, accountID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Service) currentBalance(ctx context.Context, accountID uuid.UUID) (int, bool, error) {
	var (
		balance int
		exists  bool
	)
	err := s.exec.Do(ctx, "ledger.balance", func(ctx context.Context) error {
		var err error
		balance, exists, err = s.store.Balance(ctx, accountID)
		return err
	})
	return balance, exists, err
}

// appendEntry writes the audit record for an already-committed mutation. Its
// failure is logged and never rolls the mutation back.
func (s *Service) appendEntry(ctx context.Context, accountID uuid.UUID, delta int, reason string) {
	entry := &models.LedgerEntry{
		ID:        uuid.New(),
		AccountID: accountID,
		Delta:     delta,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}
	err := s.exec.Do(ctx, "ledger.append_entry", func(ctx context.Context) error {
		return s.store.AppendEntry(ctx, entry)
	})
	if err != nil {
		s.log.Error("ledger history append failed, balance change stands",
			"account_id", accountID, "delta", delta, "reason", reason, "error", err)
	}
}
