package models

import (
	"time"

	"github.com/google/uuid"
)

// Reason tags used for credit_history entries. Free-text reasons are allowed;
// these are the ones the system itself writes.
const (
	LedgerReasonJobUse       = "job_use"
	LedgerReasonJobRefund    = "failed job compensation"
	LedgerReasonWelcomeBonus = "email verification bonus"
	LedgerReasonPurchase     = "credit purchase"
)

// LedgerEntry is an append-only audit record. The delta is signed: debits are
// negative, credits positive. Entries are never mutated or deleted.
type LedgerEntry struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"account_id"`
	Delta     int       `json:"delta"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}
