package models

import (
	"time"

	"github.com/google/uuid"
)

// Code kinds. Each kind lives in its own collection-like table partition so a
// verification code can never be redeemed as a reset code or vice versa.
const (
	CodeKindVerification  = "verification"
	CodeKindPasswordReset = "password_reset"
	CodeKindPromotional   = "promotional"
)

// Code is a time-limited single-use secret. Used transitions false->true
// exactly once; an expired code is never consumable regardless of Used.
type Code struct {
	ID        uuid.UUID  `json:"id"`
	Kind      string     `json:"kind"`
	Value     string     `json:"value"`
	AccountID *uuid.UUID `json:"account_id,omitempty"`
	Email     string     `json:"email,omitempty"`
	Credits   int        `json:"credits,omitempty"`
	Used      bool       `json:"used"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	UsedBy    *uuid.UUID `json:"used_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// Expired reports whether the code's TTL has elapsed at the given instant.
func (c *Code) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
