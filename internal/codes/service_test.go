package codes

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lumiprint/backend/internal/models"
	"github.com/lumiprint/backend/internal/remote"
)

// ---------------------------------------------------------------------------
// In-memory mocks
// ---------------------------------------------------------------------------

type mockCodeStore struct {
	mu    sync.Mutex
	codes map[uuid.UUID]*models.Code
}

func newMockCodeStore() *mockCodeStore {
	return &mockCodeStore{codes: make(map[uuid.UUID]*models.Code)}
}

func (m *mockCodeStore) Insert(_ context.Context, c *models.Code) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.codes[c.ID] = &cp
	return nil
}

func (m *mockCodeStore) FindUnused(_ context.Context, kind, value, email string) (*models.Code, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.codes {
		if c.Kind == kind && c.Value == value && !c.Used && (email == "" || c.Email == email) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockCodeStore) MarkUsed(_ context.Context, id uuid.UUID, usedAt time.Time, usedBy *uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.codes[id]
	if !ok || c.Used {
		return false, nil
	}
	c.Used = true
	c.UsedAt = &usedAt
	c.UsedBy = usedBy
	return true, nil
}

func (m *mockCodeStore) PurgeExpired(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, c := range m.codes {
		if !c.Used && c.ExpiresAt.Before(before) {
			delete(m.codes, id)
			n++
		}
	}
	return n, nil
}

func (m *mockCodeStore) get(id uuid.UUID) *models.Code {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.codes[id]; ok {
		cp := *c
		return &cp
	}
	return nil
}

type mockAuth struct {
	mu        sync.Mutex
	accounts  map[string]*models.Account // by email
	verified  map[uuid.UUID]bool
	passwords map[uuid.UUID]string

	failVerify error
}

func newMockAuth(accounts ...*models.Account) *mockAuth {
	m := &mockAuth{
		accounts:  make(map[string]*models.Account),
		verified:  make(map[uuid.UUID]bool),
		passwords: make(map[uuid.UUID]string),
	}
	for _, a := range accounts {
		cp := *a
		m.accounts[a.Email] = &cp
	}
	return m
}

func (m *mockAuth) LookupByEmail(_ context.Context, email string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[email]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *mockAuth) MarkEmailVerified(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failVerify != nil {
		return m.failVerify
	}
	m.verified[id] = true
	return nil
}

func (m *mockAuth) UpdatePassword(_ context.Context, id uuid.UUID, newPassword string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passwords[id] = newPassword
	return nil
}

type mockGranter struct {
	mu      sync.Mutex
	grants  map[uuid.UUID]int
	reasons []string
	fail    error
}

func newMockGranter() *mockGranter {
	return &mockGranter{grants: make(map[uuid.UUID]int)}
}

func (m *mockGranter) AddCredits(_ context.Context, id uuid.UUID, amount int, reason string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return 0, m.fail
	}
	m.grants[id] += amount
	m.reasons = append(m.reasons, reason)
	return m.grants[id], nil
}

type mockMailer struct {
	mu    sync.Mutex
	sent  []string
	codes []string
}

func (m *mockMailer) SendVerificationCode(_ context.Context, email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, email)
	m.codes = append(m.codes, code)
	return nil
}

func (m *mockMailer) SendPasswordResetCode(_ context.Context, email, code string) error {
	return m.SendVerificationCode(context.Background(), email, code)
}

// ---------------------------------------------------------------------------

func testExec() *remote.Executor {
	return remote.New(remote.Config{
		Timeout:     time.Second,
		MaxAttempts: 2,
		Backoff:     time.Millisecond,
		PoolSize:    5,
	}, nil)
}

func newTestService(store Store, auth AuthProvider, granter CreditGranter, mailer Mailer) *Service {
	return NewService(DefaultConfig(), store, testExec(), auth, granter, mailer, nil)
}

func TestIssueVerificationShapeAndMail(t *testing.T) {
	store := newMockCodeStore()
	mailer := &mockMailer{}
	acc := &models.Account{ID: uuid.New(), Email: "user@example.com"}
	svc := newTestService(store, newMockAuth(acc), newMockGranter(), mailer)

	value, err := svc.IssueVerification(context.Background(), acc.ID, acc.Email)
	if err != nil {
		t.Fatalf("IssueVerification: %v", err)
	}
	if len(value) != 6 {
		t.Errorf("code length = %d, want 6", len(value))
	}
	for _, c := range value {
		if c < '0' || c > '9' {
			t.Errorf("code %q contains non-digit %q", value, c)
		}
	}
	if len(mailer.sent) != 1 || mailer.sent[0] != acc.Email {
		t.Errorf("mail sent to %v, want [%s]", mailer.sent, acc.Email)
	}
}

func TestRedeemVerificationGrantsBonusAndFlag(t *testing.T) {
	store := newMockCodeStore()
	acc := &models.Account{ID: uuid.New(), Email: "user@example.com"}
	auth := newMockAuth(acc)
	granter := newMockGranter()
	svc := newTestService(store, auth, granter, &mockMailer{})
	ctx := context.Background()

	value, err := svc.IssueVerification(ctx, acc.ID, acc.Email)
	if err != nil {
		t.Fatalf("IssueVerification: %v", err)
	}
	if err := svc.RedeemVerification(ctx, value, acc.Email); err != nil {
		t.Fatalf("RedeemVerification: %v", err)
	}
	if !auth.verified[acc.ID] {
		t.Error("email verified flag not set")
	}
	if got := granter.grants[acc.ID]; got != 3 {
		t.Errorf("welcome bonus = %d, want 3", got)
	}
}

func TestRedeemIsSingleUse(t *testing.T) {
	store := newMockCodeStore()
	acc := &models.Account{ID: uuid.New(), Email: "user@example.com"}
	svc := newTestService(store, newMockAuth(acc), newMockGranter(), &mockMailer{})
	ctx := context.Background()

	value, err := svc.IssueVerification(ctx, acc.ID, acc.Email)
	if err != nil {
		t.Fatalf("IssueVerification: %v", err)
	}
	if err := svc.RedeemVerification(ctx, value, acc.Email); err != nil {
		t.Fatalf("first redeem: %v", err)
	}
	if err := svc.RedeemVerification(ctx, value, acc.Email); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("second redeem: expected ErrInvalidCode, got %v", err)
	}
}

func TestRedeemExpiredCodeLeavesItUnused(t *testing.T) {
	store := newMockCodeStore()
	acc := &models.Account{ID: uuid.New(), Email: "user@example.com"}
	svc := newTestService(store, newMockAuth(acc), newMockGranter(), &mockMailer{})
	ctx := context.Background()

	value, err := svc.IssueVerification(ctx, acc.ID, acc.Email)
	if err != nil {
		t.Fatalf("IssueVerification: %v", err)
	}
	// Jump past the TTL.
	svc.now = func() time.Time { return time.Now().UTC().Add(time.Hour) }

	if err := svc.RedeemVerification(ctx, value, acc.Email); !errors.Is(err, ErrExpiredCode) {
		t.Fatalf("expected ErrExpiredCode, got %v", err)
	}
	for _, c := range store.codes {
		if c.Used {
			t.Error("expired code must not be flagged used")
		}
	}
}

func TestRedeemWrongEmailIsInvalid(t *testing.T) {
	store := newMockCodeStore()
	acc := &models.Account{ID: uuid.New(), Email: "user@example.com"}
	svc := newTestService(store, newMockAuth(acc), newMockGranter(), &mockMailer{})
	ctx := context.Background()

	value, err := svc.IssueVerification(ctx, acc.ID, acc.Email)
	if err != nil {
		t.Fatalf("IssueVerification: %v", err)
	}
	if err := svc.RedeemVerification(ctx, value, "other@example.com"); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("expected ErrInvalidCode, got %v", err)
	}
}

func TestBonusFailureDoesNotUndoConsumption(t *testing.T) {
	store := newMockCodeStore()
	acc := &models.Account{ID: uuid.New(), Email: "user@example.com"}
	granter := newMockGranter()
	granter.fail = errors.New("ledger write rejected")
	svc := newTestService(store, newMockAuth(acc), granter, &mockMailer{})
	ctx := context.Background()

	value, err := svc.IssueVerification(ctx, acc.ID, acc.Email)
	if err != nil {
		t.Fatalf("IssueVerification: %v", err)
	}
	if err := svc.RedeemVerification(ctx, value, acc.Email); err != nil {
		t.Fatalf("redeem should succeed despite bonus failure: %v", err)
	}
	found := false
	for _, c := range store.codes {
		if c.Value == value && c.Used {
			found = true
		}
	}
	if !found {
		t.Error("code should stay consumed after bonus failure")
	}
}

func TestPromoRedeemUppercasesAndGrants(t *testing.T) {
	store := newMockCodeStore()
	acc := &models.Account{ID: uuid.New(), Email: "user@example.com"}
	granter := newMockGranter()
	svc := newTestService(store, newMockAuth(acc), granter, &mockMailer{})
	ctx := context.Background()

	if _, err := svc.IssuePromo(ctx, "spring25", 25, time.Hour); err != nil {
		t.Fatalf("IssuePromo: %v", err)
	}
	granted, err := svc.RedeemPromo(ctx, "Spring25", acc.ID)
	if err != nil {
		t.Fatalf("RedeemPromo: %v", err)
	}
	if granted != 25 {
		t.Errorf("granted = %d, want 25", granted)
	}
	if got := granter.grants[acc.ID]; got != 25 {
		t.Errorf("account granted %d, want 25", got)
	}
	if len(granter.reasons) != 1 || !strings.Contains(granter.reasons[0], "SPRING25") {
		t.Errorf("reason should carry the upper-cased code, got %v", granter.reasons)
	}

	if _, err := svc.RedeemPromo(ctx, "SPRING25", acc.ID); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("second promo redeem: expected ErrInvalidCode, got %v", err)
	}
}

func TestResetPasswordFlow(t *testing.T) {
	store := newMockCodeStore()
	acc := &models.Account{ID: uuid.New(), Email: "user@example.com"}
	auth := newMockAuth(acc)
	svc := newTestService(store, auth, newMockGranter(), &mockMailer{})
	ctx := context.Background()

	value, err := svc.IssuePasswordReset(ctx, acc.Email)
	if err != nil {
		t.Fatalf("IssuePasswordReset: %v", err)
	}
	if len(value) != 8 {
		t.Errorf("reset code length = %d, want 8", len(value))
	}
	if err := svc.ResetPassword(ctx, value, acc.Email, "newpassword1"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if auth.passwords[acc.ID] != "newpassword1" {
		t.Error("password not updated through auth provider")
	}
	if err := svc.ResetPassword(ctx, value, acc.Email, "again"); !errors.Is(err, ErrInvalidCode) {
		t.Errorf("reused reset code: expected ErrInvalidCode, got %v", err)
	}
}

func TestIssuePasswordResetUnknownEmail(t *testing.T) {
	svc := newTestService(newMockCodeStore(), newMockAuth(), newMockGranter(), &mockMailer{})
	if _, err := svc.IssuePasswordReset(context.Background(), "nobody@example.com"); err == nil {
		t.Error("expected error for unknown email")
	}
}

func TestPurgeExpiredRemovesOnlyExpiredUnused(t *testing.T) {
	store := newMockCodeStore()
	acc := &models.Account{ID: uuid.New(), Email: "user@example.com"}
	svc := newTestService(store, newMockAuth(acc), newMockGranter(), &mockMailer{})
	ctx := context.Background()

	live, err := svc.IssueVerification(ctx, acc.ID, acc.Email)
	if err != nil {
		t.Fatalf("IssueVerification: %v", err)
	}
	expired := &models.Code{
		ID: uuid.New(), Kind: models.CodeKindVerification, Value: "000000",
		Email: acc.Email, CreatedAt: time.Now().Add(-2 * time.Hour), ExpiresAt: time.Now().Add(-time.Hour),
	}
	if err := store.Insert(ctx, expired); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	n, err := svc.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d codes, want 1", n)
	}
	if store.get(expired.ID) != nil {
		t.Error("expired code should be gone")
	}
	if c, _ := store.FindUnused(ctx, models.CodeKindVerification, live, acc.Email); c == nil {
		t.Error("live code should survive the purge")
	}
}
