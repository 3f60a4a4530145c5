package auth

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/lumiprint/backend/internal/models"
	"github.com/lumiprint/backend/internal/remote"
)

type mockStore struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]*models.Account
}

func newMockStore() *mockStore {
	return &mockStore{accounts: make(map[uuid.UUID]*models.Account)}
}

func (m *mockStore) Create(_ context.Context, acc *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *acc
	m.accounts[acc.ID] = &cp
	return nil
}

func (m *mockStore) GetByID(_ context.Context, id uuid.UUID) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[id]
	if !ok {
		return nil, errors.New("no rows in result set")
	}
	cp := *acc
	return &cp, nil
}

func (m *mockStore) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, acc := range m.accounts {
		if acc.Email == email {
			cp := *acc
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *mockStore) SetEmailVerified(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if acc, ok := m.accounts[id]; ok {
		acc.EmailVerified = true
	}
	return nil
}

func (m *mockStore) SetPasswordHash(_ context.Context, id uuid.UUID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if acc, ok := m.accounts[id]; ok {
		acc.PasswordHash = hash
	}
	return nil
}

type mockIssuer struct {
	mu     sync.Mutex
	issued []string
}

func (m *mockIssuer) IssueVerification(_ context.Context, _ uuid.UUID, email string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issued = append(m.issued, email)
	return "123456", nil
}

func testService(store Store) *Service {
	exec := remote.New(remote.Config{
		Timeout: time.Second, MaxAttempts: 2, Backoff: time.Millisecond, PoolSize: 2,
	}, nil)
	return NewService(store, exec, "test-secret")
}

func TestRegisterCreatesUnverifiedAccount(t *testing.T) {
	store := newMockStore()
	issuer := &mockIssuer{}
	svc := testService(store)
	svc.SetCodeIssuer(issuer)

	acc, err := svc.Register(context.Background(), "User@Example.com", "user", "hunter22")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if acc.Email != "user@example.com" {
		t.Errorf("email = %q, want lower-cased", acc.Email)
	}
	if acc.Credits != 0 {
		t.Errorf("credits = %d, want 0 before verification", acc.Credits)
	}
	if acc.EmailVerified {
		t.Error("account must start unverified")
	}
	if len(issuer.issued) != 1 || issuer.issued[0] != "user@example.com" {
		t.Errorf("issued = %v, want one verification code", issuer.issued)
	}
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	store := newMockStore()
	svc := testService(store)

	if _, err := svc.Register(context.Background(), "a@b.com", "a", "hunter22"); err != nil {
		t.Fatal(err)
	}
	_, err := svc.Register(context.Background(), "a@b.com", "other", "hunter22")
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("err = %v, want ErrDuplicateEmail", err)
	}
}

func TestLoginRequiresVerifiedEmail(t *testing.T) {
	store := newMockStore()
	svc := testService(store)
	ctx := context.Background()

	acc, err := svc.Register(ctx, "a@b.com", "a", "hunter22")
	if err != nil {
		t.Fatal(err)
	}

	if _, _, err := svc.Login(ctx, "a@b.com", "hunter22"); !errors.Is(err, ErrEmailNotVerified) {
		t.Fatalf("err = %v, want ErrEmailNotVerified", err)
	}

	if err := svc.MarkEmailVerified(ctx, acc.ID); err != nil {
		t.Fatal(err)
	}
	token, got, err := svc.Login(ctx, "a@b.com", "hunter22")
	if err != nil {
		t.Fatalf("Login after verification: %v", err)
	}
	if got.ID != acc.ID {
		t.Errorf("account id mismatch")
	}

	id, err := svc.ValidateToken(ctx, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if id != acc.ID {
		t.Errorf("token subject = %s, want %s", id, acc.ID)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	store := newMockStore()
	svc := testService(store)
	ctx := context.Background()

	acc, err := svc.Register(ctx, "a@b.com", "a", "hunter22")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.MarkEmailVerified(ctx, acc.ID); err != nil {
		t.Fatal(err)
	}

	if _, _, err := svc.Login(ctx, "a@b.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@b.com", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email err = %v, want ErrInvalidCredentials", err)
	}
}

func TestUpdatePasswordChangesLogin(t *testing.T) {
	store := newMockStore()
	svc := testService(store)
	ctx := context.Background()

	acc, err := svc.Register(ctx, "a@b.com", "a", "oldpassword")
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.MarkEmailVerified(ctx, acc.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.UpdatePassword(ctx, acc.ID, "newpassword"); err != nil {
		t.Fatal(err)
	}

	if _, _, err := svc.Login(ctx, "a@b.com", "oldpassword"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still valid: %v", err)
	}
	if _, _, err := svc.Login(ctx, "a@b.com", "newpassword"); err != nil {
		t.Fatalf("new password rejected: %v", err)
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := testService(newMockStore())
	if _, err := svc.ValidateToken(context.Background(), "not-a-token"); err == nil {
		t.Fatal("expected error for malformed token")
	}

	other := testService(newMockStore())
	other.secret = []byte("different-secret")
	token, err := other.issueToken(uuid.New())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ValidateToken(context.Background(), token); err == nil {
		t.Fatal("expected error for token signed with another secret")
	}
}
