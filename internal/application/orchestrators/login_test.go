package orchestrators

import (
	"context"
	"errors"
	"testing"

	"gymhub/internal/domain/account"
)

func seededStore(t *testing.T) *mockAccountStore {
	t.Helper()
	store := newMockAccountStore()
	_, err := ExecuteCreateAccount(context.Background(), CreateAccountInput{
		Email: "pat@gym.test", DisplayName: "Coach Pat", Password: "correct-horse-battery", Role: account.RoleCoach,
	}, CreateAccountDeps{AccountStore: store})
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return store
}

// TestExecuteLogin_Success tests that valid credentials return the session fields.
func TestExecuteLogin_Success(t *testing.T) {
	store := seededStore(t)
	res, err := ExecuteLogin(context.Background(), LoginInput{Email: "pat@gym.test", Password: "correct-horse-battery"}, LoginDeps{AccountStore: store})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.DisplayName != "Coach Pat" || res.Role != account.RoleCoach || res.AccountID == "" {
		t.Errorf("unexpected result %#v", res)
	}
}

// TestExecuteLogin_WrongPassword tests failure counting and lockout.
func TestExecuteLogin_WrongPassword(t *testing.T) {
	store := seededStore(t)
	deps := LoginDeps{AccountStore: store}
	for i := 0; i < 5; i++ {
		_, err := ExecuteLogin(context.Background(), LoginInput{Email: "pat@gym.test", Password: "wrong-password-xx"}, deps)
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}
	_, err := ExecuteLogin(context.Background(), LoginInput{Email: "pat@gym.test", Password: "correct-horse-battery"}, deps)
	if !errors.Is(err, ErrAccountLocked) {
		t.Errorf("expected ErrAccountLocked after 5 failures, got %v", err)
	}
}

// TestExecuteLogin_UnknownOrEmpty tests that unknown users and blank input look the same.
func TestExecuteLogin_UnknownOrEmpty(t *testing.T) {
	store := seededStore(t)
	for _, in := range []LoginInput{
		{Email: "nobody@gym.test", Password: "whatever-long"},
		{Email: "", Password: "x"},
		{Email: "pat@gym.test", Password: ""},
	} {
		if _, err := ExecuteLogin(context.Background(), in, LoginDeps{AccountStore: store}); !errors.Is(err, ErrInvalidCredentials) {
			t.Errorf("input %#v: expected ErrInvalidCredentials, got %v", in, err)
		}
	}
}

// TestExecuteSeedAdmin tests that the admin is only created into an empty store.
func TestExecuteSeedAdmin(t *testing.T) {
	store := newMockAccountStore()
	deps := CreateAccountDeps{AccountStore: store}
	if err := ExecuteSeedAdmin(context.Background(), deps, "admin@gym.test", "admin-password-123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a, err := store.GetByEmail(context.Background(), "admin@gym.test")
	if err != nil {
		t.Fatalf("expected admin to exist: %v", err)
	}
	if a.Role != account.RoleAdmin {
		t.Errorf("expected role admin, got %s", a.Role)
	}
	if err := ExecuteSeedAdmin(context.Background(), deps, "other@gym.test", "admin-password-123"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n, _ := store.Count(context.Background()); n != 1 {
		t.Errorf("expected seeding to be skipped, have %d accounts", n)
	}
}

// TestExecuteCreateAccount_Duplicate tests email uniqueness.
func TestExecuteCreateAccount_Duplicate(t *testing.T) {
	store := seededStore(t)
	_, err := ExecuteCreateAccount(context.Background(), CreateAccountInput{
		Email: "PAT@gym.test", Password: "another-password-1", Role: account.RoleCoach,
	}, CreateAccountDeps{AccountStore: store})
	if !errors.Is(err, ErrEmailAlreadyExists) {
		t.Errorf("expected ErrEmailAlreadyExists, got %v", err)
	}
}
