package app_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"proctor-quiz-service/internal/app"
	"proctor-quiz-service/internal/domain"
	"proctor-quiz-service/internal/infra/memory"
)

func newAccounts() *app.Accounts {
	builtin := []domain.User{{Username: "admin", Password: "admin12345", Name: "Administrator", Role: domain.RoleAdmin}}
	return app.NewAccounts(memory.NewStore(), builtin, zap.NewNop())
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	accounts := newAccounts()

	user, err := accounts.Register(ctx, app.RegistrationForm{
		Name:            " Ana Lima ",
		Username:        "ana.lima",
		Email:           "ana@example.com",
		Password:        "secret1",
		ConfirmPassword: "secret1",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.Role != domain.RoleStudent || user.Password != "" || user.Name != "Ana Lima" {
		t.Fatalf("unexpected registered user: %+v", user)
	}

	logged, err := accounts.Login(ctx, "ana.lima", "secret1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if logged.Role != domain.RoleStudent || logged.Password != "" {
		t.Fatalf("unexpected login user: %+v", logged)
	}

	admin, err := accounts.Login(ctx, "admin", "admin12345")
	if err != nil || admin.Role != domain.RoleAdmin {
		t.Fatalf("expected admin login, got %+v err=%v", admin, err)
	}

	if _, err := accounts.Login(ctx, "ana.lima", "wrong"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	ctx := context.Background()
	accounts := newAccounts()

	_, err := accounts.Register(ctx, app.RegistrationForm{
		Username:        "abc",
		Email:           "not-an-email",
		Password:        "12345",
		ConfirmPassword: "54321",
	})
	var fields domain.ValidationErrors
	if !errors.As(err, &fields) {
		t.Fatalf("expected validation errors, got %v", err)
	}
	for _, want := range []string{"name", "username", "email", "password", "confirmPassword"} {
		if !hasField(fields, want) {
			t.Fatalf("expected error on %s, got %v", want, fields)
		}
	}
}

func TestRegisterRejectsTakenUsername(t *testing.T) {
	ctx := context.Background()
	accounts := newAccounts()
	form := app.RegistrationForm{
		Name:            "Ben",
		Username:        "benny",
		Email:           "ben@example.com",
		Password:        "secret1",
		ConfirmPassword: "secret1",
	}
	if _, err := accounts.Register(ctx, form); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := accounts.Register(ctx, form); !errors.Is(err, domain.ErrValidationFailed) {
		t.Fatalf("expected duplicate username to fail, got %v", err)
	}

	form.Username = "admin"
	_, err := accounts.Register(ctx, form)
	var fields domain.ValidationErrors
	if !errors.As(err, &fields) || !hasField(fields, "username") {
		t.Fatalf("expected built-in username to be taken, got %v", err)
	}
}
