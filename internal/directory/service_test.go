package directory

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"eventguard.org/internal/auth"
	"eventguard.org/internal/roles"
)

func setSecret(t *testing.T) {
	t.Helper()
	t.Setenv("EVENTGUARD_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)
}

type captureMailer struct {
	to      string
	subject string
	body    string
	sent    int
}

func (m *captureMailer) Send(_ context.Context, to, subject, htmlBody string) error {
	m.to = to
	m.subject = subject
	m.body = htmlBody
	m.sent++
	return nil
}

func TestRegisterDefaultsToPendingGround(t *testing.T) {
	setSecret(t)
	svc := NewService(NewInMemory())

	user, err := svc.Register(context.Background(), "alice", "alice@example.com", "secret1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if user.Role != roles.Ground {
		t.Fatalf("expected default ground role, got %s", user.Role)
	}
	if user.Approved {
		t.Fatal("new registrations must be pending")
	}
	if user.PasswordHash == "" || user.PasswordHash == "secret1" {
		t.Fatal("password must be stored hashed")
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	setSecret(t)
	svc := NewService(NewInMemory())
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "alice@example.com", "secret1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Register(ctx, "alice", "other@example.com", "secret1"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists for username, got %v", err)
	}
	if _, err := svc.Register(ctx, "bob", "alice@example.com", "secret1"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists for email, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	setSecret(t)
	svc := NewService(NewInMemory())
	ctx := context.Background()

	cases := []struct {
		name                      string
		username, email, password string
	}{
		{"blank username", "", "a@example.com", "secret1"},
		{"bad email", "alice", "not-an-email", "secret1"},
		{"short password", "alice", "a@example.com", "short"},
	}
	for _, tc := range cases {
		if _, err := svc.Register(ctx, tc.username, tc.email, tc.password); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", tc.name, err)
		}
	}
}

func TestApprovalFlow(t *testing.T) {
	setSecret(t)
	svc := NewService(NewInMemory())
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice", "alice@example.com", "secret1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	// Pending principals never receive a token.
	if _, _, err := svc.Login(ctx, "alice@example.com", "secret1"); !errors.Is(err, ErrAwaitingApproval) {
		t.Fatalf("expected ErrAwaitingApproval, got %v", err)
	}

	// Only a head may approve.
	if _, err := svc.Approve(ctx, roles.Room, user.ID, "room"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	approved, err := svc.Approve(ctx, roles.Head, user.ID, "room")
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if !approved.Approved || approved.Role != roles.Room {
		t.Fatalf("unexpected state after approval: %+v", approved)
	}

	token, logged, err := svc.Login(ctx, "alice@example.com", "secret1")
	if err != nil {
		t.Fatalf("Login after approval: %v", err)
	}
	if logged.Role != roles.Room {
		t.Fatalf("expected reassigned role room, got %s", logged.Role)
	}
	claims, err := auth.ParseAndValidate(token)
	if err != nil {
		t.Fatalf("issued token invalid: %v", err)
	}
	if claims.Role != "room" {
		t.Fatalf("token embeds role %q, want room", claims.Role)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	setSecret(t)
	svc := NewService(NewInMemory())
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice", "alice@example.com", "secret1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Approve(ctx, roles.Head, user.ID, ""); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	if _, _, err := svc.Login(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown email, got %v", err)
	}
}

func TestFederatedSignInAutoApproves(t *testing.T) {
	setSecret(t)
	svc := NewService(NewInMemory())
	ctx := context.Background()

	token, user, err := svc.FederatedSignIn(ctx, "Carol Example", "carol@example.com")
	if err != nil {
		t.Fatalf("FederatedSignIn: %v", err)
	}
	if !user.Approved {
		t.Fatal("federated accounts must be approved immediately")
	}
	if user.PasswordHash != "" {
		t.Fatal("federated accounts carry no password credential")
	}
	if token == "" {
		t.Fatal("expected token")
	}

	// Second sign-in resolves the same account.
	_, again, err := svc.FederatedSignIn(ctx, "ignored", "carol@example.com")
	if err != nil {
		t.Fatalf("second FederatedSignIn: %v", err)
	}
	if again.ID != user.ID {
		t.Fatalf("expected existing account %s, got %s", user.ID, again.ID)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	setSecret(t)
	mailer := &captureMailer{}
	svc := NewService(NewInMemory(), WithMailer(mailer, "http://localhost:5173"))
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice", "alice@example.com", "secret1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Approve(ctx, roles.Head, user.ID, ""); err != nil {
		t.Fatalf("Approve: %v", err)
	}

	if err := svc.ForgotPassword(ctx, "alice@example.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	if mailer.sent != 1 || mailer.to != "alice@example.com" {
		t.Fatalf("expected one reset email to alice, got %d to %q", mailer.sent, mailer.to)
	}

	// Extract the token from the reset link.
	idx := strings.Index(mailer.body, "/reset-password/")
	if idx < 0 {
		t.Fatalf("reset link missing from body: %s", mailer.body)
	}
	rest := mailer.body[idx+len("/reset-password/"):]
	token := rest[:strings.Index(rest, `"`)]

	if err := svc.ResetPassword(ctx, token, "newsecret"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if _, _, err := svc.Login(ctx, "alice@example.com", "newsecret"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if _, _, err := svc.Login(ctx, "alice@example.com", "secret1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password must no longer work, got %v", err)
	}

	// Token is single-use.
	if err := svc.ResetPassword(ctx, token, "anothersecret"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expected ErrResetTokenInvalid on reuse, got %v", err)
	}
}

func TestResetTokenExpiry(t *testing.T) {
	setSecret(t)
	current := time.Now().UTC()
	svc := NewService(NewInMemory(), WithClock(func() time.Time { return current }))
	mailer := &captureMailer{}
	WithMailer(mailer, "http://localhost:5173")(svc)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice", "alice@example.com", "secret1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Approve(ctx, roles.Head, user.ID, ""); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if err := svc.ForgotPassword(ctx, "alice@example.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	idx := strings.Index(mailer.body, "/reset-password/")
	rest := mailer.body[idx+len("/reset-password/"):]
	token := rest[:strings.Index(rest, `"`)]

	current = current.Add(2 * time.Hour)
	if err := svc.ResetPassword(ctx, token, "newsecret"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expected ErrResetTokenInvalid after expiry, got %v", err)
	}
}

func TestForgotPasswordUnknownEmailIsSilent(t *testing.T) {
	setSecret(t)
	mailer := &captureMailer{}
	svc := NewService(NewInMemory(), WithMailer(mailer, "http://localhost:5173"))

	if err := svc.ForgotPassword(context.Background(), "ghost@example.com"); err != nil {
		t.Fatalf("expected silent success, got %v", err)
	}
	if mailer.sent != 0 {
		t.Fatal("no email should be sent for unknown addresses")
	}
}
