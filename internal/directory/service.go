package directory

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"eventguard.org/internal/audit"
	"eventguard.org/internal/auth"
	"eventguard.org/internal/ids"
	"eventguard.org/internal/roles"
)

const (
	minPasswordLength = 6
	resetTokenTTL     = time.Hour
)

// Mailer delivers outbound mail. The directory only needs the send half.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody string) error
}

// Service provides registration, login, approval and password-reset
// operations over a Store.
type Service struct {
	store        Store
	mailer       Mailer
	resetBaseURL string
	now          func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithMailer enables password-reset email delivery.
func WithMailer(m Mailer, resetBaseURL string) Option {
	return func(s *Service) {
		s.mailer = m
		s.resetBaseURL = strings.TrimRight(resetBaseURL, "/")
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs a directory service.
func NewService(store Store, opts ...Option) *Service {
	svc := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// LookupPrincipal implements auth.PrincipalLookup.
func (s *Service) LookupPrincipal(ctx context.Context, id string) (auth.Principal, error) {
	u, err := s.store.Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return auth.Principal{}, auth.ErrPrincipalNotFound
		}
		return auth.Principal{}, err
	}
	return auth.Principal{
		ID:       u.ID,
		Username: u.Username,
		Role:     u.Role,
		Approved: u.Approved,
	}, nil
}

// Register creates a pending principal with the default ground role.
// A registered user cannot participate until a head approves it.
func (s *Service) Register(ctx context.Context, username, email, password string) (*User, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: a valid email is required", ErrInvalidInput)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	user := &User{
		ID:           ids.New(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         roles.Ground,
		Approved:     false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, user); err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "directory.user.signup", map[string]any{
		"user_id":  user.ID,
		"username": user.Username,
	})
	return user, nil
}

// Login verifies credentials and issues a session token. An unapproved
// principal is rejected before any token is issued.
func (s *Service) Login(ctx context.Context, email, password string) (string, *User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return "", nil, ErrInvalidCredentials
	}
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if !user.Approved {
		return "", nil, ErrAwaitingApproval
	}
	if err := auth.VerifyPassword(user.PasswordHash, password); err != nil {
		return "", nil, ErrInvalidCredentials
	}
	token, err := auth.GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		return "", nil, err
	}
	_ = audit.LogEvent(ctx, "directory.user.login", map[string]any{
		"user_id": user.ID,
		"role":    user.Role.String(),
	})
	return token, user, nil
}

// FederatedSignIn finds or creates a principal for an externally verified
// identity. Federated accounts are approved immediately and carry no
// password credential.
func (s *Service) FederatedSignIn(ctx context.Context, username, email string) (string, *User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if !strings.Contains(email, "@") {
		return "", nil, fmt.Errorf("%w: a valid email is required", ErrInvalidInput)
	}
	user, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		now := s.now().UTC()
		user = &User{
			ID:        ids.New(),
			Username:  strings.TrimSpace(username),
			Email:     email,
			Role:      roles.Ground,
			Approved:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.store.Create(ctx, user); err != nil {
			return "", nil, err
		}
		_ = audit.LogEvent(ctx, "directory.user.federated_signup", map[string]any{
			"user_id": user.ID,
		})
	} else if err != nil {
		return "", nil, err
	}
	token, err := auth.GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// ListPending returns unapproved principals. Head only.
func (s *Service) ListPending(ctx context.Context, actor roles.Role) ([]*User, error) {
	if actor != roles.Head {
		return nil, ErrForbidden
	}
	return s.store.ListPending(ctx)
}

// Approve transitions a pending principal to approved, optionally
// reassigning its role in the same transition. Head only; the approved
// state is terminal.
func (s *Service) Approve(ctx context.Context, actor roles.Role, id, newRole string) (*User, error) {
	if actor != roles.Head {
		return nil, ErrForbidden
	}
	var role roles.Role
	if strings.TrimSpace(newRole) != "" {
		parsed, err := roles.Parse(newRole)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
		}
		role = parsed
	}
	user, err := s.store.Approve(ctx, id, role)
	if err != nil {
		return nil, err
	}
	_ = audit.LogEvent(ctx, "directory.user.approve", map[string]any{
		"user_id": user.ID,
		"role":    user.Role.String(),
	})
	return user, nil
}

// Me returns the profile for an authenticated principal.
func (s *Service) Me(ctx context.Context, id string) (*User, error) {
	return s.store.Find(ctx, id)
}

// ForgotPassword issues a reset token and emails a reset link. Unknown
// emails succeed silently so the endpoint does not reveal registration
// status.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return err
	}
	token := hex.EncodeToString(raw)
	expires := s.now().UTC().Add(resetTokenTTL)
	if err := s.store.SetResetToken(ctx, user.ID, hashResetToken(token), expires); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "directory.user.reset_requested", map[string]any{
		"user_id": user.ID,
	})

	if s.mailer == nil {
		return nil
	}
	resetURL := s.resetBaseURL + "/reset-password/" + token
	body := fmt.Sprintf(
		"<p>Hi %s,</p>"+
			"<p>You requested a password reset for your EventGuard account.</p>"+
			"<p>Please follow the link below within one hour:</p>"+
			`<p><a href="%s">Reset Password</a></p>`+
			"<p>If you did not request this, ignore this email.</p>",
		user.Username, resetURL)
	return s.mailer.Send(ctx, user.Email, "Password Reset - EventGuard", body)
}

// ResetPassword consumes a valid reset token and replaces the credential.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	if len(password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	user, err := s.store.FindByResetToken(ctx, hashResetToken(token))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrResetTokenInvalid
		}
		return err
	}
	if s.now().UTC().After(user.ResetTokenExpires) {
		return ErrResetTokenInvalid
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.store.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}
	if err := s.store.ClearResetToken(ctx, user.ID); err != nil {
		return err
	}
	_ = audit.LogEvent(ctx, "directory.user.reset_complete", map[string]any{
		"user_id": user.ID,
	})
	return nil
}

func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
