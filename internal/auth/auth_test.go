package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"eventguard.org/internal/roles"
)

func setSecret(t *testing.T) {
	t.Helper()
	t.Setenv("EVENTGUARD_AUTH_SECRET", "test-secret")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
}

func TestGenerateAndParseToken(t *testing.T) {
	setSecret(t)

	token, err := GenerateToken("user-1", "alice", roles.Room)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.Username != "alice" {
		t.Fatalf("unexpected username: %s", claims.Username)
	}
	if claims.Role != "room" {
		t.Fatalf("unexpected role: %s", claims.Role)
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 4*time.Hour || ttl > 5*time.Hour {
		t.Fatalf("unexpected validity window: %v", ttl)
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	setSecret(t)

	for _, token := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("ParseAndValidate(%q): expected ErrInvalidToken, got %v", token, err)
		}
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	setSecret(t)

	past := time.Now().UTC().Add(-6 * time.Hour)
	claims := Claims{
		Username: "alice",
		Role:     "room",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "eventguard",
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(past),
			ExpiresAt: jwt.NewNumericDate(past.Add(TokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := ParseAndValidate(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestParseRejectsUnknownRoleClaim(t *testing.T) {
	setSecret(t)

	now := time.Now().UTC()
	claims := Claims{
		Username: "mallory",
		Role:     "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "eventguard",
			Subject:   "user-1",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := ParseAndValidate(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

type fakeDirectory struct {
	principals map[string]Principal
}

func (f *fakeDirectory) LookupPrincipal(_ context.Context, id string) (Principal, error) {
	p, ok := f.principals[id]
	if !ok {
		return Principal{}, ErrPrincipalNotFound
	}
	return p, nil
}

func TestAuthenticatorRejectsUnapproved(t *testing.T) {
	setSecret(t)

	dir := &fakeDirectory{principals: map[string]Principal{
		"user-1": {ID: "user-1", Username: "alice", Role: roles.Ground, Approved: false},
	}}
	authn := NewAuthenticator(dir)

	token, err := GenerateToken("user-1", "alice", roles.Ground)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := authn.Authenticate(context.Background(), token); !errors.Is(err, ErrNotApproved) {
		t.Fatalf("expected ErrNotApproved, got %v", err)
	}
}

func TestAuthenticatorUsesDirectoryRole(t *testing.T) {
	setSecret(t)

	// Token minted while the principal was ground; the directory now says room.
	dir := &fakeDirectory{principals: map[string]Principal{
		"user-1": {ID: "user-1", Username: "alice", Role: roles.Room, Approved: true},
	}}
	authn := NewAuthenticator(dir)

	token, err := GenerateToken("user-1", "alice", roles.Ground)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	identity, err := authn.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if identity.Role != roles.Room {
		t.Fatalf("expected directory role room, got %s", identity.Role)
	}
}

func TestAuthenticatorUnknownSubject(t *testing.T) {
	setSecret(t)

	authn := NewAuthenticator(&fakeDirectory{principals: map[string]Principal{}})
	token, err := GenerateToken("ghost", "ghost", roles.Ground)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if _, err := authn.Authenticate(context.Background(), token); !errors.Is(err, ErrPrincipalNotFound) {
		t.Fatalf("expected ErrPrincipalNotFound, got %v", err)
	}
}

func TestContextIdentityRoundTrip(t *testing.T) {
	ctx := ContextWithIdentity(context.Background(), Identity{ID: "user-7", Username: "bob", Role: roles.Head})
	id, ok := IdentityFromContext(ctx)
	if !ok || id.ID != "user-7" || id.Role != roles.Head {
		t.Fatalf("unexpected identity: %+v, ok=%v", id, ok)
	}
	if _, ok := IdentityFromContext(context.Background()); ok {
		t.Fatal("expected no identity in empty context")
	}
}
