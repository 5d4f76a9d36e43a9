package token

import (
	"errors"
	"testing"
	"time"

	"github.com/vibast-solutions/ms-go-memberships/app/entity"
)

func TestIssueAndParsePersistedIdentity(t *testing.T) {
	m := NewManager("test-secret", time.Hour)
	accountID := uint64(42)

	signed, expiresAt, err := m.Issue(entity.IdentityClaim{
		AccountID: &accountID,
		Persisted: true,
		Email:     "member@example.com",
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Fatal("expected future expiry")
	}

	claim, err := m.Parse(signed)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if !claim.Persisted || claim.AccountID == nil || *claim.AccountID != 42 {
		t.Fatalf("expected persisted identity with account 42, got %+v", claim)
	}
	if claim.Email != "member@example.com" {
		t.Fatalf("unexpected email: %s", claim.Email)
	}
}

func TestIssueAndParseTokenOnlyIdentity(t *testing.T) {
	m := NewManager("test-secret", time.Hour)

	signed, _, err := m.Issue(entity.IdentityClaim{
		Email:     "new@example.com",
		FirstName: "New",
		LastName:  "Member",
		Provider:  "google",
	})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	claim, err := m.Parse(signed)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if claim.Persisted || claim.AccountID != nil {
		t.Fatalf("expected token-only identity, got %+v", claim)
	}
	if claim.Provider != "google" {
		t.Fatalf("unexpected identity provider: %s", claim.Provider)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	issuer := NewManager("secret-a", time.Hour)
	parser := NewManager("secret-b", time.Hour)

	signed, _, err := issuer.Issue(entity.IdentityClaim{Email: "member@example.com"})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	if _, err := parser.Parse(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	m := NewManager("test-secret", time.Minute)
	m.now = func() time.Time { return time.Now().Add(-time.Hour) }

	signed, _, err := m.Issue(entity.IdentityClaim{Email: "member@example.com"})
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	m.now = time.Now
	if _, err := m.Parse(signed); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestIssueRequiresEmail(t *testing.T) {
	m := NewManager("test-secret", time.Hour)
	if _, _, err := m.Issue(entity.IdentityClaim{}); err == nil {
		t.Fatal("expected error for empty email")
	}
}
