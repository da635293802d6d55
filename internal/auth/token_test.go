package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/digibank/digibank/internal/credential"
)

func TestIssueAndParse(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)
	token, err := issuer.Issue(credential.Subject{ID: "acc-1", Email: "a@b.com", Role: RoleAccount, AccountNumber: "1001"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if token.TokenType != "Bearer" || token.ExpiresIn != 3600 {
		t.Fatalf("unexpected token metadata %+v", token)
	}

	claims, err := issuer.Parse(token.AccessToken)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "acc-1" || claims.Role != RoleAccount || claims.AccountNumber != "1001" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestParseRejectsForeignAndExpiredTokens(t *testing.T) {
	issuer := NewIssuer("secret", time.Hour)
	other := NewIssuer("other", time.Hour)

	token, err := other.Issue(credential.Subject{ID: "u-1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := issuer.Parse(token.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token for wrong secret, got %v", err)
	}

	issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	stale, err := issuer.Issue(credential.Subject{ID: "u-1"})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	issuer.now = time.Now
	if _, err := issuer.Parse(stale.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}

	if _, err := issuer.Parse("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected malformed token to be rejected, got %v", err)
	}
}

func TestCanActOn(t *testing.T) {
	operator := &Claims{Role: RoleUser}
	holder := &Claims{Role: RoleAccount}
	holder.Subject = "acc-1"

	if !operator.CanActOn("acc-2") {
		t.Fatal("operators may act on any account")
	}
	if !holder.CanActOn("acc-1") || holder.CanActOn("acc-2") {
		t.Fatal("holders may only act on their own account")
	}
	if (&Claims{Role: "guest"}).CanActOn("acc-1") {
		t.Fatal("unknown roles must be rejected")
	}
}
