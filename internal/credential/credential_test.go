package credential

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

type mapSource map[string]Record

func (m mapSource) LookupCredential(_ context.Context, identity string) (Record, error) {
	rec, ok := m[identity]
	if !ok {
		return Record{}, ErrUnknownIdentity
	}
	return rec, nil
}

type failingSource struct{ err error }

func (f failingSource) LookupCredential(context.Context, string) (Record, error) {
	return Record{}, f.err
}

type countingHasher struct {
	inner    Hasher
	compares atomic.Int32
}

func (c *countingHasher) Hash(plain string) ([]byte, error) { return c.inner.Hash(plain) }

func (c *countingHasher) Compare(digest []byte, plain string) bool {
	c.compares.Add(1)
	return c.inner.Compare(digest, plain)
}

func newVerifier(t *testing.T) (*Verifier, *countingHasher) {
	t.Helper()
	hasher := &countingHasher{inner: NewBcryptHasher(bcrypt.MinCost)}
	digest, err := hasher.Hash("Secret#1")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	source := mapSource{
		"a@b.com": {Subject: Subject{ID: "u-1", Email: "a@b.com"}, Digest: digest},
	}
	v, err := NewVerifier(source, hasher)
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	return v, hasher
}

func TestVerifyAcceptsCorrectPassword(t *testing.T) {
	v, _ := newVerifier(t)

	subject, err := v.Verify(context.Background(), "  A@B.com", "Secret#1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if subject.ID != "u-1" {
		t.Fatalf("unexpected subject %+v", subject)
	}
}

func TestVerifyAlwaysCompares(t *testing.T) {
	v, hasher := newVerifier(t)
	ctx := context.Background()

	if _, err := v.Verify(ctx, "a@b.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for wrong password, got %v", err)
	}
	if _, err := v.Verify(ctx, "nobody@b.com", "Secret#1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown identity, got %v", err)
	}
	if got := hasher.compares.Load(); got != 2 {
		t.Fatalf("expected a comparison per attempt, got %d", got)
	}
}

func TestVerifyPropagatesStoreErrors(t *testing.T) {
	storeErr := errors.New("store down")
	v, err := NewVerifier(failingSource{err: storeErr}, NewBcryptHasher(bcrypt.MinCost))
	if err != nil {
		t.Fatalf("new verifier: %v", err)
	}
	if _, err := v.Verify(context.Background(), "a@b.com", "x"); !errors.Is(err, storeErr) {
		t.Fatalf("expected store error, got %v", err)
	}
}

func TestNewBcryptHasherClampsCost(t *testing.T) {
	if h := NewBcryptHasher(0); h.cost != bcrypt.DefaultCost {
		t.Fatalf("expected default cost, got %d", h.cost)
	}
	if h := NewBcryptHasher(bcrypt.MinCost); h.cost != bcrypt.MinCost {
		t.Fatalf("expected min cost, got %d", h.cost)
	}
}

func TestCheckPolicy(t *testing.T) {
	cases := map[string]bool{
		"Secret#1":                     true,
		"S#1a":                         false,
		"secret#1":                     false,
		"SECRET#1":                     false,
		"Secret11":                     false,
		"Secret #1":                    false,
		"Aa1!Aa1!Aa1!Aa1!Aa1!Aa1!Aa1!Aa1!": true,
		"Aa1!Aa1!Aa1!Aa1!Aa1!Aa1!Aa1!Aa1!x": false,
	}
	for password, ok := range cases {
		err := CheckPolicy(password)
		if ok && err != nil {
			t.Fatalf("%q: unexpected error %v", password, err)
		}
		if !ok && !errors.Is(err, ErrWeakPassword) {
			t.Fatalf("%q: expected weak password, got %v", password, err)
		}
	}
}

func TestCheckPolicyBoundsBytesForBcrypt(t *testing.T) {
	// 32 runes but 90 bytes.
	wide := "Aa1" + strings.Repeat("€", 29)
	if err := CheckPolicy(wide); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("expected weak password for %d bytes, got %v", len(wide), err)
	}

	// 32 runes and 60 bytes: accepted, so it must also hash.
	accented := "Aa1!" + strings.Repeat("é", 28)
	if err := CheckPolicy(accented); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
	if _, err := NewBcryptHasher(bcrypt.MinCost).Hash(accented); err != nil {
		t.Fatalf("accepted password failed to hash: %v", err)
	}
}
