// Package credential verifies passwords against stored digests without leaking
// whether the identity exists.
package credential

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrInvalidCredentials is returned for an unknown identity and a wrong
	// password alike.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrUnknownIdentity is returned by a DigestSource when no credential is
	// stored for the identity. The verifier never surfaces it.
	ErrUnknownIdentity = errors.New("unknown identity")
)

// Subject is the authenticated principal handed to the token issuer.
type Subject struct {
	ID            string
	Name          string
	Email         string
	Role          string
	AccountNumber string
}

// Record pairs a subject with its stored password digest.
type Record struct {
	Subject Subject
	Digest  []byte
}

// DigestSource looks up the credential for a normalized identity.
type DigestSource interface {
	LookupCredential(ctx context.Context, identity string) (Record, error)
}

// Verifier checks passwords. Every call runs exactly one digest comparison.
type Verifier struct {
	source      DigestSource
	hasher      Hasher
	placeholder []byte
}

// NewVerifier builds a verifier with a placeholder digest produced by the same
// hasher, so an unknown identity costs the same as a wrong password.
func NewVerifier(source DigestSource, hasher Hasher) (*Verifier, error) {
	placeholder, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("build placeholder digest: %w", err)
	}
	return &Verifier{source: source, hasher: hasher, placeholder: placeholder}, nil
}

// Verify returns the subject when password matches the stored digest.
func (v *Verifier) Verify(ctx context.Context, identity, password string) (Subject, error) {
	rec, err := v.source.LookupCredential(ctx, NormalizeIdentity(identity))
	known := err == nil
	if err != nil && !errors.Is(err, ErrUnknownIdentity) {
		return Subject{}, err
	}

	digest := v.placeholder
	if known {
		digest = rec.Digest
	}
	matched := v.hasher.Compare(digest, password)
	if !known || !matched {
		return Subject{}, ErrInvalidCredentials
	}
	return rec.Subject, nil
}

// NormalizeIdentity lower-cases and trims an email so lookups and throttle keys agree.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}
