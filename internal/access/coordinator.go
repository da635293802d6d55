// Package access implements the login use case: throttle gate, password check,
// then token issuance.
package access

import (
	"context"
	"errors"
	"log/slog"

	"github.com/digibank/digibank/internal/auth"
	"github.com/digibank/digibank/internal/credential"
	"github.com/digibank/digibank/internal/throttle"
)

// Verifier checks a password for an identity.
type Verifier interface {
	Verify(ctx context.Context, identity, password string) (credential.Subject, error)
}

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	Issue(subject credential.Subject) (auth.Token, error)
}

// Grant is the result of a successful login.
type Grant struct {
	Subject credential.Subject
	Token   auth.Token
}

// Coordinator runs one login flow. Each flow gets its own throttle key space.
type Coordinator struct {
	flow     string
	throttle throttle.Throttle
	verifier Verifier
	issuer   TokenIssuer
	logger   *slog.Logger
}

func NewCoordinator(flow string, th throttle.Throttle, verifier Verifier, issuer TokenIssuer, logger *slog.Logger) *Coordinator {
	return &Coordinator{flow: flow, throttle: th, verifier: verifier, issuer: issuer, logger: logger}
}

// Login returns a *throttle.LockedError while the identity is locked, without
// checking the password, and throttle.ErrBusy while the attempts already in
// flight use up the remaining budget. A wrong password or unknown identity
// yields credential.ErrInvalidCredentials and counts as a failure.
func (c *Coordinator) Login(ctx context.Context, identity, password string) (Grant, error) {
	identity = credential.NormalizeIdentity(identity)
	if identity == "" {
		return Grant{}, credential.ErrInvalidCredentials
	}

	if err := c.throttle.Admit(ctx, identity); err != nil {
		return Grant{}, err
	}

	subject, err := c.verifier.Verify(ctx, identity, password)
	if err != nil {
		if !errors.Is(err, credential.ErrInvalidCredentials) {
			if relErr := c.throttle.Release(ctx, identity); relErr != nil {
				c.logger.Error("release login slot",
					slog.String("flow", c.flow),
					slog.String("identity", identity),
					slog.Any("error", relErr),
				)
			}
			return Grant{}, err
		}
		st, recErr := c.throttle.RecordFailure(ctx, identity)
		if recErr != nil {
			return Grant{}, recErr
		}
		if !st.LockUntil.IsZero() {
			c.logger.Warn("login locked",
				slog.String("flow", c.flow),
				slog.String("identity", identity),
				slog.Time("lock_until", st.LockUntil),
			)
		}
		return Grant{}, credential.ErrInvalidCredentials
	}

	if err := c.throttle.RecordSuccess(ctx, identity); err != nil {
		return Grant{}, err
	}
	token, err := c.issuer.Issue(subject)
	if err != nil {
		return Grant{}, err
	}
	return Grant{Subject: subject, Token: token}, nil
}
