package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/digibank/digibank/internal/auth"
	"github.com/digibank/digibank/internal/credential"
)

const maxNameLength = 100

// Service manages the general-user lifecycle.
type Service struct {
	repo   Repository
	hasher credential.Hasher
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a new user service.
func NewService(repo Repository, hasher credential.Hasher, logger *slog.Logger) *Service {
	return &Service{repo: repo, hasher: hasher, logger: logger, now: time.Now}
}

// CreateInput captures data required to create a user.
type CreateInput struct {
	Name            string
	Email           string
	Password        string
	PasswordConfirm string
}

// Create stores a new user with a hashed password.
func (s *Service) Create(ctx context.Context, in CreateInput) (User, error) {
	name, email, err := normalizeProfile(in.Name, in.Email)
	if err != nil {
		return User{}, err
	}
	if err := credential.CheckPolicy(in.Password); err != nil {
		return User{}, err
	}
	if in.Password != in.PasswordConfirm {
		return User{}, ErrPasswordMismatch
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	u := User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return User{}, err
	}
	s.logger.Info("user created", slog.String("user_id", u.ID))
	return u, nil
}

// Bootstrap creates the default administrator unless the email is already
// registered. It reports whether a user was created.
func (s *Service) Bootstrap(ctx context.Context, name, email, password string) (bool, error) {
	_, err := s.Create(ctx, CreateInput{Name: name, Email: email, Password: password, PasswordConfirm: password})
	switch {
	case errors.Is(err, ErrEmailTaken):
		return false, nil
	case err != nil:
		return false, err
	default:
		return true, nil
	}
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.Get(ctx, id)
}

// List returns every user.
func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// Update changes a user's name and email.
func (s *Service) Update(ctx context.Context, id, name, email string) (User, error) {
	name, email, err := normalizeProfile(name, email)
	if err != nil {
		return User{}, err
	}
	if err := s.repo.UpdateProfile(ctx, id, name, email, s.now().UTC()); err != nil {
		return User{}, err
	}
	return s.repo.Get(ctx, id)
}

// ChangePasswordInput carries a password change request.
type ChangePasswordInput struct {
	Old     string
	New     string
	Confirm string
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, id string, in ChangePasswordInput) error {
	if in.New != in.Confirm {
		return ErrPasswordMismatch
	}
	if err := credential.CheckPolicy(in.New); err != nil {
		return err
	}
	u, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !s.hasher.Compare(u.PasswordHash, in.Old) {
		return ErrWrongPassword
	}
	hash, err := s.hasher.Hash(in.New)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.repo.UpdatePassword(ctx, id, hash, s.now().UTC())
}

// Delete removes a user.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("user deleted", slog.String("user_id", id))
	return nil
}

// LookupCredential implements credential.DigestSource for the general-user login flow.
func (s *Service) LookupCredential(ctx context.Context, identity string) (credential.Record, error) {
	u, err := s.repo.FindByEmail(ctx, identity)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return credential.Record{}, credential.ErrUnknownIdentity
		}
		return credential.Record{}, err
	}
	return credential.Record{
		Subject: credential.Subject{
			ID:    u.ID,
			Name:  u.Name,
			Email: u.Email,
			Role:  auth.RoleUser,
		},
		Digest: u.PasswordHash,
	}, nil
}

func normalizeProfile(name, email string) (string, string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > maxNameLength {
		return "", "", fmt.Errorf("%w: name must be 1-%d characters", ErrInvalidInput, maxNameLength)
	}
	email = credential.NormalizeIdentity(email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return "", "", fmt.Errorf("%w: email is not valid", ErrInvalidInput)
	}
	return name, email, nil
}
