package account

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
	"github.com/digibank/digibank/internal/ledger"
)

const (
	openingDescription = "opening balance"
	maxNameLength      = 100
	numberAttempts     = 3
)

// Service manages banking-account profiles and their ledger accounts.
type Service struct {
	repo           Repository
	ledger         ledger.Ledger
	numbers        NumberGenerator
	hasher         credential.Hasher
	minimumOpening int64
	logger         *slog.Logger
	now            func() time.Time
}

// NewService builds an account service instance.
func NewService(repo Repository, led ledger.Ledger, numbers NumberGenerator, hasher credential.Hasher, minimumOpening int64, logger *slog.Logger) *Service {
	return &Service{
		repo:           repo,
		ledger:         led,
		numbers:        numbers,
		hasher:         hasher,
		minimumOpening: minimumOpening,
		logger:         logger,
		now:            time.Now,
	}
}

// RegisterInput captures data required to open an account.
type RegisterInput struct {
	Name            string
	Email           string
	Password        string
	PasswordConfirm string
	OpeningBalance  int64
}

// Register creates the profile, opens its ledger account and books the opening
// balance as a deposit. A ledger failure closes the half-created profile.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Profile, error) {
	name, email, err := normalizeProfile(in.Name, in.Email)
	if err != nil {
		return Profile{}, err
	}
	if err := credential.CheckPolicy(in.Password); err != nil {
		return Profile{}, err
	}
	if in.Password != in.PasswordConfirm {
		return Profile{}, ErrPasswordMismatch
	}
	if in.OpeningBalance < s.minimumOpening || in.OpeningBalance <= 0 {
		return Profile{}, fmt.Errorf("%w: minimum is %d", ErrBelowMinimumBalance, s.minimumOpening)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return Profile{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	acct := Account{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for attempt := 1; ; attempt++ {
		acct.AccountNumber = s.numbers.Next()
		err = s.repo.Create(ctx, acct)
		if !errors.Is(err, ErrDuplicateAccountNumber) || attempt == numberAttempts {
			break
		}
	}
	if err != nil {
		return Profile{}, err
	}

	if err := s.ledger.EnsureAccount(ctx, acct.AccountNumber); err != nil {
		return Profile{}, s.abandon(ctx, acct, err)
	}
	if _, err := s.ledger.Deposit(ctx, acct.AccountNumber, in.OpeningBalance, openingDescription); err != nil {
		return Profile{}, s.abandon(ctx, acct, err)
	}

	s.logger.Info("account registered",
		slog.String("account_id", acct.ID),
		slog.String("account_number", acct.AccountNumber),
	)
	return Profile{Account: acct, Balance: in.OpeningBalance}, nil
}

func (s *Service) abandon(ctx context.Context, acct Account, cause error) error {
	cleanup := context.WithoutCancel(ctx)
	if err := s.repo.Close(cleanup, acct.ID, s.now().UTC()); err != nil {
		s.logger.Error("close abandoned account", slog.String("account_id", acct.ID), slog.Any("error", err))
	}
	if err := s.ledger.Close(cleanup, acct.AccountNumber); err != nil && !errors.Is(err, ledger.ErrUnknownAccount) {
		s.logger.Error("close abandoned ledger account", slog.String("account_number", acct.AccountNumber), slog.Any("error", err))
	}
	return fmt.Errorf("open ledger account: %w", cause)
}

// Get returns an active account with its balance.
func (s *Service) Get(ctx context.Context, id string) (Profile, error) {
	acct, err := s.repo.Get(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	if acct.Status != StatusActive {
		return Profile{}, ErrNotFound
	}
	return s.withBalance(ctx, acct)
}

// GetByNumber resolves an account number to its profile, including closed accounts.
func (s *Service) GetByNumber(ctx context.Context, number string) (Account, error) {
	return s.repo.GetByNumber(ctx, number)
}

// List returns all active accounts.
func (s *Service) List(ctx context.Context) ([]Profile, error) {
	accounts, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Profile, 0, len(accounts))
	for _, acct := range accounts {
		p, err := s.withBalance(ctx, acct)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Service) withBalance(ctx context.Context, acct Account) (Profile, error) {
	balance, err := s.ledger.Balance(ctx, acct.AccountNumber)
	if err != nil {
		return Profile{}, err
	}
	return Profile{Account: acct, Balance: balance}, nil
}

// Update changes the holder's name and email.
func (s *Service) Update(ctx context.Context, id, name, email string) (Account, error) {
	name, email, err := normalizeProfile(name, email)
	if err != nil {
		return Account{}, err
	}
	if err := s.repo.UpdateProfile(ctx, id, name, email, s.now().UTC()); err != nil {
		return Account{}, err
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
	acct, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if acct.Status != StatusActive {
		return ErrNotFound
	}
	if !s.hasher.Compare(acct.PasswordHash, in.Old) {
		return ErrWrongPassword
	}
	hash, err := s.hasher.Hash(in.New)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.repo.UpdatePassword(ctx, id, hash, s.now().UTC())
}

// Close closes the ledger account first, under its lock, so no transfer can
// land after the profile is marked closed.
func (s *Service) Close(ctx context.Context, id string) error {
	acct, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if acct.Status != StatusActive {
		return ErrNotFound
	}
	if err := s.ledger.Close(ctx, acct.AccountNumber); err != nil && !errors.Is(err, ledger.ErrUnknownAccount) {
		return err
	}
	if err := s.repo.Close(ctx, id, s.now().UTC()); err != nil {
		// Closing the ledger account again is a no-op, so a retry finishes
		// the job.
		s.logger.Error("account profile still open after ledger close",
			slog.String("account_id", id),
			slog.String("account_number", acct.AccountNumber),
			slog.Any("error", err),
		)
		return err
	}
	s.logger.Info("account closed", slog.String("account_id", id), slog.String("account_number", acct.AccountNumber))
	return nil
}

// LookupCredential implements credential.DigestSource for the banking login flow.
func (s *Service) LookupCredential(ctx context.Context, identity string) (credential.Record, error) {
	acct, err := s.repo.FindByEmail(ctx, identity)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return credential.Record{}, credential.ErrUnknownIdentity
		}
		return credential.Record{}, err
	}
	return credential.Record{
		Subject: credential.Subject{
			ID:            acct.ID,
			Name:          acct.Name,
			Email:         acct.Email,
			Role:          auth.RoleAccount,
			AccountNumber: acct.AccountNumber,
		},
		Digest: acct.PasswordHash,
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
