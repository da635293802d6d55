package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/digibank/digibank/internal/account"
	"github.com/digibank/digibank/internal/auth"
	"github.com/digibank/digibank/internal/ledger"
	"github.com/digibank/digibank/internal/notification"
)

var (
	// ErrNotOwner indicates the caller may not act on the account.
	ErrNotOwner = errors.New("not owner of account")
	// ErrAccountMismatch rejects a deposit whose body names a different account
	// than the path.
	ErrAccountMismatch = errors.New("account number does not match account")
)

// Accounts resolves banking-account profiles.
type Accounts interface {
	Get(ctx context.Context, id string) (account.Profile, error)
	GetByNumber(ctx context.Context, number string) (account.Account, error)
}

// Service wires ledger postings for transfers and deposits.
type Service struct {
	ledger   ledger.Ledger
	accounts Accounts
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService constructs a payment service. A nil notifier disables notifications.
func NewService(led ledger.Ledger, accounts Accounts, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{ledger: led, accounts: accounts, notifier: notifier, logger: logger}
}

// TransferInput captures the data needed to move funds between accounts.
type TransferInput struct {
	FromAccountNumber string
	ToAccountNumber   string
	Amount            int64
	Description       string
}

// Transfer moves funds out of an account the caller may act on and returns
// the debit-side record.
func (s *Service) Transfer(ctx context.Context, claims *auth.Claims, in TransferInput) (ledger.Transaction, error) {
	if _, err := s.owned(ctx, claims, in.FromAccountNumber); err != nil {
		return ledger.Transaction{}, err
	}

	tx, err := s.ledger.Transfer(ctx, in.FromAccountNumber, in.ToAccountNumber, in.Amount, in.Description)
	if err != nil {
		return ledger.Transaction{}, err
	}

	s.logger.Info("transfer completed",
		slog.String("transaction_id", tx.ID),
		slog.String("from", tx.AccountNumber),
		slog.String("to", tx.Counterparty),
		slog.Int64("amount", tx.Amount),
	)
	s.notify(ctx, notification.Message{
		Kind:        notification.KindTransferSent,
		Destination: tx.AccountNumber,
		Reference:   tx.ID,
		Amount:      tx.Amount,
		Body:        fmt.Sprintf("You sent %d to %s", tx.Amount, tx.Counterparty),
		OccurredAt:  tx.CreatedAt,
	})
	s.notify(ctx, notification.Message{
		Kind:        notification.KindTransferReceived,
		Destination: tx.Counterparty,
		Reference:   tx.ID,
		Amount:      tx.Amount,
		Body:        fmt.Sprintf("You received %d from %s", tx.Amount, tx.AccountNumber),
		OccurredAt:  tx.CreatedAt,
	})
	return tx, nil
}

// DepositInput captures a deposit request. AccountNumber is optional; when set
// it must name the target account.
type DepositInput struct {
	AccountNumber string
	Amount        int64
	Description   string
}

// Deposit credits the account identified by accountID.
func (s *Service) Deposit(ctx context.Context, claims *auth.Claims, accountID string, in DepositInput) (ledger.Transaction, error) {
	if claims == nil || !claims.CanActOn(accountID) {
		return ledger.Transaction{}, ErrNotOwner
	}
	profile, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return ledger.Transaction{}, err
	}
	if in.AccountNumber != "" && in.AccountNumber != profile.AccountNumber {
		return ledger.Transaction{}, ErrAccountMismatch
	}

	tx, err := s.ledger.Deposit(ctx, profile.AccountNumber, in.Amount, in.Description)
	if err != nil {
		return ledger.Transaction{}, err
	}
	s.notify(ctx, notification.Message{
		Kind:        notification.KindDeposit,
		Destination: tx.AccountNumber,
		Reference:   tx.ID,
		Amount:      tx.Amount,
		Body:        fmt.Sprintf("Deposit of %d received", tx.Amount),
		OccurredAt:  tx.CreatedAt,
	})
	return tx, nil
}

// Statement returns the transaction log of an account the caller may read.
// Closed accounts stay readable.
func (s *Service) Statement(ctx context.Context, claims *auth.Claims, number string) ([]ledger.Transaction, error) {
	if _, err := s.owned(ctx, claims, number); err != nil {
		return nil, err
	}
	return s.ledger.Statement(ctx, number)
}

func (s *Service) owned(ctx context.Context, claims *auth.Claims, number string) (account.Account, error) {
	if claims == nil {
		return account.Account{}, ErrNotOwner
	}
	acct, err := s.accounts.GetByNumber(ctx, number)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return account.Account{}, fmt.Errorf("%w: %s", ledger.ErrUnknownAccount, number)
		}
		return account.Account{}, err
	}
	if !claims.CanActOn(acct.ID) {
		return account.Account{}, ErrNotOwner
	}
	return acct, nil
}

// notify is best effort: the money has already moved.
func (s *Service) notify(ctx context.Context, msg notification.Message) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.logger.Warn("notification failed",
			slog.String("kind", msg.Kind),
			slog.String("reference", msg.Reference),
			slog.Any("error", err),
		)
	}
}
