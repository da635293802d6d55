package ledger

import (
	"context"
	"errors"
	"math"
	"time"
)

var (
	// ErrUnknownAccount is returned when an account number does not exist or the
	// account has been closed.
	ErrUnknownAccount = errors.New("unknown account")

	// ErrInvalidAmount indicates a non-positive amount or one that would overflow
	// a balance.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrSameAccount rejects transfers whose source and destination coincide.
	ErrSameAccount = errors.New("source and destination account must differ")

	// ErrInsufficientFunds occurs when the source account lacks the balance to
	// cover a transfer. Neither account is modified.
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// Kind classifies a ledger movement.
type Kind string

const (
	KindDebitTransfer  Kind = "debit-transfer"
	KindCreditTransfer Kind = "credit-transfer"
	KindDeposit        Kind = "deposit"
)

// Transaction is an immutable record of one movement on one account. A transfer
// produces two of them, one per side, sharing amount, timestamp and counterparty.
type Transaction struct {
	ID            string    `json:"transaction_id"`
	AccountNumber string    `json:"account_number"`
	Kind          Kind      `json:"type"`
	Counterparty  string    `json:"counterparty_account_number,omitempty"`
	Amount        int64     `json:"amount"`
	BalanceAfter  int64     `json:"balance_after"`
	Description   string    `json:"description"`
	CreatedAt     time.Time `json:"date"`
}

// Ledger defines the contract implemented by ledger backends. Amounts are
// integers in the smallest currency unit.
type Ledger interface {
	EnsureAccount(ctx context.Context, accountNumber string) error
	Deposit(ctx context.Context, accountNumber string, amount int64, description string) (Transaction, error)
	Transfer(ctx context.Context, fromAccount, toAccount string, amount int64, description string) (Transaction, error)
	Statement(ctx context.Context, accountNumber string) ([]Transaction, error)
	Balance(ctx context.Context, accountNumber string) (int64, error)
	Close(ctx context.Context, accountNumber string) error
}

// Option customises a ledger backend.
type Option func(*options)

type options struct {
	now     func() time.Time
	timeout time.Duration
}

// WithClock overrides the time source used to stamp transactions.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithTimeout bounds each store round trip of a persistent backend.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// stamp truncates to the precision Postgres stores so both backends agree.
func (o options) stamp() time.Time {
	return o.now().UTC().Truncate(time.Microsecond)
}

func validateTransfer(from, to string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if from == to {
		return ErrSameAccount
	}
	return nil
}

func addBalance(balance, amount int64) (int64, error) {
	if balance > maxBalance-amount {
		return 0, ErrInvalidAmount
	}
	return balance + amount, nil
}

const maxBalance = int64(math.MaxInt64)
