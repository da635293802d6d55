package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/digibank/digibank/internal/infra"
)

const maxTxAttempts = 3

// PostgresLedger keeps balances and the transaction log in PostgreSQL. Every
// mutation runs in one transaction holding row locks on the affected accounts.
type PostgresLedger struct {
	db   *pgxpool.Pool
	opts options
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool, opts ...Option) *PostgresLedger {
	return &PostgresLedger{db: db, opts: buildOptions(opts)}
}

// EnsureAccount creates the balance row for an account number if it is missing.
func (l *PostgresLedger) EnsureAccount(ctx context.Context, number string) error {
	if number == "" {
		return fmt.Errorf("account number is required")
	}
	ctx, cancel := infra.WithStoreTimeout(ctx, l.opts.timeout)
	defer cancel()

	_, err := l.db.Exec(ctx, `INSERT INTO ledger_accounts (account_number) VALUES ($1)
        ON CONFLICT (account_number) DO NOTHING`, number)
	return infra.Unavailable(err)
}

// Deposit credits an account and appends a deposit record.
func (l *PostgresLedger) Deposit(ctx context.Context, number string, amount int64, description string) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}

	var out Transaction
	err := l.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		balance, err := lockAccount(ctx, tx, number)
		if err != nil {
			return err
		}
		balance, err = addBalance(balance, amount)
		if err != nil {
			return err
		}
		if err := setBalance(ctx, tx, number, balance); err != nil {
			return err
		}

		out = Transaction{
			ID:            uuid.NewString(),
			AccountNumber: number,
			Kind:          KindDeposit,
			Amount:        amount,
			BalanceAfter:  balance,
			Description:   description,
			CreatedAt:     l.opts.stamp(),
		}
		return insertTransaction(ctx, tx, out)
	})
	if err != nil {
		return Transaction{}, err
	}
	return out, nil
}

// Transfer moves amount between two accounts. Rows are locked in account-number
// order so opposite transfers cannot deadlock each other.
func (l *PostgresLedger) Transfer(ctx context.Context, from, to string, amount int64, description string) (Transaction, error) {
	if err := validateTransfer(from, to, amount); err != nil {
		return Transaction{}, err
	}

	var debit Transaction
	err := l.inTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		balances := make(map[string]int64, 2)
		first, second := from, to
		if to < from {
			first, second = to, from
		}
		for _, number := range []string{first, second} {
			balance, err := lockAccount(ctx, tx, number)
			if err != nil {
				return err
			}
			balances[number] = balance
		}

		if balances[from] < amount {
			return ErrInsufficientFunds
		}
		toBalance, err := addBalance(balances[to], amount)
		if err != nil {
			return err
		}
		fromBalance := balances[from] - amount

		if err := setBalance(ctx, tx, from, fromBalance); err != nil {
			return err
		}
		if err := setBalance(ctx, tx, to, toBalance); err != nil {
			return err
		}

		now := l.opts.stamp()
		debit = Transaction{
			ID:            uuid.NewString(),
			AccountNumber: from,
			Kind:          KindDebitTransfer,
			Counterparty:  to,
			Amount:        amount,
			BalanceAfter:  fromBalance,
			Description:   description,
			CreatedAt:     now,
		}
		credit := Transaction{
			ID:            uuid.NewString(),
			AccountNumber: to,
			Kind:          KindCreditTransfer,
			Counterparty:  from,
			Amount:        amount,
			BalanceAfter:  toBalance,
			Description:   description,
			CreatedAt:     now,
		}
		if err := insertTransaction(ctx, tx, debit); err != nil {
			return err
		}
		return insertTransaction(ctx, tx, credit)
	})
	if err != nil {
		return Transaction{}, err
	}
	return debit, nil
}

// Statement lists an account's transactions oldest first. Closed accounts keep
// their history readable.
func (l *PostgresLedger) Statement(ctx context.Context, number string) ([]Transaction, error) {
	ctx, cancel := infra.WithStoreTimeout(ctx, l.opts.timeout)
	defer cancel()

	var exists bool
	if err := l.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ledger_accounts WHERE account_number = $1)`, number).Scan(&exists); err != nil {
		return nil, infra.Unavailable(err)
	}
	if !exists {
		return nil, ErrUnknownAccount
	}

	const query = `
        SELECT id, account_number, kind, counterparty, amount, balance_after, description, created_at
        FROM ledger_transactions
        WHERE account_number = $1
        ORDER BY seq`
	rows, err := l.db.Query(ctx, query, number)
	if err != nil {
		return nil, infra.Unavailable(err)
	}
	defer rows.Close()

	out := make([]Transaction, 0)
	for rows.Next() {
		var (
			tx   Transaction
			id   uuid.UUID
			kind string
		)
		if err := rows.Scan(&id, &tx.AccountNumber, &kind, &tx.Counterparty, &tx.Amount, &tx.BalanceAfter, &tx.Description, &tx.CreatedAt); err != nil {
			return nil, infra.Unavailable(err)
		}
		tx.ID = id.String()
		tx.Kind = Kind(kind)
		tx.CreatedAt = tx.CreatedAt.UTC()
		out = append(out, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, infra.Unavailable(err)
	}
	return out, nil
}

// Balance returns the current balance of an account.
func (l *PostgresLedger) Balance(ctx context.Context, number string) (int64, error) {
	ctx, cancel := infra.WithStoreTimeout(ctx, l.opts.timeout)
	defer cancel()

	var balance int64
	err := l.db.QueryRow(ctx, `SELECT balance FROM ledger_accounts WHERE account_number = $1`, number).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUnknownAccount
		}
		return 0, infra.Unavailable(err)
	}
	return balance, nil
}

// Close marks an account closed so it can no longer send or receive funds.
func (l *PostgresLedger) Close(ctx context.Context, number string) error {
	ctx, cancel := infra.WithStoreTimeout(ctx, l.opts.timeout)
	defer cancel()

	tag, err := l.db.Exec(ctx, `UPDATE ledger_accounts SET closed = TRUE, updated_at = NOW() WHERE account_number = $1`, number)
	if err != nil {
		return infra.Unavailable(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUnknownAccount
	}
	return nil
}

// inTx runs fn inside a transaction, retrying serialization failures and
// deadlocks. The commit runs on a context detached from the caller so a client
// disconnect cannot leave the outcome ambiguous once the body has succeeded.
func (l *PostgresLedger) inTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = l.runTx(ctx, fn)
		if err == nil || !retryable(err) {
			break
		}
	}
	return infra.Unavailable(err)
}

func (l *PostgresLedger) runTx(parent context.Context, fn func(context.Context, pgx.Tx) error) error {
	ctx, cancel := infra.WithStoreTimeout(parent, l.opts.timeout)
	defer cancel()

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := fn(ctx, tx); err != nil {
		return err
	}

	commitCtx, cancelCommit := infra.WithStoreTimeout(context.WithoutCancel(parent), l.opts.timeout)
	defer cancelCommit()
	return tx.Commit(commitCtx)
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "40001", "40P01":
		return true
	default:
		return false
	}
}

func lockAccount(ctx context.Context, tx pgx.Tx, number string) (int64, error) {
	const query = `SELECT balance, closed FROM ledger_accounts WHERE account_number = $1 FOR UPDATE`
	var (
		balance int64
		closed  bool
	)
	if err := tx.QueryRow(ctx, query, number).Scan(&balance, &closed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrUnknownAccount
		}
		return 0, err
	}
	if closed {
		return 0, ErrUnknownAccount
	}
	return balance, nil
}

func setBalance(ctx context.Context, tx pgx.Tx, number string, balance int64) error {
	_, err := tx.Exec(ctx, `UPDATE ledger_accounts SET balance = $2, updated_at = NOW() WHERE account_number = $1`, number, balance)
	return err
}

func insertTransaction(ctx context.Context, tx pgx.Tx, t Transaction) error {
	id, err := uuid.Parse(t.ID)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, `INSERT INTO ledger_transactions
        (id, account_number, kind, counterparty, amount, balance_after, description, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, t.AccountNumber, string(t.Kind), t.Counterparty, t.Amount, t.BalanceAfter, t.Description, t.CreatedAt)
	return err
}
