package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// memAccount guards one account's balance and log. Transfers lock two of these
// in account-number order.
type memAccount struct {
	mu      sync.Mutex
	number  string
	balance int64
	closed  bool
	log     []Transaction
}

type inMemoryLedger struct {
	mu       sync.RWMutex
	accounts map[string]*memAccount
	opts     options
}

// NewInMemory creates a concurrency-safe in-memory ledger for development and tests.
func NewInMemory(opts ...Option) Ledger {
	return &inMemoryLedger{
		accounts: make(map[string]*memAccount),
		opts:     buildOptions(opts),
	}
}

func (l *inMemoryLedger) lookup(number string) (*memAccount, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acct, ok := l.accounts[number]
	if !ok {
		return nil, ErrUnknownAccount
	}
	return acct, nil
}

func (l *inMemoryLedger) EnsureAccount(_ context.Context, number string) error {
	if number == "" {
		return fmt.Errorf("account number is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.accounts[number]; !exists {
		l.accounts[number] = &memAccount{number: number}
	}
	return nil
}

func (l *inMemoryLedger) Deposit(_ context.Context, number string, amount int64, description string) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	acct, err := l.lookup(number)
	if err != nil {
		return Transaction{}, err
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()
	if acct.closed {
		return Transaction{}, ErrUnknownAccount
	}

	balance, err := addBalance(acct.balance, amount)
	if err != nil {
		return Transaction{}, err
	}
	acct.balance = balance

	tx := Transaction{
		ID:            uuid.NewString(),
		AccountNumber: number,
		Kind:          KindDeposit,
		Amount:        amount,
		BalanceAfter:  balance,
		Description:   description,
		CreatedAt:     l.opts.stamp(),
	}
	acct.log = append(acct.log, tx)
	return tx, nil
}

func (l *inMemoryLedger) Transfer(_ context.Context, from, to string, amount int64, description string) (Transaction, error) {
	if err := validateTransfer(from, to, amount); err != nil {
		return Transaction{}, err
	}
	src, err := l.lookup(from)
	if err != nil {
		return Transaction{}, err
	}
	dst, err := l.lookup(to)
	if err != nil {
		return Transaction{}, err
	}

	first, second := src, dst
	if to < from {
		first, second = dst, src
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if src.closed || dst.closed {
		return Transaction{}, ErrUnknownAccount
	}
	if src.balance < amount {
		return Transaction{}, ErrInsufficientFunds
	}
	dstBalance, err := addBalance(dst.balance, amount)
	if err != nil {
		return Transaction{}, err
	}

	src.balance -= amount
	dst.balance = dstBalance

	now := l.opts.stamp()
	debit := Transaction{
		ID:            uuid.NewString(),
		AccountNumber: from,
		Kind:          KindDebitTransfer,
		Counterparty:  to,
		Amount:        amount,
		BalanceAfter:  src.balance,
		Description:   description,
		CreatedAt:     now,
	}
	credit := Transaction{
		ID:            uuid.NewString(),
		AccountNumber: to,
		Kind:          KindCreditTransfer,
		Counterparty:  from,
		Amount:        amount,
		BalanceAfter:  dst.balance,
		Description:   description,
		CreatedAt:     now,
	}
	src.log = append(src.log, debit)
	dst.log = append(dst.log, credit)
	return debit, nil
}

func (l *inMemoryLedger) Statement(_ context.Context, number string) ([]Transaction, error) {
	acct, err := l.lookup(number)
	if err != nil {
		return nil, err
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()
	out := make([]Transaction, len(acct.log))
	copy(out, acct.log)
	return out, nil
}

func (l *inMemoryLedger) Balance(_ context.Context, number string) (int64, error) {
	acct, err := l.lookup(number)
	if err != nil {
		return 0, err
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()
	return acct.balance, nil
}

func (l *inMemoryLedger) Close(_ context.Context, number string) error {
	acct, err := l.lookup(number)
	if err != nil {
		return err
	}
	acct.mu.Lock()
	defer acct.mu.Unlock()
	acct.closed = true
	return nil
}
