package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newFunded(t *testing.T, balances map[string]int64) Ledger {
	t.Helper()
	l := NewInMemory()
	ctx := context.Background()
	for number, balance := range balances {
		if err := l.EnsureAccount(ctx, number); err != nil {
			t.Fatalf("ensure account %s: %v", number, err)
		}
		if balance == 0 {
			continue
		}
		if _, err := l.Deposit(ctx, number, balance, "seed"); err != nil {
			t.Fatalf("seed %s: %v", number, err)
		}
	}
	return l
}

func mustBalance(t *testing.T, l Ledger, number string) int64 {
	t.Helper()
	balance, err := l.Balance(context.Background(), number)
	if err != nil {
		t.Fatalf("balance %s: %v", number, err)
	}
	return balance
}

func TestInMemoryLedger_TransferMaintainsBalance(t *testing.T) {
	l := newFunded(t, map[string]int64{"1001": 100_000, "1002": 0})

	debit, err := l.Transfer(context.Background(), "1001", "1002", 30_000, "rent")
	if err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if debit.Kind != KindDebitTransfer || debit.Counterparty != "1002" {
		t.Fatalf("unexpected debit record %+v", debit)
	}
	if debit.BalanceAfter != 70_000 {
		t.Fatalf("expected balance after 70000, got %d", debit.BalanceAfter)
	}
	if got := mustBalance(t, l, "1001"); got != 70_000 {
		t.Fatalf("expected source 70000, got %d", got)
	}
	if got := mustBalance(t, l, "1002"); got != 30_000 {
		t.Fatalf("expected destination 30000, got %d", got)
	}

	credits, err := l.Statement(context.Background(), "1002")
	if err != nil {
		t.Fatalf("statement: %v", err)
	}
	if len(credits) != 1 {
		t.Fatalf("expected one credit record, got %d", len(credits))
	}
	credit := credits[0]
	if credit.Kind != KindCreditTransfer || credit.Counterparty != "1001" || credit.Amount != 30_000 {
		t.Fatalf("unexpected credit record %+v", credit)
	}
	if !credit.CreatedAt.Equal(debit.CreatedAt) {
		t.Fatalf("both sides must share a timestamp: %s vs %s", credit.CreatedAt, debit.CreatedAt)
	}
}

func TestInMemoryLedger_InsufficientFundsLeavesStateUnchanged(t *testing.T) {
	l := newFunded(t, map[string]int64{"1001": 100_000, "1002": 5_000})
	ctx := context.Background()

	if _, err := l.Transfer(ctx, "1001", "1002", 100_001, "too much"); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if got := mustBalance(t, l, "1001"); got != 100_000 {
		t.Fatalf("source changed to %d", got)
	}
	if got := mustBalance(t, l, "1002"); got != 5_000 {
		t.Fatalf("destination changed to %d", got)
	}
	stmt, _ := l.Statement(ctx, "1001")
	if len(stmt) != 1 {
		t.Fatalf("expected only the seed record, got %d", len(stmt))
	}
}

func TestInMemoryLedger_ExactBalanceDrainsToZero(t *testing.T) {
	l := newFunded(t, map[string]int64{"1001": 100_000, "1002": 0})

	if _, err := l.Transfer(context.Background(), "1001", "1002", 100_000, "all"); err != nil {
		t.Fatalf("transfer failed: %v", err)
	}
	if got := mustBalance(t, l, "1001"); got != 0 {
		t.Fatalf("expected zero balance, got %d", got)
	}
}

func TestInMemoryLedger_Validation(t *testing.T) {
	l := newFunded(t, map[string]int64{"1001": 10_000, "1002": 0})
	ctx := context.Background()

	cases := []struct {
		name     string
		from, to string
		amount   int64
		want     error
	}{
		{"zero amount", "1001", "1002", 0, ErrInvalidAmount},
		{"negative amount", "1001", "1002", -5, ErrInvalidAmount},
		{"same account", "1001", "1001", 100, ErrSameAccount},
		{"unknown source", "9999", "1002", 100, ErrUnknownAccount},
		{"unknown destination", "1001", "9999", 100, ErrUnknownAccount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := l.Transfer(ctx, tc.from, tc.to, tc.amount, ""); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
	if got := mustBalance(t, l, "1001"); got != 10_000 {
		t.Fatalf("failed transfers must not move funds, balance %d", got)
	}
}

func TestInMemoryLedger_DepositRules(t *testing.T) {
	l := newFunded(t, map[string]int64{"1001": 0})
	ctx := context.Background()

	if _, err := l.Deposit(ctx, "1001", 0, ""); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := l.Deposit(ctx, "9999", 100, ""); !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("expected unknown account, got %v", err)
	}
	if _, err := l.Deposit(ctx, "1001", math.MaxInt64, ""); err != nil {
		t.Fatalf("max deposit: %v", err)
	}
	if _, err := l.Deposit(ctx, "1001", 1, ""); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected overflow to be rejected, got %v", err)
	}
}

func TestInMemoryLedger_ClosedAccount(t *testing.T) {
	l := newFunded(t, map[string]int64{"1001": 10_000, "1002": 0})
	ctx := context.Background()

	if err := l.Close(ctx, "1002"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := l.Transfer(ctx, "1001", "1002", 100, ""); !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("expected closed destination to be unknown, got %v", err)
	}
	if _, err := l.Deposit(ctx, "1002", 100, ""); !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("expected closed deposit to fail, got %v", err)
	}
	if _, err := l.Statement(ctx, "1002"); err != nil {
		t.Fatalf("closed statement should stay readable: %v", err)
	}
	if err := l.Close(ctx, "9999"); !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("expected unknown account on close, got %v", err)
	}
}

func TestInMemoryLedger_StatementOrderAndIsolation(t *testing.T) {
	base := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	var tick int64
	l := NewInMemory(WithClock(func() time.Time {
		return base.Add(time.Duration(atomic.AddInt64(&tick, 1)) * time.Second)
	}))
	ctx := context.Background()
	_ = l.EnsureAccount(ctx, "1001")
	_ = l.EnsureAccount(ctx, "1002")

	if _, err := l.Deposit(ctx, "1001", 1_000, "first"); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := l.Transfer(ctx, "1001", "1002", 400, "second"); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, err := l.Deposit(ctx, "1001", 50, "third"); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	stmt, err := l.Statement(ctx, "1001")
	if err != nil {
		t.Fatalf("statement: %v", err)
	}
	if len(stmt) != 3 {
		t.Fatalf("expected 3 records, got %d", len(stmt))
	}
	for i, want := range []string{"first", "second", "third"} {
		if stmt[i].Description != want {
			t.Fatalf("record %d: expected %q, got %q", i, want, stmt[i].Description)
		}
	}
	if !stmt[0].CreatedAt.Before(stmt[2].CreatedAt) {
		t.Fatal("statement must be ordered oldest first")
	}
	if stmt[2].BalanceAfter != 650 {
		t.Fatalf("expected running balance 650, got %d", stmt[2].BalanceAfter)
	}

	stmt[0].Amount = 1
	again, _ := l.Statement(ctx, "1001")
	if again[0].Amount != 1_000 {
		t.Fatal("statement must return a copy")
	}

	if _, err := l.Statement(ctx, "9999"); !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("expected unknown account, got %v", err)
	}
}

func TestInMemoryLedger_ConcurrentTransfersNeverOverdraw(t *testing.T) {
	l := newFunded(t, map[string]int64{"1001": 100_000, "1002": 0})
	ctx := context.Background()

	const workers = 50
	const amount = int64(3_000)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int64
		rejected  atomic.Int64
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.Transfer(ctx, "1001", "1002", amount, fmt.Sprintf("tx-%d", i))
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, ErrInsufficientFunds):
				rejected.Add(1)
			default:
				t.Errorf("transfer %d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if succeeded.Load() != 33 || rejected.Load() != 17 {
		t.Fatalf("expected 33 successes and 17 rejections, got %d/%d", succeeded.Load(), rejected.Load())
	}
	src := mustBalance(t, l, "1001")
	dst := mustBalance(t, l, "1002")
	if src != 1_000 || src+dst != 100_000 {
		t.Fatalf("ledger not balanced after concurrency, src=%d dst=%d", src, dst)
	}
}

func TestInMemoryLedger_OppositeTransfersDoNotDeadlock(t *testing.T) {
	l := newFunded(t, map[string]int64{"1001": 50_000, "1002": 50_000})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = l.Transfer(ctx, "1001", "1002", 10, "")
		}()
		go func() {
			defer wg.Done()
			_, _ = l.Transfer(ctx, "1002", "1001", 10, "")
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("opposite transfers deadlocked")
	}

	if total := mustBalance(t, l, "1001") + mustBalance(t, l, "1002"); total != 100_000 {
		t.Fatalf("total changed to %d", total)
	}
}
