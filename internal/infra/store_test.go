package infra

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func TestUnavailableWrapsDeadline(t *testing.T) {
	ctx, cancel := WithStoreTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	err := Unavailable(ctx.Err())
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline to remain in chain, got %v", err)
	}
}

func TestUnavailableWrapsNetworkErrors(t *testing.T) {
	opErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	if err := Unavailable(opErr); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", err)
	}
}

func TestUnavailablePassesDomainErrors(t *testing.T) {
	domain := errors.New("insufficient funds")
	if err := Unavailable(domain); err != domain {
		t.Fatalf("expected domain error unchanged, got %v", err)
	}
	if Unavailable(nil) != nil {
		t.Fatal("nil must stay nil")
	}
}

func TestWithStoreTimeoutWithoutTimeoutIsCancellable(t *testing.T) {
	ctx, cancel := WithStoreTimeout(context.Background(), 0)
	if _, ok := ctx.Deadline(); ok {
		t.Fatal("expected no deadline")
	}
	cancel()
	if ctx.Err() == nil {
		t.Fatal("expected cancelled context")
	}
}
