package access

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/digibank/digibank/internal/auth"
	"github.com/digibank/digibank/internal/credential"
	"github.com/digibank/digibank/internal/logging"
	"github.com/digibank/digibank/internal/throttle"
)

type stubVerifier struct {
	mu       sync.Mutex
	password string
	calls    int
	err      error
	delay    time.Duration
}

func (s *stubVerifier) Verify(_ context.Context, identity, password string) (credential.Subject, error) {
	time.Sleep(s.delay)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return credential.Subject{}, s.err
	}
	if identity != "a@b.com" || password != s.password {
		return credential.Subject{}, credential.ErrInvalidCredentials
	}
	return credential.Subject{ID: "acc-1", Name: "Ana", Email: identity, Role: auth.RoleAccount}, nil
}

func (s *stubVerifier) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func setup(t *testing.T) (*Coordinator, *stubVerifier, *clock, throttle.Throttle) {
	t.Helper()
	clk := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	th := throttle.NewInMemory(throttle.Policy{MaxAttempts: 5, Lockout: 30 * time.Minute, Now: clk.Now})
	verifier := &stubVerifier{password: "Secret#1"}
	coord := NewCoordinator("accounts", th, verifier, auth.NewIssuer("secret", time.Hour), logging.Discard())
	return coord, verifier, clk, th
}

func TestLoginLockoutScenario(t *testing.T) {
	coord, verifier, clk, th := setup(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := coord.Login(ctx, "a@b.com", "wrong"); !errors.Is(err, credential.ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i+1, err)
		}
	}

	clk.Advance(time.Minute)
	_, err := coord.Login(ctx, "a@b.com", "Secret#1")
	var locked *throttle.LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("expected locked, got %v", err)
	}
	if locked.RemainingSeconds() <= 0 {
		t.Fatalf("expected a positive wait, got %d", locked.RemainingSeconds())
	}
	if verifier.Calls() != 5 {
		t.Fatalf("verifier must not run while locked, got %d calls", verifier.Calls())
	}

	clk.Advance(30 * time.Minute)
	grant, err := coord.Login(ctx, "a@b.com", "Secret#1")
	if err != nil {
		t.Fatalf("expected login after the lock window, got %v", err)
	}
	if grant.Subject.ID != "acc-1" || grant.Token.AccessToken == "" {
		t.Fatalf("unexpected grant %+v", grant)
	}
	st, _ := th.State(ctx, "a@b.com")
	if st.Failures != 0 {
		t.Fatalf("expected state reset after success, got %d failures", st.Failures)
	}
}

func TestLoginSuccessResetsAccumulatedFailures(t *testing.T) {
	coord, _, _, th := setup(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, _ = coord.Login(ctx, "a@b.com", "wrong")
	}
	if _, err := coord.Login(ctx, "A@B.com ", "Secret#1"); err != nil {
		t.Fatalf("login: %v", err)
	}
	st, _ := th.State(ctx, "a@b.com")
	if st.Failures != 0 {
		t.Fatalf("expected reset, got %d", st.Failures)
	}
}

func TestLoginStoreErrorsAreNotCountedAsFailures(t *testing.T) {
	coord, verifier, _, th := setup(t)
	verifier.err = errors.New("store down")

	if _, err := coord.Login(context.Background(), "a@b.com", "Secret#1"); err == nil || errors.Is(err, credential.ErrInvalidCredentials) {
		t.Fatalf("expected store error, got %v", err)
	}
	st, _ := th.State(context.Background(), "a@b.com")
	if st.Failures != 0 {
		t.Fatalf("store errors must not count, got %d", st.Failures)
	}
}

func TestLoginConcurrentGuessesStayWithinLimit(t *testing.T) {
	coord, verifier, _, th := setup(t)
	verifier.delay = 20 * time.Millisecond
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		invalid int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := coord.Login(ctx, "a@b.com", "guess")
			switch {
			case errors.Is(err, credential.ErrInvalidCredentials):
				mu.Lock()
				invalid++
				mu.Unlock()
			case errors.Is(err, throttle.ErrBusy), errors.Is(err, throttle.ErrLocked):
			default:
				t.Errorf("unexpected login result %v", err)
			}
		}()
	}
	wg.Wait()

	if verifier.Calls() != 5 {
		t.Fatalf("expected at most 5 password checks, got %d", verifier.Calls())
	}
	if invalid != 5 {
		t.Fatalf("expected 5 rejected guesses, got %d", invalid)
	}
	st, _ := th.State(ctx, "a@b.com")
	if st.Failures != 5 || st.LockUntil.IsZero() {
		t.Fatalf("expected a lock after 5 failures, got %+v", st)
	}
}

func TestLoginStoreErrorReleasesSlot(t *testing.T) {
	coord, verifier, _, th := setup(t)
	verifier.err = errors.New("store down")
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := coord.Login(ctx, "a@b.com", "Secret#1"); errors.Is(err, throttle.ErrBusy) {
			t.Fatalf("attempt %d: slots leaked after store errors", i+1)
		}
	}
	st, _ := th.State(ctx, "a@b.com")
	if st.Pending != 0 || st.Failures != 0 {
		t.Fatalf("expected no slots or failures, got %+v", st)
	}
}

func TestLoginHandler(t *testing.T) {
	coord, _, _, _ := setup(t)
	app := fiber.New()
	app.Post("/login", NewHandler(coord, "account_id").Login)

	post := func(body string) (int, string) {
		req := httptest.NewRequest(fiber.MethodPost, "/login", strings.NewReader(body))
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		return resp.StatusCode, resp.Header.Get(fiber.HeaderRetryAfter)
	}

	if status, _ := post(`{"email":"a@b.com"}`); status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 for missing password, got %d", status)
	}
	for i := 0; i < 5; i++ {
		if status, _ := post(`{"email":"a@b.com","password":"nope"}`); status != fiber.StatusUnauthorized {
			t.Fatalf("attempt %d: expected 401, got %d", i+1, status)
		}
	}
	status, retryAfter := post(`{"email":"a@b.com","password":"Secret#1"}`)
	if status != fiber.StatusForbidden {
		t.Fatalf("expected 403 while locked, got %d", status)
	}
	if retryAfter != "1800" {
		t.Fatalf("expected Retry-After 1800, got %q", retryAfter)
	}
}

func TestLockedMessage(t *testing.T) {
	cases := map[time.Duration]string{
		29*time.Minute + 12*time.Second: "Must wait 29 minutes 12 seconds",
		30 * time.Minute:                "Must wait 30 minutes to",
		1500 * time.Millisecond:         "Must wait 2 seconds",
	}
	for remaining, want := range cases {
		msg := LockedMessage(&throttle.LockedError{Remaining: remaining})
		if !strings.Contains(msg, want) {
			t.Fatalf("%s: expected %q in %q", remaining, want, msg)
		}
	}
}
