package middleware

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/digibank/digibank/internal/auth"
	"github.com/digibank/digibank/internal/credential"
	"github.com/digibank/digibank/internal/logging"
)

var testIssuer = auth.NewIssuer("idempotency-secret", time.Hour)

func setupTestApp(t *testing.T) (*fiber.App, *miniredis.Miniredis, *int, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}

	cache := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	logger := logging.Discard()
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(logger)})
	idem := Idempotency(cache, time.Minute, time.Second, logger)
	authenticated := JWTAuth(testIssuer)

	calls := 0
	created := func(c *fiber.Ctx) error {
		calls++
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"call": calls})
	}
	app.Post("/resource", authenticated, idem, created)
	app.Post("/public", idem, created)
	app.Post("/rejected", authenticated, idem, func(c *fiber.Ctx) error {
		calls++
		return fiber.NewError(fiber.StatusUnprocessableEntity, "Not Enough Balance for Transfer")
	})

	cleanup := func() {
		cache.Close()
		mr.Close()
	}

	return app, mr, &calls, cleanup
}

func post(t *testing.T, app *fiber.App, path, key string) (int, string) {
	t.Helper()
	return postAs(t, app, "acc-1", path, key)
}

// postAs sends the request with a token for subject, or anonymously when
// subject is empty.
func postAs(t *testing.T, app *fiber.App, subject, path, key string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	if subject != "" {
		token, err := testIssuer.Issue(credential.Subject{ID: subject, Role: auth.RoleAccount})
		if err != nil {
			t.Fatalf("issue token: %v", err)
		}
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token.AccessToken)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	resp.Body.Close()
	return resp.StatusCode, string(body)
}

func TestIdempotencyWithoutHeaderPassesThrough(t *testing.T) {
	app, _, calls, cleanup := setupTestApp(t)
	defer cleanup()

	post(t, app, "/resource", "")
	post(t, app, "/resource", "")
	if *calls != 2 {
		t.Fatalf("expected handler to run twice, ran %d times", *calls)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	app, _, calls, cleanup := setupTestApp(t)
	defer cleanup()

	status, payload := post(t, app, "/resource", "abc123")
	if status != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, status)
	}

	// Second request should return the cached response without invoking handler again.
	status, cachedPayload := post(t, app, "/resource", "abc123")
	if status != fiber.StatusCreated {
		t.Fatalf("expected cached status %d got %d", fiber.StatusCreated, status)
	}
	if cachedPayload != payload {
		t.Fatalf("expected cached payload %s got %s", payload, cachedPayload)
	}
	if *calls != 1 {
		t.Fatalf("expected handler to run once, ran %d times", *calls)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(cachedPayload), &decoded); err != nil {
		t.Fatalf("cached payload invalid json: %v", err)
	}
}

func TestIdempotencyDoesNotStoreFailures(t *testing.T) {
	app, mr, calls, cleanup := setupTestApp(t)
	defer cleanup()

	for i := 0; i < 2; i++ {
		status, _ := post(t, app, "/rejected", "k-1")
		if status != fiber.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", status)
		}
	}
	if *calls != 2 {
		t.Fatalf("failed requests must be retried, ran %d times", *calls)
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("expected no stored keys, got %v", keys)
	}
}

func TestIdempotencyKeysAreScopedByPath(t *testing.T) {
	app, _, calls, cleanup := setupTestApp(t)
	defer cleanup()

	post(t, app, "/resource", "shared")
	post(t, app, "/rejected", "shared")
	if *calls != 2 {
		t.Fatalf("expected both handlers to run, ran %d times", *calls)
	}
}

func TestIdempotencyKeysAreScopedByCaller(t *testing.T) {
	app, _, calls, cleanup := setupTestApp(t)
	defer cleanup()

	_, first := postAs(t, app, "acc-1", "/resource", "shared")
	status, second := postAs(t, app, "acc-2", "/resource", "shared")
	if status != fiber.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}
	if second == first || *calls != 2 {
		t.Fatalf("another caller must not receive a stored response, calls=%d body=%s", *calls, second)
	}
}

func TestIdempotencySkipsAnonymousRequests(t *testing.T) {
	app, mr, calls, cleanup := setupTestApp(t)
	defer cleanup()

	postAs(t, app, "", "/public", "k-anon")
	postAs(t, app, "", "/public", "k-anon")
	if *calls != 2 {
		t.Fatalf("anonymous requests must always run, ran %d times", *calls)
	}
	if keys := mr.Keys(); len(keys) != 0 {
		t.Fatalf("expected no stored keys, got %v", keys)
	}
}

func TestIdempotencyInProgressConflicts(t *testing.T) {
	app, mr, _, cleanup := setupTestApp(t)
	defer cleanup()

	if err := mr.Set(idempotencyCacheKey(auth.RoleAccount, "acc-1", fiber.MethodPost, "/resource", "busy"), inProgressMarker); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if status, _ := post(t, app, "/resource", "busy"); status != fiber.StatusConflict {
		t.Fatalf("expected 409, got %d", status)
	}
}

func TestIdempotencyStoreUnavailable(t *testing.T) {
	app, mr, calls, cleanup := setupTestApp(t)
	defer cleanup()

	mr.Close()
	status, _ := post(t, app, "/resource", "abc")
	if status != fiber.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", status)
	}
	if *calls != 0 {
		t.Fatalf("handler must not run without the store, ran %d times", *calls)
	}
}
