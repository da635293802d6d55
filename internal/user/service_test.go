package user

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/digibank/digibank/internal/auth"
	"github.com/digibank/digibank/internal/credential"
	"github.com/digibank/digibank/internal/logging"
	"github.com/digibank/digibank/internal/middleware"
)

func newService() *Service {
	return NewService(NewMemoryRepository(), credential.NewBcryptHasher(bcrypt.MinCost), logging.Discard())
}

func TestCreateAndLookup(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	u, err := svc.Create(ctx, CreateInput{Name: "Admin", Email: " Admin@Example.com ", Password: "Secret#1", PasswordConfirm: "Secret#1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if u.Email != "admin@example.com" {
		t.Fatalf("expected normalized email, got %q", u.Email)
	}

	if _, err := svc.Create(ctx, CreateInput{Name: "Other", Email: "admin@example.com", Password: "Secret#1", PasswordConfirm: "Secret#1"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected email taken, got %v", err)
	}
	if _, err := svc.Create(ctx, CreateInput{Name: "Other", Email: "o@example.com", Password: "Secret#1", PasswordConfirm: "Secret#2"}); !errors.Is(err, ErrPasswordMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}

	rec, err := svc.LookupCredential(ctx, "admin@example.com")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if rec.Subject.Role != auth.RoleUser || rec.Subject.ID != u.ID {
		t.Fatalf("unexpected subject %+v", rec.Subject)
	}
	if _, err := svc.LookupCredential(ctx, "nobody@example.com"); !errors.Is(err, credential.ErrUnknownIdentity) {
		t.Fatalf("expected unknown identity, got %v", err)
	}
}

func TestBootstrapIsIdempotent(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	created, err := svc.Bootstrap(ctx, "Administrator", "admin@example.com", "Secret#1")
	if err != nil || !created {
		t.Fatalf("expected first bootstrap to create, got %v %v", created, err)
	}
	created, err = svc.Bootstrap(ctx, "Administrator", "admin@example.com", "Secret#1")
	if err != nil || created {
		t.Fatalf("expected second bootstrap to be a no-op, got %v %v", created, err)
	}
	users, _ := svc.List(ctx)
	if len(users) != 1 {
		t.Fatalf("expected one user, got %d", len(users))
	}
}

func TestChangePasswordAndDelete(t *testing.T) {
	svc := newService()
	ctx := context.Background()
	u, err := svc.Create(ctx, CreateInput{Name: "Ana", Email: "ana@example.com", Password: "Secret#1", PasswordConfirm: "Secret#1"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.ChangePassword(ctx, u.ID, ChangePasswordInput{Old: "wrong", New: "Newer#22", Confirm: "Newer#22"}); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("expected wrong password, got %v", err)
	}
	if err := svc.ChangePassword(ctx, u.ID, ChangePasswordInput{Old: "Secret#1", New: "Newer#22", Confirm: "Newer#22"}); err != nil {
		t.Fatalf("change password: %v", err)
	}

	if err := svc.Delete(ctx, u.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(ctx, u.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted user to be gone, got %v", err)
	}
	if err := svc.Delete(ctx, u.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected second delete to fail, got %v", err)
	}
}

func TestHandlerRequiresOperatorToken(t *testing.T) {
	svc := newService()
	issuer := auth.NewIssuer("secret", time.Hour)
	h := NewHandler(svc)

	app := fiber.New()
	app.Post("/users", middleware.JWTAuth(issuer, auth.RoleUser), h.Create)

	operator, err := issuer.Issue(credential.Subject{ID: "u-1", Role: auth.RoleUser})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	holder, err := issuer.Issue(credential.Subject{ID: "acc-1", Role: auth.RoleAccount})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	body := `{"name":"Bob","email":"bob@example.com","password":"Secret#1","password_confirm":"Secret#1"}`
	cases := []struct {
		name   string
		token  string
		status int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"account holder", holder.AccessToken, http.StatusForbidden},
		{"operator", operator.AccessToken, http.StatusCreated},
		{"duplicate", operator.AccessToken, http.StatusConflict},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodPost, "/users", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if tc.token != "" {
			req.Header.Set("Authorization", "Bearer "+tc.token)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("%s: request: %v", tc.name, err)
		}
		if resp.StatusCode != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.status, resp.StatusCode)
		}
		if tc.status == http.StatusCreated {
			var out map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if out["email"] != "bob@example.com" || out["id"] == "" {
				t.Fatalf("unexpected body %v", out)
			}
		}
	}
}
