package access

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/digibank/digibank/internal/credential"
	"github.com/digibank/digibank/internal/throttle"
)

// Handler exposes a login flow over HTTP.
type Handler struct {
	coord *Coordinator
	// idField names the subject id in responses ("user_id" or "account_id").
	idField string
}

func NewHandler(coord *Coordinator, idField string) *Handler {
	return &Handler{coord: coord, idField: idField}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates an email/password pair and returns an access token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return fiber.NewError(http.StatusBadRequest, "email and password are required")
	}

	grant, err := h.coord.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		var locked *throttle.LockedError
		if errors.As(err, &locked) {
			c.Set(fiber.HeaderRetryAfter, strconv.FormatInt(locked.RemainingSeconds(), 10))
			return fiber.NewError(http.StatusForbidden, LockedMessage(locked))
		}
		if errors.Is(err, throttle.ErrBusy) {
			c.Set(fiber.HeaderRetryAfter, "1")
			return fiber.NewError(http.StatusTooManyRequests, "Too many login attempts in progress. Try again shortly.")
		}
		if errors.Is(err, credential.ErrInvalidCredentials) {
			return fiber.NewError(http.StatusUnauthorized, "Wrong email or password")
		}
		return err
	}

	return c.Status(http.StatusOK).JSON(fiber.Map{
		h.idField:    grant.Subject.ID,
		"name":       grant.Subject.Name,
		"email":      grant.Subject.Email,
		"token":      grant.Token.AccessToken,
		"token_type": grant.Token.TokenType,
		"expires_in": grant.Token.ExpiresIn,
	})
}

// LockedMessage tells the caller how long to wait, and nothing about how many
// attempts were made.
func LockedMessage(locked *throttle.LockedError) string {
	secs := locked.RemainingSeconds()
	minutes, seconds := secs/60, secs%60
	switch {
	case minutes == 0:
		return fmt.Sprintf("Too many failed login attempts. Must wait %d seconds to try login again.", seconds)
	case seconds == 0:
		return fmt.Sprintf("Too many failed login attempts. Must wait %d minutes to try login again.", minutes)
	default:
		return fmt.Sprintf("Too many failed login attempts. Must wait %d minutes %d seconds to try login again.", minutes, seconds)
	}
}
