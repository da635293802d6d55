package account

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/digibank/digibank/internal/credential"
	"github.com/digibank/digibank/internal/ledger"
	"github.com/digibank/digibank/internal/middleware"
)

// Handler exposes banking-account HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an account HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type registerRequest struct {
	Name            string          `json:"name"`
	Email           string          `json:"email"`
	Password        string          `json:"password"`
	PasswordConfirm string          `json:"password_confirm"`
	Balance         decimal.Decimal `json:"balance"`
}

type profileRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type changePasswordRequest struct {
	Old     string `json:"password_old"`
	New     string `json:"password_new"`
	Confirm string `json:"password_confirm"`
}

type accountResponse struct {
	ID            string    `json:"account_id"`
	AccountNumber string    `json:"account_number"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Balance       int64     `json:"balance"`
	CreatedAt     time.Time `json:"created_at"`
}

func toResponse(p Profile) accountResponse {
	return accountResponse{
		ID:            p.ID,
		AccountNumber: p.AccountNumber,
		Name:          p.Name,
		Email:         p.Email,
		Balance:       p.Balance,
		CreatedAt:     p.CreatedAt,
	}
}

// Register opens a banking account with an opening balance.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	opening, err := ledger.AmountFromDecimal(req.Balance)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, "balance must be a positive whole amount")
	}
	profile, err := h.service.Register(c.UserContext(), RegisterInput{
		Name:            req.Name,
		Email:           req.Email,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
		OpeningBalance:  opening,
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"account_id":     profile.ID,
		"account_number": profile.AccountNumber,
		"name":           profile.Name,
		"email":          profile.Email,
		"balance":        profile.Balance,
		"message":        "Success Create Bank Account",
	})
}

// List returns every active account.
func (h *Handler) List(c *fiber.Ctx) error {
	profiles, err := h.service.List(c.UserContext())
	if err != nil {
		return mapError(err)
	}
	out := make([]accountResponse, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, toResponse(p))
	}
	return c.Status(http.StatusOK).JSON(out)
}

// Get returns one account.
func (h *Handler) Get(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := authorize(c, id); err != nil {
		return err
	}
	profile, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(profile))
}

// Update changes the holder's name and email.
func (h *Handler) Update(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := authorize(c, id); err != nil {
		return err
	}
	var req profileRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if _, err := h.service.Update(c.UserContext(), id, req.Name, req.Email); err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"id": id})
}

// ChangePassword replaces the account password.
func (h *Handler) ChangePassword(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := authorize(c, id); err != nil {
		return err
	}
	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	err := h.service.ChangePassword(c.UserContext(), id, ChangePasswordInput{Old: req.Old, New: req.New, Confirm: req.Confirm})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"id": id})
}

// Close closes the account.
func (h *Handler) Close(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := authorize(c, id); err != nil {
		return err
	}
	if err := h.service.Close(c.UserContext(), id); err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"id": id})
}

func authorize(c *fiber.Ctx, accountID string) error {
	claims := middleware.Claims(c)
	if claims == nil {
		return fiber.NewError(http.StatusUnauthorized, "missing credentials")
	}
	if !claims.CanActOn(accountID) {
		return fiber.NewError(http.StatusForbidden, "not allowed to act on this account")
	}
	return nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "Unknown account")
	case errors.Is(err, ErrEmailTaken):
		return fiber.NewError(http.StatusConflict, "Email is already registered")
	case errors.Is(err, ErrDuplicateAccountNumber):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrWrongPassword):
		return fiber.NewError(http.StatusUnauthorized, "Wrong password")
	case errors.Is(err, ErrPasswordMismatch),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, credential.ErrWeakPassword):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrBelowMinimumBalance), errors.Is(err, ledger.ErrInvalidAmount):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	default:
		return err
	}
}
