package payments

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/digibank/digibank/internal/account"
	"github.com/digibank/digibank/internal/ledger"
	"github.com/digibank/digibank/internal/middleware"
)

// Handler exposes payment endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	FromAccountNumber string          `json:"from_account_number"`
	ToAccountNumber   string          `json:"to_account_number"`
	Amount            decimal.Decimal `json:"amountbalance"`
	Description       string          `json:"description"`
}

type depositRequest struct {
	ToAccountNumber string          `json:"to_account_number"`
	Amount          decimal.Decimal `json:"amountnominal"`
	Description     string          `json:"description"`
}

// Transfer moves money between two accounts.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.FromAccountNumber == "" || req.ToAccountNumber == "" {
		return fiber.NewError(http.StatusBadRequest, "from_account_number and to_account_number are required")
	}
	amount, err := ledger.AmountFromDecimal(req.Amount)
	if err != nil {
		return mapError(err)
	}

	tx, err := h.service.Transfer(c.UserContext(), middleware.Claims(c), TransferInput{
		FromAccountNumber: req.FromAccountNumber,
		ToAccountNumber:   req.ToAccountNumber,
		Amount:            amount,
		Description:       req.Description,
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message":     "Transfer Balance Successful",
		"transaction": tx,
	})
}

// Deposit credits the account in the path.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	amount, err := ledger.AmountFromDecimal(req.Amount)
	if err != nil {
		return mapError(err)
	}

	tx, err := h.service.Deposit(c.UserContext(), middleware.Claims(c), c.Params("id"), DepositInput{
		AccountNumber: req.ToAccountNumber,
		Amount:        amount,
		Description:   req.Description,
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message":     "Deposit Successful",
		"transaction": tx,
	})
}

// Statement lists an account's transactions oldest first.
func (h *Handler) Statement(c *fiber.Ctx) error {
	txs, err := h.service.Statement(c.UserContext(), middleware.Claims(c), c.Params("account_number"))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(txs)
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotOwner):
		return fiber.NewError(http.StatusForbidden, "not allowed to act on this account")
	case errors.Is(err, account.ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "Unknown account")
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return fiber.NewError(http.StatusUnprocessableEntity, "Not Enough Balance for Transfer")
	case errors.Is(err, ledger.ErrUnknownAccount):
		return fiber.NewError(http.StatusUnprocessableEntity, "Unknown account number")
	case errors.Is(err, ledger.ErrInvalidAmount):
		return fiber.NewError(http.StatusBadRequest, "amount must be a positive whole number")
	case errors.Is(err, ledger.ErrSameAccount), errors.Is(err, ErrAccountMismatch):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	default:
		return err
	}
}
