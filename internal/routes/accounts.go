package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/digibank/digibank/internal/access"
	"github.com/digibank/digibank/internal/account"
	"github.com/digibank/digibank/internal/payments"
)

// AccountHandlers groups the handlers mounted under /digitalbanking.
type AccountHandlers struct {
	Accounts *account.Handler
	Login    *access.Handler
	Payments *payments.Handler
}

// RegisterAccountRoutes wires banking-account, login and money-movement
// endpoints. Ownership of a specific account is checked by the handlers.
// The authenticated and operators chains run before each protected handler.
func RegisterAccountRoutes(r fiber.Router, h AccountHandlers, rateLimiter fiber.Handler, authenticated, operators []fiber.Handler) {
	group := r.Group("/digitalbanking")

	// Public
	group.Post("/register", h.Accounts.Register)
	group.Post("/login", chain(rateLimiter, h.Login.Login)...)

	// Protected
	group.Get("/account", with(operators, h.Accounts.List)...)
	group.Get("/account/:id", with(authenticated, h.Accounts.Get)...)
	group.Get("/transactions/:account_number", with(authenticated, h.Payments.Statement)...)
	group.Post("/transfer", with(authenticated, h.Payments.Transfer)...)
	group.Delete("/profile/:id", with(authenticated, h.Accounts.Close)...)
	group.Put("/:id", with(authenticated, h.Accounts.Update)...)
	group.Put("/:id/deposit-money", with(authenticated, h.Payments.Deposit)...)
	group.Put("/:id/change-password", with(authenticated, h.Accounts.ChangePassword)...)
}
