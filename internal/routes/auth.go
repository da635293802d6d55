package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/digibank/digibank/internal/access"
)

// RegisterAuthRoutes wires the general-user login endpoint.
func RegisterAuthRoutes(r fiber.Router, login *access.Handler, rateLimiter fiber.Handler) {
	group := r.Group("/auth")
	group.Post("/login", chain(rateLimiter, login.Login)...)
}
