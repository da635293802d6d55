package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/digibank/digibank/internal/user"
)

// RegisterUserRoutes wires user management, restricted to operator tokens.
func RegisterUserRoutes(r fiber.Router, h *user.Handler, operators []fiber.Handler) {
	group := r.Group("/users", operators...)
	group.Post("/", h.Create)
	group.Get("/", h.List)
	group.Get("/:id", h.Get)
	group.Put("/:id", h.Update)
	group.Delete("/:id", h.Delete)
	group.Put("/:id/change-password", h.ChangePassword)
}
