package user

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/digibank/digibank/internal/credential"
)

// Handler exposes user management endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a user HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createRequest struct {
	Name            string `json:"name"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
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

type userResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

func toResponse(u User) userResponse {
	return userResponse{ID: u.ID, Name: u.Name, Email: u.Email, CreatedAt: u.CreatedAt}
}

// Create registers a new user.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	u, err := h.service.Create(c.UserContext(), CreateInput{
		Name:            req.Name,
		Email:           req.Email,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
	})
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"id": u.ID, "name": u.Name, "email": u.Email})
}

// List returns all users.
func (h *Handler) List(c *fiber.Ctx) error {
	users, err := h.service.List(c.UserContext())
	if err != nil {
		return mapError(err)
	}
	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toResponse(u))
	}
	return c.Status(http.StatusOK).JSON(out)
}

// Get returns one user.
func (h *Handler) Get(c *fiber.Ctx) error {
	u, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(u))
}

// Update changes name and email.
func (h *Handler) Update(c *fiber.Ctx) error {
	id := c.Params("id")
	var req profileRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if _, err := h.service.Update(c.UserContext(), id, req.Name, req.Email); err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"id": id})
}

// ChangePassword replaces the user's password.
func (h *Handler) ChangePassword(c *fiber.Ctx) error {
	id := c.Params("id")
	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.service.ChangePassword(c.UserContext(), id, ChangePasswordInput{Old: req.Old, New: req.New, Confirm: req.Confirm}); err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"id": id})
}

// Delete removes a user.
func (h *Handler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.service.Delete(c.UserContext(), id); err != nil {
		return mapError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"id": id})
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, "Unknown user")
	case errors.Is(err, ErrEmailTaken):
		return fiber.NewError(http.StatusConflict, "Email is already registered")
	case errors.Is(err, ErrWrongPassword):
		return fiber.NewError(http.StatusUnauthorized, "Wrong password")
	case errors.Is(err, ErrPasswordMismatch),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, credential.ErrWeakPassword):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	default:
		return err
	}
}
