package user

import (
	"errors"
	"time"
)

var (
	ErrNotFound         = errors.New("user not found")
	ErrEmailTaken       = errors.New("email is already registered")
	ErrPasswordMismatch = errors.New("password confirmation mismatched")
	ErrWrongPassword    = errors.New("wrong password")
	ErrInvalidInput     = errors.New("invalid input")
)

// User is a general (operator) user of the platform.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
