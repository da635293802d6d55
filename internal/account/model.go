package account

import (
	"errors"
	"time"
)

const (
	StatusActive = "active"
	StatusClosed = "closed"
)

var (
	ErrNotFound               = errors.New("account not found")
	ErrEmailTaken             = errors.New("email is already registered")
	ErrDuplicateAccountNumber = errors.New("account number already exists")
	ErrPasswordMismatch       = errors.New("password confirmation mismatched")
	ErrWrongPassword          = errors.New("wrong password")
	ErrBelowMinimumBalance    = errors.New("opening balance is below the minimum")
	ErrInvalidInput           = errors.New("invalid input")
)

// Account is a banking-account holder's profile. Its balance and transaction
// log live in the ledger under AccountNumber.
type Account struct {
	ID            string
	AccountNumber string
	Name          string
	Email         string
	PasswordHash  []byte
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Profile is an account together with its current ledger balance.
type Profile struct {
	Account
	Balance int64
}
