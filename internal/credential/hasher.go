package credential

import (
	"errors"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// ErrWeakPassword rejects passwords outside the password policy.
var ErrWeakPassword = errors.New("password must be 6-32 characters with upper and lower case letters, a digit and a special character, without spaces")

// Hasher hashes and compares passwords.
type Hasher interface {
	Hash(plain string) ([]byte, error)
	Compare(digest []byte, plain string) bool
}

// BcryptHasher is the production Hasher.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher returns a bcrypt hasher. A cost outside bcrypt's range uses
// bcrypt.DefaultCost.
func NewBcryptHasher(cost int) BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return BcryptHasher{cost: cost}
}

func (h BcryptHasher) Hash(plain string) ([]byte, error) {
	return bcrypt.GenerateFromPassword([]byte(plain), h.cost)
}

func (h BcryptHasher) Compare(digest []byte, plain string) bool {
	return bcrypt.CompareHashAndPassword(digest, []byte(plain)) == nil
}

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

// CheckPolicy enforces the password policy shared by banking accounts and users.
func CheckPolicy(password string) error {
	if n := len([]rune(password)); n < 6 || n > 32 || len(password) > maxPasswordBytes {
		return ErrWeakPassword
	}
	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case unicode.IsSpace(r):
			return ErrWeakPassword
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		default:
			special = true
		}
	}
	if !upper || !lower || !digit || !special {
		return ErrWeakPassword
	}
	return nil
}
