package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/digibank/digibank/internal/credential"
)

// Roles carried in access tokens. A user token belongs to a back-office
// operator; an account token belongs to one banking-account holder.
const (
	RoleUser    = "user"
	RoleAccount = "account"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the access-token payload.
type Claims struct {
	Email         string `json:"email"`
	Role          string `json:"role"`
	AccountNumber string `json:"account_number,omitempty"`
	jwt.RegisteredClaims
}

// Token is returned to clients after a successful login.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Issuer signs and verifies HS256 access tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs an access token for subject.
func (i *Issuer) Issue(subject credential.Subject) (Token, error) {
	now := i.now().UTC()
	claims := Claims{
		Email:         subject.Email,
		Role:          subject.Role,
		AccountNumber: subject.AccountNumber,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign jwt: %w", err)
	}
	return Token{AccessToken: signed, TokenType: "Bearer", ExpiresIn: int64(i.ttl.Seconds())}, nil
}

// Parse verifies a token's signature and expiry and returns its claims.
func (i *Issuer) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// CanActOn reports whether the token holder may operate on the banking account
// with the given id. Operators may act on any account; holders only on their own.
func (c *Claims) CanActOn(accountID string) bool {
	switch c.Role {
	case RoleUser:
		return true
	case RoleAccount:
		return c.Subject == accountID
	default:
		return false
	}
}
