package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/digibank/digibank/internal/auth"
)

const claimsKey = "auth_claims"

// TokenParser verifies access tokens.
type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// JWTAuth returns a middleware that validates bearer access tokens and stores
// the claims on the request. When roles are given the token must carry one.
func JWTAuth(parser TokenParser, roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		claims, err := parser.Parse(tokenStr)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}
		if len(roles) > 0 && !hasRole(claims.Role, roles) {
			return fiber.NewError(http.StatusForbidden, "forbidden")
		}

		c.Locals(claimsKey, claims)
		return c.Next()
	}
}

// Claims returns the verified claims stored by JWTAuth, or nil.
func Claims(c *fiber.Ctx) *auth.Claims {
	claims, _ := c.Locals(claimsKey).(*auth.Claims)
	return claims
}

func hasRole(role string, allowed []string) bool {
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}
