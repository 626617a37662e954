package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/edu-api/edu_auth/internal/auth"
)

// AccessTokenParser verifies bearer access tokens.
type AccessTokenParser interface {
	ParseAccessToken(token string) (auth.Claims, error)
}

// JWTAuth returns a middleware that requires a valid access token and
// exposes its claims to later handlers.
func JWTAuth(parser AccessTokenParser) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if len(authz) < len("bearer ") || !strings.EqualFold(authz[:len("bearer ")], "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := parser.ParseAccessToken(tokenStr)
		if err != nil {
			return fiber.NewError(http.StatusUnauthorized, auth.ErrInvalidToken.Error())
		}

		c.Locals(auth.ClaimsLocalKey, claims)
		c.Locals("user_id", claims.Subject)
		return c.Next()
	}
}
