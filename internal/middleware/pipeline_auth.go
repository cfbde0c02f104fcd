package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/clipquiz/api/pkg/response"
)

// PipelineAuthMiddleware guards the internal progress ingress. The extraction
// pipeline authenticates with a shared bearer token rather than a user JWT.
func PipelineAuthMiddleware(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			return response.Unauthorized(c, "Pipeline ingress not configured")
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return response.Unauthorized(c, "Missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return response.Unauthorized(c, "Invalid authorization header format")
		}

		if subtle.ConstantTimeCompare([]byte(parts[1]), []byte(token)) != 1 {
			return response.Unauthorized(c, "Invalid pipeline token")
		}

		return c.Next()
	}
}
