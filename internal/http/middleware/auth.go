package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/keyauth"

	"projectpreview/internal/domain"
	"projectpreview/internal/tokens"
)

const (
	APIKeyHeader     = "X-API-Key"
	APIKeyContextKey = "api_key"
)

// APIKey validates an optional X-API-Key header against the token cache.
// Requests without the header stay anonymous.
func APIKey(cache *tokens.Cache) fiber.Handler {
	return keyauth.New(keyauth.Config{
		KeyLookup:  "header:" + APIKeyHeader,
		ContextKey: APIKeyContextKey,
		Validator: func(c *fiber.Ctx, key string) (bool, error) {
			if !cache.Ready() {
				return false, domain.ErrTokenStoreNotReady
			}
			if !cache.Valid(key) {
				return false, domain.ErrInvalidAPIKey
			}
			return true, nil
		},
		Next: func(c *fiber.Ctx) bool {
			return c.Method() == fiber.MethodOptions || c.Get(APIKeyHeader) == ""
		},
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// keyauth may hand over a nil error.
			if err == nil {
				err = fiber.ErrUnauthorized
			}
			status := fiber.StatusUnauthorized
			if errors.Is(err, domain.ErrTokenStoreNotReady) {
				status = fiber.StatusServiceUnavailable
			}
			return c.Status(status).JSON(fiber.Map{
				"error": fiber.Map{
					"code":    status,
					"message": err.Error(),
				},
			})
		},
	})
}

// RequireScope rejects authenticated requests whose token scope does not
// include name. Anonymous requests pass.
func RequireScope(cache *tokens.Cache, name string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := apiKey(c)
		if token == "" || cache == nil {
			return c.Next()
		}
		if e, ok := cache.Lookup(token); ok && !e.Scope.Allows(name) {
			return fiber.NewError(fiber.StatusForbidden, "api key not allowed for "+name)
		}
		return c.Next()
	}
}
