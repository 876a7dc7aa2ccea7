package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"natrip-payments/internal/domain"
	"natrip-payments/internal/dto"
)

const WebhookSecretHeader = "x-webhook-secret"

type WebhookAuthorizer interface {
	AuthorizeWebhook(provider, credential string) error
}

// WebhookAuth checks the shared secret (header) or webhook token (query)
// for the provider named by the route. provider is used when the route
// has no :provider parameter.
func WebhookAuth(auth WebhookAuthorizer, provider string) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("provider")
		if name == "" {
			name = provider
		}

		credential := c.GetHeader(WebhookSecretHeader)
		if credential == "" {
			credential = c.Query("token")
		}

		if err := auth.AuthorizeWebhook(name, credential); err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, domain.ErrProviderNotConfigured) {
				status = http.StatusBadRequest
			}
			c.AbortWithStatusJSON(status, dto.ErrorResponse{Error: err.Error()})
			return
		}
		c.Next()
	}
}
