package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/schemagate/internal/metrics"
	"github.com/GTDGit/schemagate/internal/utils"
)

// Webhook headers sent by the storefront platform.
const (
	HeaderShopDomain = "X-Shopify-Shop-Domain"
	HeaderHmac       = "X-Shopify-Hmac-Sha256"
	HeaderTopic      = "X-Shopify-Topic"
	HeaderWebhookID  = "X-Shopify-Webhook-Id"

	maxWebhookBody = 1 << 20
)

// WebhookAuthMiddleware verifies the HMAC signature of product webhooks and
// resolves the tenant from the shop domain header.
type WebhookAuthMiddleware struct {
	secret      string
	rateLimiter *InvalidAuthRateLimiter
}

// NewWebhookAuthMiddleware constructs a new WebhookAuthMiddleware.
func NewWebhookAuthMiddleware(secret string, limiter *InvalidAuthRateLimiter) *WebhookAuthMiddleware {
	return &WebhookAuthMiddleware{secret: secret, rateLimiter: limiter}
}

// Handle returns a Gin middleware function that enforces the signature.
func (m *WebhookAuthMiddleware) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
		if err != nil {
			utils.Error(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Webhook payload too large")
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		if !utils.VerifyWebhookSignature(body, c.GetHeader(HeaderHmac), m.secret) {
			m.handleAuthError(c, "Invalid webhook signature")
			return
		}

		shop := strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderShopDomain)))
		if shop == "" {
			m.handleAuthError(c, "Missing shop domain")
			return
		}

		c.Set("shop", shop)
		c.Next()
	}
}

func (m *WebhookAuthMiddleware) handleAuthError(c *gin.Context, message string) {
	metrics.InvalidSignatureTotal.Inc()

	if m.rateLimiter != nil && !m.rateLimiter.Allow(c.ClientIP()) {
		utils.Error(c, http.StatusTooManyRequests, "TOO_MANY_REQUESTS", "Too many invalid webhook attempts")
		c.Abort()
		return
	}

	utils.Error(c, http.StatusUnauthorized, utils.ErrInvalidSignature.Error(), message)
	c.Abort()
}

// GetShop returns the shop resolved by WebhookAuthMiddleware.
func GetShop(c *gin.Context) string {
	return c.GetString("shop")
}
