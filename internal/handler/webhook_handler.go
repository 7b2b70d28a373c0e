package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/schemagate/internal/middleware"
	"github.com/GTDGit/schemagate/internal/service"
	"github.com/GTDGit/schemagate/internal/utils"
)

// ProductProcessor resolves product triggers.
type ProductProcessor interface {
	ProcessProduct(ctx context.Context, req service.ProcessRequest) (*service.ProcessResult, error)
}

// WebhookHandler handles product webhooks from the storefront platform.
type WebhookHandler struct {
	processor ProductProcessor
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(processor ProductProcessor) *WebhookHandler {
	return &WebhookHandler{processor: processor}
}

// productWebhook is the subset of the product create/update payload we read.
type productWebhook struct {
	ID        json.Number      `json:"id"`
	Title     string           `json:"title"`
	BodyHTML  string           `json:"body_html"`
	Vendor    string           `json:"vendor"`
	Currency  string           `json:"currency"`
	Variants  []productVariant `json:"variants"`
	UpdatedAt time.Time        `json:"updated_at"`
}

type productVariant struct {
	Price string `json:"price"`
	SKU   string `json:"sku"`
}

func (p *productWebhook) toRequest(shop string) service.ProcessRequest {
	fields := utils.ProductFields{
		Title:       p.Title,
		Description: p.BodyHTML,
		Vendor:      p.Vendor,
		Currency:    p.Currency,
	}
	if len(p.Variants) > 0 {
		fields.Price = p.Variants[0].Price
		fields.SKU = p.Variants[0].SKU
	}
	return service.ProcessRequest{
		Shop:      shop,
		ProductID: p.ID.String(),
		Product:   fields,
		ChangedAt: p.UpdatedAt,
	}
}

// HandleProductUpdate handles POST /webhooks/products
func (h *WebhookHandler) HandleProductUpdate(c *gin.Context) {
	// 1. Read body (already verified by WebhookAuthMiddleware)
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		utils.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid body")
		return
	}

	// 2. Parse payload
	var payload productWebhook
	if err := json.Unmarshal(body, &payload); err != nil {
		utils.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON")
		return
	}
	if strings.TrimSpace(payload.ID.String()) == "" || strings.TrimSpace(payload.Title) == "" {
		utils.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "Product id and title are required")
		return
	}

	// 3. Process trigger
	shop := middleware.GetShop(c)
	result, err := h.processor.ProcessProduct(c.Request.Context(), payload.toRequest(shop))
	if err != nil {
		log.Warn().Err(err).
			Str("shop", shop).
			Str("product_id", payload.ID.String()).
			Str("webhook_id", c.GetHeader(middleware.HeaderWebhookID)).
			Msg("product webhook not processed")
		utils.ErrorFrom(c, err)
		return
	}

	utils.Success(c, http.StatusOK, "Product processed", result)
}
