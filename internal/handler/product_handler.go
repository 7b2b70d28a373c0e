package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/schemagate/internal/models"
	"github.com/GTDGit/schemagate/internal/service"
	"github.com/GTDGit/schemagate/internal/utils"
)

// ProductService is the admin view of the orchestrator.
type ProductService interface {
	ProductProcessor
	GetProduct(ctx context.Context, productID string) (*models.ProductRecord, error)
}

// ProductHandler exposes manual triggers and artifact lookup to operators.
type ProductHandler struct {
	products ProductService
}

// NewProductHandler constructs a ProductHandler.
func NewProductHandler(products ProductService) *ProductHandler {
	return &ProductHandler{products: products}
}

// ProcessProductRequest is the body of a manual trigger.
type ProcessProductRequest struct {
	Shop      string              `json:"shop" binding:"required"`
	ProductID string              `json:"productId" binding:"required"`
	Product   utils.ProductFields `json:"product"`
	ChangedAt *time.Time          `json:"changedAt"`
}

// ProcessProduct handles POST /v1/admin/products/process
func (h *ProductHandler) ProcessProduct(c *gin.Context) {
	var req ProcessProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	pr := service.ProcessRequest{
		Shop:      strings.ToLower(strings.TrimSpace(req.Shop)),
		ProductID: strings.TrimSpace(req.ProductID),
		Product:   req.Product,
	}
	if req.ChangedAt != nil {
		pr.ChangedAt = *req.ChangedAt
	}

	result, err := h.products.ProcessProduct(c.Request.Context(), pr)
	if err != nil {
		utils.ErrorFrom(c, err)
		return
	}

	utils.Success(c, http.StatusOK, "Product processed", result)
}

// GetProduct handles GET /v1/admin/products/:productId
func (h *ProductHandler) GetProduct(c *gin.Context) {
	rec, err := h.products.GetProduct(c.Request.Context(), c.Param("productId"))
	if err != nil {
		utils.ErrorFrom(c, err)
		return
	}

	utils.Success(c, http.StatusOK, "Product retrieved", rec)
}
