package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/GTDGit/schemagate/internal/models"
	"github.com/GTDGit/schemagate/internal/service"
	"github.com/GTDGit/schemagate/internal/utils"
)

// CreditManager is the admin view of the credit ledger.
type CreditManager interface {
	CheckBalance(ctx context.Context, shop string) (*service.BalanceResult, error)
	AddCredits(ctx context.Context, shop string, amount int) (*service.LedgerResult, error)
}

// Onboarder records a tenant's brand voice.
type Onboarder interface {
	Onboard(ctx context.Context, shop, brandVoice string) (*models.Tenant, error)
}

// TenantHandler handles tenant administration endpoints.
type TenantHandler struct {
	credits    CreditManager
	onboarding Onboarder
}

// NewTenantHandler constructs a TenantHandler.
func NewTenantHandler(credits CreditManager, onboarding Onboarder) *TenantHandler {
	return &TenantHandler{credits: credits, onboarding: onboarding}
}

// AddCreditsRequest is the body of a top-up.
type AddCreditsRequest struct {
	Amount int `json:"amount" binding:"required"`
}

// OnboardRequest is the body of an onboarding call.
type OnboardRequest struct {
	BrandVoice string `json:"brandVoice" binding:"required"`
}

func shopParam(c *gin.Context) string {
	return strings.ToLower(strings.TrimSpace(c.Param("shop")))
}

// GetBalance handles GET /v1/admin/tenants/:shop/balance
func (h *TenantHandler) GetBalance(c *gin.Context) {
	res, err := h.credits.CheckBalance(c.Request.Context(), shopParam(c))
	if err != nil {
		utils.ErrorFrom(c, err)
		return
	}

	utils.Success(c, http.StatusOK, "Balance retrieved", res)
}

// AddCredits handles POST /v1/admin/tenants/:shop/credits
func (h *TenantHandler) AddCredits(c *gin.Context) {
	var req AddCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	res, err := h.credits.AddCredits(c.Request.Context(), shopParam(c), req.Amount)
	if err != nil {
		utils.ErrorFrom(c, err)
		return
	}

	utils.Success(c, http.StatusOK, "Credits added", res)
}

// Onboard handles POST /v1/admin/tenants/:shop/onboard
func (h *TenantHandler) Onboard(c *gin.Context) {
	var req OnboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body")
		return
	}

	tenant, err := h.onboarding.Onboard(c.Request.Context(), shopParam(c), req.BrandVoice)
	if err != nil {
		utils.ErrorFrom(c, err)
		return
	}

	utils.Success(c, http.StatusOK, "Tenant onboarded", tenant)
}
