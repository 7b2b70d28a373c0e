package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/schemagate/internal/models"
	"github.com/GTDGit/schemagate/internal/utils"
)

// maxBrandVoiceLen bounds the directive embedded into every generation prompt.
const maxBrandVoiceLen = 2000

// OnboardingService opens tenants for processing.
type OnboardingService struct {
	store          TenantStore
	defaultCredits int
}

// NewOnboardingService constructs an OnboardingService.
func NewOnboardingService(store TenantStore, defaultCredits int) *OnboardingService {
	return &OnboardingService{store: store, defaultCredits: defaultCredits}
}

// Onboard stores brandVoice and marks shop onboarded, provisioning the tenant
// when absent. Re-onboarding replaces the brand voice and keeps the balance.
func (s *OnboardingService) Onboard(ctx context.Context, shop, brandVoice string) (*models.Tenant, error) {
	brandVoice = strings.TrimSpace(brandVoice)
	if brandVoice == "" {
		return nil, fmt.Errorf("%w: brand voice is required", utils.ErrInvalidRequest)
	}
	if len(brandVoice) > maxBrandVoiceLen {
		return nil, fmt.Errorf("%w: brand voice exceeds %d characters", utils.ErrInvalidRequest, maxBrandVoiceLen)
	}

	tenant, err := s.store.SetOnboarded(ctx, shop, brandVoice, s.defaultCredits)
	if err != nil {
		return nil, fmt.Errorf("onboard %s: %w", shop, err)
	}

	log.Info().Str("shop", shop).Int("credits", tenant.Credits).Msg("tenant onboarded")
	return tenant, nil
}
