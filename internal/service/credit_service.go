package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/schemagate/internal/metrics"
	"github.com/GTDGit/schemagate/internal/models"
	"github.com/GTDGit/schemagate/internal/repository"
	"github.com/GTDGit/schemagate/internal/utils"
)

// TenantStore is the storage boundary of the credit ledger. Implementations
// must perform Decrement and Increment as single relative updates.
type TenantStore interface {
	GetByShop(ctx context.Context, shop string) (*models.Tenant, error)
	EnsureExists(ctx context.Context, shop string, defaultCredits int) (*models.Tenant, error)
	Decrement(ctx context.Context, shop string, amount int) (int, error)
	Increment(ctx context.Context, shop string, amount, defaultCredits int) (int, error)
	SetOnboarded(ctx context.Context, shop, brandVoice string, defaultCredits int) (*models.Tenant, error)
}

// BalanceResult is the outcome of an admission check.
type BalanceResult struct {
	HasCredits bool `json:"hasCredits"`
	Balance    int  `json:"balance"`
}

// LedgerResult is the outcome of a balance mutation.
type LedgerResult struct {
	Success    bool `json:"success"`
	NewBalance int  `json:"newBalance"`
}

// CreditService is the per-tenant credit ledger.
type CreditService struct {
	store          TenantStore
	defaultCredits int
}

// NewCreditService constructs a CreditService. Tenants provisioned on first
// contact start with defaultCredits.
func NewCreditService(store TenantStore, defaultCredits int) *CreditService {
	return &CreditService{store: store, defaultCredits: defaultCredits}
}

// CheckBalance reports whether shop may start a generation, provisioning the
// tenant with the default balance when it does not exist yet.
func (s *CreditService) CheckBalance(ctx context.Context, shop string) (*BalanceResult, error) {
	tenant, err := s.store.EnsureExists(ctx, shop, s.defaultCredits)
	if err != nil {
		metrics.LedgerOperationsTotal.WithLabelValues("check", "error").Inc()
		return nil, fmt.Errorf("%w: check balance for %s: %v", utils.ErrLedgerIntegrity, shop, err)
	}

	metrics.LedgerOperationsTotal.WithLabelValues("check", "ok").Inc()
	return &BalanceResult{HasCredits: tenant.Credits > 0, Balance: tenant.Credits}, nil
}

// DeductCredit atomically debits amount. An insufficient balance returns
// Success=false with the unchanged balance and no error. An absent tenant or
// a storage failure returns Success=false, NewBalance=0 and an error wrapping
// ErrLedgerIntegrity.
func (s *CreditService) DeductCredit(ctx context.Context, shop string, amount int) (*LedgerResult, error) {
	if amount <= 0 {
		return &LedgerResult{}, utils.ErrInvalidAmount
	}

	balance, err := s.store.Decrement(ctx, shop, amount)
	if err == nil {
		metrics.LedgerOperationsTotal.WithLabelValues("deduct", "ok").Inc()
		return &LedgerResult{Success: true, NewBalance: balance}, nil
	}
	if !repository.IsNotFound(err) {
		return s.integrityFault("deduct", shop, err)
	}

	// Nothing was debited; tell an insufficient balance apart from a
	// tenant that vanished.
	tenant, err := s.store.GetByShop(ctx, shop)
	if repository.IsNotFound(err) {
		return s.integrityFault("deduct", shop, utils.ErrTenantNotFound)
	}
	if err != nil {
		return s.integrityFault("deduct", shop, err)
	}

	metrics.LedgerOperationsTotal.WithLabelValues("deduct", "insufficient").Inc()
	return &LedgerResult{Success: false, NewBalance: tenant.Credits}, nil
}

// AddCredits atomically credits amount, provisioning an absent tenant with
// the default balance plus amount.
func (s *CreditService) AddCredits(ctx context.Context, shop string, amount int) (*LedgerResult, error) {
	if amount <= 0 {
		return &LedgerResult{}, utils.ErrInvalidAmount
	}

	balance, err := s.store.Increment(ctx, shop, amount, s.defaultCredits)
	if err != nil {
		return s.integrityFault("add", shop, err)
	}

	metrics.LedgerOperationsTotal.WithLabelValues("add", "ok").Inc()
	log.Info().Str("shop", shop).Int("amount", amount).Int("balance", balance).Msg("credits added")
	return &LedgerResult{Success: true, NewBalance: balance}, nil
}

func (s *CreditService) integrityFault(op, shop string, cause error) (*LedgerResult, error) {
	metrics.LedgerOperationsTotal.WithLabelValues(op, "error").Inc()
	log.Error().Err(cause).Str("shop", shop).Str("op", op).Msg("ledger integrity fault")
	return &LedgerResult{Success: false, NewBalance: 0}, fmt.Errorf("%w: %s %s: %v", utils.ErrLedgerIntegrity, op, shop, cause)
}
