package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/GTDGit/schemagate/internal/cache"
	"github.com/GTDGit/schemagate/internal/metrics"
	"github.com/GTDGit/schemagate/internal/models"
	"github.com/GTDGit/schemagate/internal/repository"
	"github.com/GTDGit/schemagate/internal/utils"
)

// Processing outcomes.
const (
	OutcomeCached = "cached"
	OutcomeFresh  = "fresh"
)

const deliveryTimeout = 30 * time.Second

// Ledger is the admission and settlement boundary used by the orchestrator.
type Ledger interface {
	CheckBalance(ctx context.Context, shop string) (*BalanceResult, error)
	DeductCredit(ctx context.Context, shop string, amount int) (*LedgerResult, error)
}

// ProductStore is the artifact store boundary.
type ProductStore interface {
	GetByProductID(ctx context.Context, productID string) (*models.ProductRecord, error)
	Upsert(ctx context.Context, rec *models.ProductRecord) (bool, error)
	TouchScanned(ctx context.Context, productID string, at time.Time) error
	RecordScan(ctx context.Context, shop, productID string, at time.Time) error
	MarkSynced(ctx context.Context, productID, fingerprint string) (bool, error)
	ListUnsynced(ctx context.Context, limit int) ([]models.ProductRecord, error)
}

// ArtifactCacher is the optional read-through cache in front of ProductStore.
type ArtifactCacher interface {
	Get(ctx context.Context, productID string) (*cache.CachedArtifact, error)
	Set(ctx context.Context, rec *models.ProductRecord) error
	Invalidate(ctx context.Context, productID string) error
}

// ProductLocker serializes work on one product across replicas.
type ProductLocker interface {
	Lock(ctx context.Context, shop, productID string) (func(), error)
}

// Deliverer hands a persisted artifact to the storefront-facing surface.
type Deliverer interface {
	Deliver(ctx context.Context, rec *models.ProductRecord) error
}

// Notifier receives artifact lifecycle events for the admin console.
type Notifier interface {
	NotifyArtifactGenerated(rec *models.ProductRecord, newBalance int)
	NotifyArtifactDelivered(rec *models.ProductRecord)
}

// NopNotifier discards events.
type NopNotifier struct{}

func (NopNotifier) NotifyArtifactGenerated(*models.ProductRecord, int) {}
func (NopNotifier) NotifyArtifactDelivered(*models.ProductRecord)      {}

// GenerationResult is a generated artifact and the balance after settlement.
type GenerationResult struct {
	Schema     *models.ProductSchema `json:"schema"`
	NewBalance int                   `json:"newBalance"`
}

// ProcessRequest is one trigger for one product.
type ProcessRequest struct {
	Shop      string              `json:"shop"`
	ProductID string              `json:"productId"`
	Product   utils.ProductFields `json:"product"`
	ChangedAt time.Time           `json:"changedAt"`
}

// ProcessResult describes how a trigger was resolved.
type ProcessResult struct {
	ProductID   string                `json:"productId"`
	Outcome     string                `json:"outcome"`
	Fingerprint string                `json:"fingerprint"`
	Schema      *models.ProductSchema `json:"schema"`
	NewBalance  *int                  `json:"newBalance,omitempty"`
	Superseded  bool                  `json:"superseded,omitempty"`
}

// SchemaService orchestrates the stale data guard, admission, generation,
// settlement and persistence for catalog items.
type SchemaService struct {
	tenants   TenantStore
	ledger    Ledger
	generator Generator
	products  ProductStore
	cache     ArtifactCacher
	locker    ProductLocker
	delivery  Deliverer
	notifier  Notifier

	wg sync.WaitGroup
}

// NewSchemaService constructs a SchemaService. cache, locker and delivery may
// be nil.
func NewSchemaService(
	tenants TenantStore,
	ledger Ledger,
	generator Generator,
	products ProductStore,
	artifactCache ArtifactCacher,
	locker ProductLocker,
	delivery Deliverer,
) *SchemaService {
	return &SchemaService{
		tenants:   tenants,
		ledger:    ledger,
		generator: generator,
		products:  products,
		cache:     artifactCache,
		locker:    locker,
		delivery:  delivery,
		notifier:  NopNotifier{},
	}
}

// SetNotifier sets the receiver of generation events.
func (s *SchemaService) SetNotifier(n Notifier) {
	s.notifier = n
}

// GenerateProductSchema runs admission, generation and settlement in that
// order. The generator is never called without admission, and the ledger is
// never debited unless generation produced a valid artifact.
func (s *SchemaService) GenerateProductSchema(ctx context.Context, shop, brandVoice string, product utils.ProductFields) (*GenerationResult, error) {
	bal, err := s.ledger.CheckBalance(ctx, shop)
	if err != nil {
		return nil, err
	}
	if !bal.HasCredits {
		return nil, fmt.Errorf("%w: %s has no credits left", utils.ErrQuotaExhausted, shop)
	}

	schema, err := s.generator.Generate(ctx, GenerationRequest{BrandVoice: brandVoice, Product: product})
	if err != nil {
		if !errors.Is(err, utils.ErrGenerationFailed) {
			err = fmt.Errorf("%w: %v", utils.ErrGenerationFailed, err)
		}
		return nil, err
	}
	if err := ValidateSchema(schema); err != nil {
		return nil, err
	}

	// Cancelled before settlement: nothing has been spent.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res, err := s.ledger.DeductCredit(ctx, shop, 1)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		// Another attempt drained the balance between admission and settlement.
		return nil, fmt.Errorf("%w: %s balance drained during generation", utils.ErrQuotaExhausted, shop)
	}

	return &GenerationResult{Schema: schema, NewBalance: res.NewBalance}, nil
}

// ProcessProduct resolves one trigger: unchanged content is served from the
// stored artifact without touching the ledger or the generator; changed
// content is generated, settled, persisted and handed to delivery.
func (s *SchemaService) ProcessProduct(ctx context.Context, req ProcessRequest) (*ProcessResult, error) {
	res, err := s.processProduct(ctx, req)
	if err != nil {
		metrics.GenerationTotal.WithLabelValues(outcomeLabel(err)).Inc()
		return nil, err
	}
	metrics.GenerationTotal.WithLabelValues(res.Outcome).Inc()
	return res, nil
}

func (s *SchemaService) processProduct(ctx context.Context, req ProcessRequest) (*ProcessResult, error) {
	if req.ChangedAt.IsZero() {
		req.ChangedAt = time.Now().UTC()
	}

	tenant, err := s.tenants.GetByShop(ctx, req.Shop)
	if repository.IsNotFound(err) {
		return nil, fmt.Errorf("%w: %s", utils.ErrTenantNotOnboarded, req.Shop)
	}
	if err != nil {
		return nil, fmt.Errorf("load tenant %s: %w", req.Shop, err)
	}
	if !tenant.IsOnboarded {
		return nil, fmt.Errorf("%w: %s", utils.ErrTenantNotOnboarded, req.Shop)
	}

	if s.locker != nil {
		release, err := s.locker.Lock(ctx, req.Shop, req.ProductID)
		if errors.Is(err, cache.ErrLockNotObtained) {
			return nil, fmt.Errorf("%w: %s/%s", utils.ErrProcessingBusy, req.Shop, req.ProductID)
		}
		if err != nil {
			log.Warn().Err(err).Str("shop", req.Shop).Str("product_id", req.ProductID).
				Msg("processing without product lock")
		} else {
			defer release()
		}
	}

	fingerprint := utils.Fingerprint(req.Product)

	cached, err := s.lookupArtifact(ctx, req, fingerprint)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		metrics.StaleGuardTotal.WithLabelValues("hit").Inc()
		if err := s.products.TouchScanned(ctx, req.ProductID, req.ChangedAt); err != nil {
			log.Warn().Err(err).Str("product_id", req.ProductID).Msg("failed to record scan time")
		}
		return &ProcessResult{
			ProductID:   req.ProductID,
			Outcome:     OutcomeCached,
			Fingerprint: fingerprint,
			Schema:      cached,
		}, nil
	}
	metrics.StaleGuardTotal.WithLabelValues("miss").Inc()

	gen, err := s.GenerateProductSchema(ctx, req.Shop, tenant.Voice(), req.Product)
	if err != nil {
		// A first scan is recorded even when nothing could be generated.
		if serr := s.products.RecordScan(context.WithoutCancel(ctx), req.Shop, req.ProductID, req.ChangedAt); serr != nil {
			log.Warn().Err(serr).Str("product_id", req.ProductID).Msg("failed to record scan")
		}
		return nil, err
	}

	rec := &models.ProductRecord{
		ProductID:          req.ProductID,
		Shop:               req.Shop,
		ContentFingerprint: &fingerprint,
		Artifact:           gen.Schema,
		IsSynced:           false,
		LastScannedAt:      req.ChangedAt,
	}
	written, err := s.products.Upsert(ctx, rec)
	if err != nil {
		metrics.DebitWithoutPersistTotal.Inc()
		log.Error().Err(err).
			Str("shop", req.Shop).
			Str("product_id", req.ProductID).
			Str("fingerprint", fingerprint).
			Int("balance", gen.NewBalance).
			Msg("debit without persist: credit spent but artifact not stored")
		return nil, fmt.Errorf("%w: product %s: %v", utils.ErrPersistenceFailed, req.ProductID, err)
	}

	result := &ProcessResult{
		ProductID:   req.ProductID,
		Outcome:     OutcomeFresh,
		Fingerprint: fingerprint,
		Schema:      gen.Schema,
		NewBalance:  &gen.NewBalance,
	}
	if !written {
		log.Info().Str("shop", req.Shop).Str("product_id", req.ProductID).Str("fingerprint", fingerprint).
			Msg("artifact superseded by a fresher scan")
		result.Superseded = true
		if s.cache != nil {
			if err := s.cache.Invalidate(ctx, req.ProductID); err != nil {
				log.Warn().Err(err).Str("product_id", req.ProductID).Msg("failed to invalidate cached artifact")
			}
		}
		return result, nil
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, rec); err != nil {
			log.Warn().Err(err).Str("product_id", req.ProductID).Msg("failed to cache artifact")
		}
	}
	s.notifier.NotifyArtifactGenerated(rec, gen.NewBalance)
	s.deliverAsync(ctx, rec)

	log.Info().Str("shop", req.Shop).Str("product_id", req.ProductID).Int("balance", gen.NewBalance).
		Msg("artifact generated")
	return result, nil
}

// lookupArtifact returns the stored artifact when its fingerprint equals
// fingerprint, or nil when the product must be regenerated.
func (s *SchemaService) lookupArtifact(ctx context.Context, req ProcessRequest, fingerprint string) (*models.ProductSchema, error) {
	if s.cache != nil {
		hit, err := s.cache.Get(ctx, req.ProductID)
		switch {
		case err == nil && hit.Shop == req.Shop && hit.Fingerprint == fingerprint && hit.Artifact != nil:
			return hit.Artifact, nil
		case err != nil && !errors.Is(err, cache.ErrCacheMiss):
			log.Warn().Err(err).Str("product_id", req.ProductID).Msg("artifact cache unavailable")
		}
	}

	rec, err := s.products.GetByProductID(ctx, req.ProductID)
	if repository.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load product %s: %w", req.ProductID, err)
	}
	if rec.Shop != req.Shop {
		return nil, fmt.Errorf("%w: %s is not owned by %s", utils.ErrProductNotFound, req.ProductID, req.Shop)
	}
	if rec.Artifact == nil || !utils.FingerprintMatches(rec.ContentFingerprint, fingerprint) {
		return nil, nil
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, rec); err != nil {
			log.Warn().Err(err).Str("product_id", req.ProductID).Msg("failed to cache artifact")
		}
	}
	return rec.Artifact, nil
}

// GetProduct returns the stored record for productID.
func (s *SchemaService) GetProduct(ctx context.Context, productID string) (*models.ProductRecord, error) {
	rec, err := s.products.GetByProductID(ctx, productID)
	if repository.IsNotFound(err) {
		return nil, fmt.Errorf("%w: %s", utils.ErrProductNotFound, productID)
	}
	return rec, err
}

// deliverAsync hands rec to the delivery collaborator without blocking the
// trigger. Failures leave the record unsynced for the sync worker.
func (s *SchemaService) deliverAsync(ctx context.Context, rec *models.ProductRecord) {
	if s.delivery == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), deliveryTimeout)
		defer cancel()
		if err := s.delivery.Deliver(dctx, rec); err != nil {
			log.Warn().Err(err).Str("product_id", rec.ProductID).Msg("delivery failed, left for sync worker")
		}
	}()
}

// Wait blocks until in-flight deliveries finish.
func (s *SchemaService) Wait() {
	s.wg.Wait()
}

func outcomeLabel(err error) string {
	switch {
	case errors.Is(err, utils.ErrQuotaExhausted):
		return "quota_exhausted"
	case errors.Is(err, utils.ErrGenerationFailed):
		return "generation_failed"
	case errors.Is(err, utils.ErrLedgerIntegrity):
		return "ledger_fault"
	case errors.Is(err, utils.ErrPersistenceFailed):
		return "persistence_failed"
	case errors.Is(err, utils.ErrTenantNotOnboarded):
		return "not_onboarded"
	case errors.Is(err, utils.ErrProcessingBusy):
		return "in_progress"
	default:
		return "error"
	}
}
