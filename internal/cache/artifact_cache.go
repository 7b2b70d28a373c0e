package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/GTDGit/schemagate/internal/models"
)

// DefaultArtifactTTL bounds how long a cached record may outlive its row.
const DefaultArtifactTTL = 24 * time.Hour

// CachedArtifact is the read-through copy of a persisted artifact. It carries
// the fingerprint so a cached entry can serve the stale data guard directly.
type CachedArtifact struct {
	ProductID   string                `json:"productId"`
	Shop        string                `json:"shop"`
	Fingerprint string                `json:"fingerprint"`
	Artifact    *models.ProductSchema `json:"artifact"`
	CachedAt    time.Time             `json:"cachedAt"`
}

// ArtifactCache caches generated artifacts keyed by product.
type ArtifactCache struct {
	redis *RedisClient
	ttl   time.Duration
}

// NewArtifactCache creates a new ArtifactCache. A zero ttl uses DefaultArtifactTTL.
func NewArtifactCache(redis *RedisClient, ttl time.Duration) *ArtifactCache {
	if ttl <= 0 {
		ttl = DefaultArtifactTTL
	}
	return &ArtifactCache{redis: redis, ttl: ttl}
}

func (c *ArtifactCache) key(productID string) string {
	return fmt.Sprintf("artifact:%s", productID)
}

// Set stores the artifact for rec. Records without an artifact are not cached.
func (c *ArtifactCache) Set(ctx context.Context, rec *models.ProductRecord) error {
	if rec == nil || rec.Artifact == nil || rec.ContentFingerprint == nil {
		return nil
	}

	data, err := json.Marshal(&CachedArtifact{
		ProductID:   rec.ProductID,
		Shop:        rec.Shop,
		Fingerprint: *rec.ContentFingerprint,
		Artifact:    rec.Artifact,
		CachedAt:    time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}

	if err := c.redis.Set(ctx, c.key(rec.ProductID), data, c.ttl); err != nil {
		return fmt.Errorf("failed to cache artifact: %w", err)
	}
	return nil
}

// Get returns the cached artifact or ErrCacheMiss.
func (c *ArtifactCache) Get(ctx context.Context, productID string) (*CachedArtifact, error) {
	data, err := c.redis.Get(ctx, c.key(productID))
	if err != nil {
		return nil, err
	}

	var cached CachedArtifact
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, fmt.Errorf("failed to unmarshal artifact: %w", err)
	}
	return &cached, nil
}

// Invalidate drops the cached artifact for productID.
func (c *ArtifactCache) Invalidate(ctx context.Context, productID string) error {
	return c.redis.Delete(ctx, c.key(productID))
}
