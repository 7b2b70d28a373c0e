package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/GTDGit/schemagate/internal/cache"
	"github.com/GTDGit/schemagate/internal/models"
	"github.com/GTDGit/schemagate/internal/utils"
)

// callLog records boundary calls in completion order.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) count(name string) int {
	n := 0
	for _, c := range l.snapshot() {
		if c == name {
			n++
		}
	}
	return n
}

// fakeTenantStore is an in-memory TenantStore whose mutations are atomic
// under a single mutex, like a row-locked UPDATE.
type fakeTenantStore struct {
	mu      sync.Mutex
	tenants map[string]*models.Tenant
	failErr error
}

func newFakeTenantStore() *fakeTenantStore {
	return &fakeTenantStore{tenants: map[string]*models.Tenant{}}
}

func (f *fakeTenantStore) put(shop string, credits int, onboarded bool, voice string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &models.Tenant{Shop: shop, Credits: credits, IsOnboarded: onboarded}
	if voice != "" {
		t.BrandVoice = &voice
	}
	f.tenants[shop] = t
}

func (f *fakeTenantStore) credits(shop string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tenants[shop].Credits
}

func (f *fakeTenantStore) GetByShop(_ context.Context, shop string) (*models.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return nil, f.failErr
	}
	t, ok := f.tenants[shop]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTenantStore) EnsureExists(_ context.Context, shop string, defaultCredits int) (*models.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return nil, f.failErr
	}
	t, ok := f.tenants[shop]
	if !ok {
		t = &models.Tenant{Shop: shop, Credits: defaultCredits}
		f.tenants[shop] = t
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTenantStore) Decrement(_ context.Context, shop string, amount int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return 0, f.failErr
	}
	t, ok := f.tenants[shop]
	if !ok || t.Credits < amount {
		return 0, sql.ErrNoRows
	}
	t.Credits -= amount
	return t.Credits, nil
}

func (f *fakeTenantStore) Increment(_ context.Context, shop string, amount, defaultCredits int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return 0, f.failErr
	}
	t, ok := f.tenants[shop]
	if !ok {
		t = &models.Tenant{Shop: shop, Credits: defaultCredits}
		f.tenants[shop] = t
	}
	t.Credits += amount
	return t.Credits, nil
}

func (f *fakeTenantStore) SetOnboarded(_ context.Context, shop, brandVoice string, defaultCredits int) (*models.Tenant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return nil, f.failErr
	}
	t, ok := f.tenants[shop]
	if !ok {
		t = &models.Tenant{Shop: shop, Credits: defaultCredits}
		f.tenants[shop] = t
	}
	t.BrandVoice = &brandVoice
	t.IsOnboarded = true
	cp := *t
	return &cp, nil
}

// recordingLedger wraps a Ledger and logs each call once it has returned.
type recordingLedger struct {
	inner Ledger
	log   *callLog
}

func (l *recordingLedger) CheckBalance(ctx context.Context, shop string) (*BalanceResult, error) {
	res, err := l.inner.CheckBalance(ctx, shop)
	l.log.add("ledger.check")
	return res, err
}

func (l *recordingLedger) DeductCredit(ctx context.Context, shop string, amount int) (*LedgerResult, error) {
	l.log.add("ledger.deduct:start")
	res, err := l.inner.DeductCredit(ctx, shop, amount)
	l.log.add("ledger.deduct")
	return res, err
}

// scriptedLedger returns fixed answers.
type scriptedLedger struct {
	balance   *BalanceResult
	deduct    *LedgerResult
	deductErr error
	deducts   int
}

func (l *scriptedLedger) CheckBalance(context.Context, string) (*BalanceResult, error) {
	return l.balance, nil
}

func (l *scriptedLedger) DeductCredit(context.Context, string, int) (*LedgerResult, error) {
	l.deducts++
	return l.deduct, l.deductErr
}

// fakeGenerator returns schema or err and logs invocations.
type fakeGenerator struct {
	log    *callLog
	schema *models.ProductSchema
	err    error
	onCall func()
	reqs   []GenerationRequest
	mu     sync.Mutex
}

func (g *fakeGenerator) Generate(_ context.Context, req GenerationRequest) (*models.ProductSchema, error) {
	g.log.add("generator.start")
	g.mu.Lock()
	g.reqs = append(g.reqs, req)
	g.mu.Unlock()
	if g.onCall != nil {
		g.onCall()
	}
	defer g.log.add("generator.done")
	if g.err != nil {
		return nil, g.err
	}
	if g.schema != nil {
		cp := *g.schema
		return &cp, nil
	}
	return validSchema(req.Product.Title), nil
}

func validSchema(name string) *models.ProductSchema {
	return &models.ProductSchema{
		Context:     models.SchemaContext,
		Type:        models.SchemaType,
		Name:        name,
		Description: "A sturdy everyday item.",
		Brand:       models.Brand{Type: "Brand", Name: "Kiln"},
	}
}

// fakeProductStore is an in-memory ProductStore with the freshness guard.
type fakeProductStore struct {
	mu        sync.Mutex
	records   map[string]*models.ProductRecord
	upsertErr error
	upserts   int
	touched   int
}

func newFakeProductStore() *fakeProductStore {
	return &fakeProductStore{records: map[string]*models.ProductRecord{}}
}

func (f *fakeProductStore) GetByProductID(_ context.Context, productID string) (*models.ProductRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[productID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeProductStore) Upsert(_ context.Context, rec *models.ProductRecord) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts++
	if f.upsertErr != nil {
		return false, f.upsertErr
	}
	if cur, ok := f.records[rec.ProductID]; ok && cur.LastScannedAt.After(rec.LastScannedAt) {
		return false, nil
	}
	cp := *rec
	cp.IsSynced = false
	f.records[rec.ProductID] = &cp
	return true, nil
}

func (f *fakeProductStore) TouchScanned(_ context.Context, productID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched++
	if rec, ok := f.records[productID]; ok && at.After(rec.LastScannedAt) {
		rec.LastScannedAt = at
	}
	return nil
}

func (f *fakeProductStore) RecordScan(_ context.Context, shop, productID string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[productID]; !ok {
		f.records[productID] = &models.ProductRecord{ProductID: productID, Shop: shop, LastScannedAt: at}
	}
	return nil
}

func (f *fakeProductStore) MarkSynced(_ context.Context, productID, fingerprint string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[productID]
	if !ok || rec.Fingerprint() != fingerprint {
		return false, nil
	}
	rec.IsSynced = true
	return true, nil
}

func (f *fakeProductStore) ListUnsynced(_ context.Context, limit int) ([]models.ProductRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ProductRecord
	for _, rec := range f.records {
		if !rec.IsSynced && rec.Artifact != nil && len(out) < limit {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (f *fakeProductStore) seed(shop, productID string, p utils.ProductFields, schema *models.ProductSchema) {
	fp := utils.Fingerprint(p)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[productID] = &models.ProductRecord{
		ProductID:          productID,
		Shop:               shop,
		ContentFingerprint: &fp,
		Artifact:           schema,
		IsSynced:           true,
		LastScannedAt:      time.Now().Add(-time.Hour),
	}
}

// fakePublisher records published keys.
type fakePublisher struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, key string, _ []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.keys = append(p.keys, key)
	return nil
}

func (p *fakePublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

var errStorage = errors.New("connection reset by peer")

// recordingNotifier collects lifecycle events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) NotifyArtifactGenerated(rec *models.ProductRecord, newBalance int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, "generated:"+rec.ProductID)
}

func (n *recordingNotifier) NotifyArtifactDelivered(rec *models.ProductRecord) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, "delivered:"+rec.ProductID)
}

func (n *recordingNotifier) snapshot() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

// fakeArtifactCache is an in-memory ArtifactCacher.
type fakeArtifactCache struct {
	mu          sync.Mutex
	entries     map[string]*cache.CachedArtifact
	gets        int
	invalidated []string
}

func newFakeArtifactCache() *fakeArtifactCache {
	return &fakeArtifactCache{entries: map[string]*cache.CachedArtifact{}}
}

func (c *fakeArtifactCache) Get(_ context.Context, productID string) (*cache.CachedArtifact, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	hit, ok := c.entries[productID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return hit, nil
}

func (c *fakeArtifactCache) Set(_ context.Context, rec *models.ProductRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[rec.ProductID] = &cache.CachedArtifact{
		ProductID:   rec.ProductID,
		Shop:        rec.Shop,
		Fingerprint: rec.Fingerprint(),
		Artifact:    rec.Artifact,
	}
	return nil
}

func (c *fakeArtifactCache) Invalidate(_ context.Context, productID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, productID)
	c.invalidated = append(c.invalidated, productID)
	return nil
}
