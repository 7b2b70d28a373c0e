package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GTDGit/schemagate/internal/models"
	"github.com/GTDGit/schemagate/internal/service"
	"github.com/GTDGit/schemagate/internal/sse"
	"github.com/GTDGit/schemagate/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeProducts struct {
	req    service.ProcessRequest
	result *service.ProcessResult
	err    error
	record *models.ProductRecord
}

func (f *fakeProducts) ProcessProduct(_ context.Context, req service.ProcessRequest) (*service.ProcessResult, error) {
	f.req = req
	return f.result, f.err
}

func (f *fakeProducts) GetProduct(_ context.Context, productID string) (*models.ProductRecord, error) {
	if f.record == nil || f.record.ProductID != productID {
		return nil, fmt.Errorf("%w: %s", utils.ErrProductNotFound, productID)
	}
	return f.record, nil
}

type fakeCredits struct {
	balance map[string]int
	err     error
}

func (f *fakeCredits) CheckBalance(_ context.Context, shop string) (*service.BalanceResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	b := f.balance[shop]
	return &service.BalanceResult{HasCredits: b > 0, Balance: b}, nil
}

func (f *fakeCredits) AddCredits(_ context.Context, shop string, amount int) (*service.LedgerResult, error) {
	if amount <= 0 {
		return nil, utils.ErrInvalidAmount
	}
	f.balance[shop] += amount
	return &service.LedgerResult{Success: true, NewBalance: f.balance[shop]}, nil
}

type fakeOnboarder struct{}

func (fakeOnboarder) Onboard(_ context.Context, shop, brandVoice string) (*models.Tenant, error) {
	return &models.Tenant{Shop: shop, Credits: 10, BrandVoice: &brandVoice, IsOnboarded: true}, nil
}

type envelope struct {
	Success bool             `json:"success"`
	Code    int              `json:"code"`
	Data    json.RawMessage  `json:"data"`
	Error   *utils.ErrorInfo `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

const webhookBody = `{
  "id": 632910392,
  "title": "Stoneware Mug",
  "body_html": "<p>Hand thrown</p>",
  "vendor": "Kiln",
  "variants": [{"price": "24.50", "sku": "MUG-01"}, {"price": "30.00", "sku": "MUG-02"}],
  "updated_at": "2026-03-01T10:00:00Z"
}`

func webhookRouter(p ProductProcessor) *gin.Engine {
	r := gin.New()
	r.POST("/webhooks/products", func(c *gin.Context) {
		c.Set("shop", "t1.myshopify.com")
	}, NewWebhookHandler(p).HandleProductUpdate)
	return r
}

func TestWebhookHandler_MapsPayload(t *testing.T) {
	fp := &fakeProducts{result: &service.ProcessResult{ProductID: "632910392", Outcome: service.OutcomeFresh}}

	w := do(webhookRouter(fp), http.MethodPost, "/webhooks/products", webhookBody)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.ProcessRequest{
		Shop:      "t1.myshopify.com",
		ProductID: "632910392",
		Product: utils.ProductFields{
			Title:       "Stoneware Mug",
			Description: "<p>Hand thrown</p>",
			Vendor:      "Kiln",
			Price:       "24.50",
			SKU:         "MUG-01",
		},
		ChangedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}, fp.req)
}

func TestWebhookHandler_BadPayload(t *testing.T) {
	for _, body := range []string{`not json`, `{"title":"x"}`, `{"id":1}`} {
		w := do(webhookRouter(&fakeProducts{}), http.MethodPost, "/webhooks/products", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestWebhookHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		err       error
		code      int
		errCode   string
		retryable bool
	}{
		{fmt.Errorf("%w: t1", utils.ErrQuotaExhausted), http.StatusPaymentRequired, "QUOTA_EXHAUSTED", false},
		{fmt.Errorf("%w: timeout", utils.ErrGenerationFailed), http.StatusBadGateway, "GENERATION_FAILED", true},
		{fmt.Errorf("%w: t1", utils.ErrTenantNotOnboarded), http.StatusConflict, "TENANT_NOT_ONBOARDED", false},
		{fmt.Errorf("%w: p1", utils.ErrPersistenceFailed), http.StatusInternalServerError, "PERSISTENCE_FAILED", false},
		{fmt.Errorf("%w: t1", utils.ErrLedgerIntegrity), http.StatusInternalServerError, "LEDGER_INTEGRITY_FAULT", false},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR", false},
	}

	for _, tt := range tests {
		t.Run(tt.errCode, func(t *testing.T) {
			w := do(webhookRouter(&fakeProducts{err: tt.err}), http.MethodPost, "/webhooks/products", webhookBody)

			assert.Equal(t, tt.code, w.Code)
			env := decode(t, w)
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.errCode, env.Error.Code)
			assert.Equal(t, tt.retryable, env.Error.Retryable)
		})
	}
}

func adminRouter(products ProductService, credits CreditManager) *gin.Engine {
	r := gin.New()
	ph := NewProductHandler(products)
	th := NewTenantHandler(credits, fakeOnboarder{})
	r.POST("/v1/admin/products/process", ph.ProcessProduct)
	r.GET("/v1/admin/products/:productId", ph.GetProduct)
	r.GET("/v1/admin/tenants/:shop/balance", th.GetBalance)
	r.POST("/v1/admin/tenants/:shop/credits", th.AddCredits)
	r.POST("/v1/admin/tenants/:shop/onboard", th.Onboard)
	return r
}

func TestProductHandler_ProcessProduct(t *testing.T) {
	fp := &fakeProducts{result: &service.ProcessResult{ProductID: "p1", Outcome: service.OutcomeCached}}
	r := adminRouter(fp, &fakeCredits{})

	w := do(r, http.MethodPost, "/v1/admin/products/process",
		`{"shop":" T1.myshopify.com ","productId":"p1","product":{"title":"Mug","description":"d","vendor":"Kiln"}}`)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "t1.myshopify.com", fp.req.Shop)
	assert.Equal(t, "Mug", fp.req.Product.Title)
	assert.True(t, fp.req.ChangedAt.IsZero())
	assert.Contains(t, string(decode(t, w).Data), `"outcome":"cached"`)

	w = do(r, http.MethodPost, "/v1/admin/products/process", `{"productId":"p1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProductHandler_GetProduct(t *testing.T) {
	fp := &fakeProducts{record: &models.ProductRecord{ProductID: "p1", Shop: "t1"}}
	r := adminRouter(fp, &fakeCredits{})

	w := do(r, http.MethodGet, "/v1/admin/products/p1", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/v1/admin/products/p2", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "PRODUCT_NOT_FOUND", decode(t, w).Error.Code)
}

func TestTenantHandler(t *testing.T) {
	credits := &fakeCredits{balance: map[string]int{"t1": 2}}
	r := adminRouter(&fakeProducts{}, credits)

	w := do(r, http.MethodGet, "/v1/admin/tenants/t1/balance", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"hasCredits":true,"balance":2}`, string(decode(t, w).Data))

	w = do(r, http.MethodPost, "/v1/admin/tenants/t1/credits", `{"amount":5}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"newBalance":7}`, string(decode(t, w).Data))

	w = do(r, http.MethodPost, "/v1/admin/tenants/t1/credits", `{"amount":-5}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_AMOUNT", decode(t, w).Error.Code)

	w = do(r, http.MethodPost, "/v1/admin/tenants/t1/credits", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/v1/admin/tenants/t1/onboard", `{"brandVoice":"warm"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decode(t, w).Data), `"isOnboarded":true`)

	credits.err = fmt.Errorf("%w: db down", utils.ErrLedgerIntegrity)
	w = do(r, http.MethodGet, "/v1/admin/tenants/t1/balance", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestHealthHandler(t *testing.T) {
	up := PingFunc(func(context.Context) error { return nil })
	down := PingFunc(func(context.Context) error { return errors.New("refused") })

	tests := []struct {
		name   string
		db     Pinger
		redis  Pinger
		code   int
		status string
	}{
		{"healthy", up, up, http.StatusOK, "healthy"},
		{"redis down", up, down, http.StatusOK, "degraded"},
		{"redis disabled", up, nil, http.StatusOK, "healthy"},
		{"db down", down, up, http.StatusServiceUnavailable, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/v1/health", NewHealthHandler(tt.db, tt.redis).GetHealth)

			w := do(r, http.MethodGet, "/v1/health", "")
			assert.Equal(t, tt.code, w.Code)
			if tt.status != "" {
				assert.Contains(t, string(decode(t, w).Data), `"status":"`+tt.status+`"`)
			}
		})
	}
}

func TestSSEHandler_RequiresToken(t *testing.T) {
	r := gin.New()
	r.GET("/v1/admin/events", NewSSEHandler(sse.NewHub(), "jwt-secret").Stream)

	w := do(r, http.MethodGet, "/v1/admin/events", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodGet, "/v1/admin/events?token=garbage", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "INVALID_TOKEN", decode(t, w).Error.Code)
}

// closeNotifyingRecorder satisfies http.CloseNotifier, which gin's Stream requires.
type closeNotifyingRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func (r *closeNotifyingRecorder) CloseNotify() <-chan bool {
	return r.closed
}

func TestSSEHandler_StreamsUntilDisconnect(t *testing.T) {
	hub := sse.NewHub()
	token, err := utils.GenerateJWT("admin-1", "ops@example.com", "jwt-secret", time.Hour)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/v1/admin/events", NewSSEHandler(hub, "jwt-secret").Stream)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/events?token="+token, nil).WithContext(ctx)
	w := &closeNotifyingRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool)}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.ServeHTTP(w, req)
	}()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 0, hub.ClientCount())
	assert.Contains(t, w.Body.String(), "event:connected")
}

func TestSSEHandler_ScopesStreamToShop(t *testing.T) {
	hub := sse.NewHub()
	token, err := utils.GenerateJWT("admin-1", "ops@example.com", "jwt-secret", time.Hour)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/v1/admin/events", NewSSEHandler(hub, "jwt-secret").Stream)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/v1/admin/events?shop=%20T1.myshopify.com&token="+token, nil).WithContext(ctx)
	w := &closeNotifyingRecorder{ResponseRecorder: httptest.NewRecorder(), closed: make(chan bool)}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.ServeHTTP(w, req)
	}()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, hub.FollowerCount("t1.myshopify.com"))
	assert.Equal(t, 0, hub.FollowerCount("t2.myshopify.com"))

	cancel()
	<-done
	assert.Equal(t, 0, hub.ClientCount())
}
