//go:build integration

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/order-desk/internal/domain/product"
	"github.com/xenking/order-desk/internal/domain/promo"
	"github.com/xenking/order-desk/internal/repository"
)

type noopTelemetry struct{}

func (noopTelemetry) TracerProvider() trace.TracerProvider { return tracenoop.NewTracerProvider() }
func (noopTelemetry) MeterProvider() metric.MeterProvider  { return metricnoop.NewMeterProvider() }

// Response types are defined locally to keep the test black-box.

type orderItemResponse struct {
	ID       int64  `json:"id"`
	Product  string `json:"product"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
}

type orderResponse struct {
	ID         string              `json:"id"`
	User       string              `json:"user"`
	Items      []orderItemResponse `json:"items"`
	TotalPrice string              `json:"total_price"`
	CouponCode *string             `json:"coupon_code"`
	Discount   string              `json:"discount"`
}

type productResponse struct {
	ID    string `json:"id"`
	Stock int    `json:"stock"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Product string `json:"product"`
}

type client struct {
	t     *testing.T
	base  string
	http  *http.Client
	token string
}

func (c *client) do(method, path string, body any, out any) int {
	c.t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(c.t, err)
		rdr = bytes.NewReader(data)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, c.base+path, rdr)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	if out != nil && resp.StatusCode != http.StatusNoContent {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func (c *client) stock(id string) int {
	c.t.Helper()
	var p productResponse
	require.Equal(c.t, http.StatusOK, c.do(http.MethodGet, "/api/products/"+id, nil, &p))
	return p.Stock
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("desk"),
		postgres.WithUsername("desk"),
		postgres.WithPassword("desk"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func seedCatalog(t *testing.T, dsn string) {
	t.Helper()
	ctx := context.Background()
	pool, err := repository.NewPool(ctx, dsn)
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, repository.RunMigrations(ctx, pool))

	require.NoError(t, repository.NewProductRepository(pool).Upsert(ctx, []product.Product{
		{ID: "1", Name: "Tee", Price: decimal.NewFromInt(10), Stock: 3},
		{ID: "2", Name: "Mug", Price: decimal.NewFromInt(4), Stock: 10},
	}))
	now := time.Now()
	require.NoError(t, repository.NewPromoRepository(pool).Upsert(ctx, []promo.PromoCode{
		{
			ID: "p-five", Code: "FIVE", Type: promo.TypeFixed, FixedAmount: decimal.NewFromInt(5),
			IsActive: true, StartAt: now.Add(-time.Hour), EndedAt: now.Add(time.Hour),
		},
		{
			ID: "p-expired", Code: "EXPIRED", Type: promo.TypeFixed, FixedAmount: decimal.NewFromInt(5),
			IsActive: true, StartAt: now.Add(-48 * time.Hour), EndedAt: now.Add(-24 * time.Hour),
		},
	}))
}

func TestRun_OrderLifecycle(t *testing.T) {
	dsn := startPostgres(t)
	seedCatalog(t, dsn)

	cfg := &Config{
		Addr:        freeAddr(t),
		DatabaseURL: dsn,
		Auth: AuthConfig{
			Secret:     "integration-secret",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 24 * time.Hour,
			BcryptCost: bcrypt.MinCost,
		},
		RateLimit: RateLimitConfig{Max: 1000, Window: time.Minute},
		CORS:      CORSConfig{Origins: []string{"*"}},
		Graceful:  GracefulConfig{ShutdownTimeout: 5 * time.Second},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- Run(ctx, zap.NewNop(), noopTelemetry{}, cfg) }()

	c := &client{t: t, base: "http://" + cfg.Addr, http: &http.Client{Timeout: 10 * time.Second}}
	require.Eventually(t, func() bool {
		resp, err := c.http.Get(c.base + "/readyz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 30*time.Second, 200*time.Millisecond)

	// Account and token.
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/users",
		map[string]string{"email": "buyer@example.com", "password": "long-enough", "name": "Buyer"}, nil))
	var tokens struct {
		Access string `json:"access"`
	}
	require.Equal(t, http.StatusOK, c.do(http.MethodPost, "/api/token",
		map[string]string{"email": "buyer@example.com", "password": "long-enough"}, &tokens))
	require.NotEmpty(t, tokens.Access)

	var unauth errorResponse
	assert.Equal(t, http.StatusUnauthorized, c.do(http.MethodGet, "/api/orders", nil, &unauth))
	c.token = tokens.Access

	// Create with a fixed discount: 2*10 + 4 - 5.
	var created orderResponse
	require.Equal(t, http.StatusCreated, c.do(http.MethodPost, "/api/orders", map[string]any{
		"items": []map[string]any{
			{"product": "1", "quantity": 2},
			{"product": "2", "quantity": 1},
		},
		"coupon_code": "FIVE",
	}, &created))
	assert.Equal(t, "19.00", created.TotalPrice)
	assert.Equal(t, "5.00", created.Discount)
	require.NotNil(t, created.CouponCode)
	assert.Equal(t, "FIVE", *created.CouponCode)
	require.Len(t, created.Items, 2)
	assert.Equal(t, "20.00", created.Items[0].Price)
	assert.Equal(t, 1, c.stock("1"))
	assert.Equal(t, 9, c.stock("2"))

	// Rejections leave stock untouched.
	var rejected errorResponse
	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, "/api/orders", map[string]any{
		"items": []map[string]any{{"product": "2", "quantity": 1}, {"product": "1", "quantity": 2}},
	}, &rejected))
	assert.Equal(t, errorResponse{Error: "Not enough stock for product", Kind: "insufficient_stock", Product: "1"}, rejected)
	assert.Equal(t, http.StatusBadRequest, c.do(http.MethodPost, "/api/orders", map[string]any{
		"items":       []map[string]any{{"product": "2", "quantity": 1}},
		"coupon_code": "EXPIRED",
	}, &rejected))
	assert.Equal(t, "Invalid promo code", rejected.Error)
	assert.Equal(t, 1, c.stock("1"))
	assert.Equal(t, 9, c.stock("2"))

	// Replace the items: old quantities return to stock first.
	var updated orderResponse
	require.Equal(t, http.StatusOK, c.do(http.MethodPut, "/api/orders/"+created.ID, map[string]any{
		"items": []map[string]any{{"product": "1", "quantity": 3}},
	}, &updated))
	assert.Equal(t, "25.00", updated.TotalPrice)
	assert.Equal(t, 0, c.stock("1"))
	assert.Equal(t, 10, c.stock("2"))

	var list []orderResponse
	require.Equal(t, http.StatusOK, c.do(http.MethodGet, "/api/orders", nil, &list))
	require.Len(t, list, 1)
	assert.Equal(t, created.ID, list[0].ID)

	// Delete restores stock.
	require.Equal(t, http.StatusNoContent, c.do(http.MethodDelete, "/api/orders/"+created.ID, nil, nil))
	assert.Equal(t, 3, c.stock("1"))
	assert.Equal(t, http.StatusNotFound, c.do(http.MethodGet, "/api/orders/"+created.ID, nil, &rejected))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("server did not shut down")
	}
}
