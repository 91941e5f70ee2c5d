// Package handler implements the HTTP API on top of the domain services.
package handler

import (
	"context"
	"time"

	"github.com/xenking/order-desk/internal/auth"
	"github.com/xenking/order-desk/internal/domain/order"
	"github.com/xenking/order-desk/internal/domain/product"
	"github.com/xenking/order-desk/internal/domain/promo"
	"github.com/xenking/order-desk/internal/domain/user"
)

// OrderService is the order workflow used by the handlers.
type OrderService interface {
	CreateOrder(ctx context.Context, req order.CreateRequest) (*order.Order, error)
	UpdateOrder(ctx context.Context, req order.UpdateRequest) (*order.Order, error)
	GetOrder(ctx context.Context, userID, orderID string) (*order.Order, error)
	ListOrders(ctx context.Context, userID string) ([]order.Order, error)
	DeleteOrder(ctx context.Context, userID, orderID string) error
}

// UserService manages accounts.
type UserService interface {
	Register(ctx context.Context, req user.RegisterRequest) (*user.User, error)
	Authenticate(ctx context.Context, email, password string) (*user.User, error)
	Get(ctx context.Context, id string) (*user.User, error)
	Update(ctx context.Context, id string, p user.Patch) (*user.User, error)
}

// TokenIssuer issues and verifies bearer tokens.
type TokenIssuer interface {
	Issue(sub auth.Subject) (auth.Pair, error)
	Refresh(refreshToken string) (string, error)
	Parse(token string, expected auth.TokenType) (auth.Subject, error)
}

// IdempotencyStore remembers Idempotency-Key headers of order placements.
type IdempotencyStore interface {
	Reserve(ctx context.Context, userID, key string) (string, error)
	Complete(ctx context.Context, userID, key, result string) error
	Release(ctx context.Context, userID, key string) error
}

// Config holds the Handler dependencies. Idempotency is optional.
type Config struct {
	Products    product.Repository
	Promos      promo.Repository
	Orders      OrderService
	Users       UserService
	Tokens      TokenIssuer
	Idempotency IdempotencyStore
	// Now defaults to time.Now.
	Now func() time.Time
}

// Handler serves the /api routes.
type Handler struct {
	products product.Repository
	promos   promo.Repository
	orders   OrderService
	users    UserService
	tokens   TokenIssuer
	idem     IdempotencyStore
	now      func() time.Time
}

// New creates a Handler from cfg.
func New(cfg Config) *Handler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{
		products: cfg.Products,
		promos:   cfg.Promos,
		orders:   cfg.Orders,
		users:    cfg.Users,
		tokens:   cfg.Tokens,
		idem:     cfg.Idempotency,
		now:      now,
	}
}
