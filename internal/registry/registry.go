// Package registry tracks which user is watching which product.
package registry

import (
	"context"
	"time"

	"github.com/stockwatch/stockwatch/internal/models"

	"github.com/shopspring/decimal"
)

// DefaultDuration is how long a subscription runs when the caller does
// not pick an expiry.
const DefaultDuration = 30 * 24 * time.Hour

// Store is the slice of the persistence layer the registry needs. The
// charge and the insert live in one store call so a failed insert can
// never leave the user debited.
type Store interface {
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	OpenMonitor(ctx context.Context, userID, productID int64, price decimal.Decimal, expiry time.Time) (*models.MonitorSubscription, error)
	GetMonitor(ctx context.Context, id int64) (*models.MonitorSubscription, error)
	CancelMonitor(ctx context.Context, id int64) error
	ActiveMonitorsForProduct(ctx context.Context, productID int64) ([]models.MonitorSubscription, error)
	ActiveMonitorsForUser(ctx context.Context, userID int64) ([]models.MonitorSubscription, error)
	ActiveMonitorDetails(ctx context.Context) ([]models.MonitorDetail, error)
}

type Service struct {
	store Store
	now   func() time.Time
}

func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// Subscribe opens a monitoring subscription, charging the user the
// product price atomically with the insert. A zero expiry defaults to
// 30 days out. Fails with ErrConflict if the user already has a live
// subscription for the product — one notification stream per
// (user, product) pair.
func (s *Service) Subscribe(ctx context.Context, userID, productID int64, expiry time.Time) (*models.MonitorSubscription, error) {
	now := s.now()
	if expiry.IsZero() {
		expiry = now.Add(DefaultDuration)
	}
	if !expiry.After(now) {
		return nil, models.Validationf("expiry date must be in the future")
	}

	product, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	return s.store.OpenMonitor(ctx, userID, productID, product.Price, expiry)
}

// Cancel soft-cancels a subscription; the row stays for audit history.
func (s *Service) Cancel(ctx context.Context, monitorID int64) error {
	return s.store.CancelMonitor(ctx, monitorID)
}

// Get retrieves a subscription by id, live or not.
func (s *Service) Get(ctx context.Context, monitorID int64) (*models.MonitorSubscription, error) {
	return s.store.GetMonitor(ctx, monitorID)
}

// ActiveFor lists live subscriptions for a product, excluding expired
// and cancelled ones.
func (s *Service) ActiveFor(ctx context.Context, productID int64) ([]models.MonitorSubscription, error) {
	return s.store.ActiveMonitorsForProduct(ctx, productID)
}

// ActiveForUser lists live subscriptions for a user.
func (s *Service) ActiveForUser(ctx context.Context, userID int64) ([]models.MonitorSubscription, error) {
	return s.store.ActiveMonitorsForUser(ctx, userID)
}

// ListDetails returns the admin read model of every live subscription.
func (s *Service) ListDetails(ctx context.Context) ([]models.MonitorDetail, error) {
	return s.store.ActiveMonitorDetails(ctx)
}
