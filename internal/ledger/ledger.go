// Package ledger manages user accounts and balances. All money is
// fixed-point decimal end to end; floats never touch the money path.
package ledger

import (
	"context"
	"strings"

	"github.com/stockwatch/stockwatch/internal/models"

	"github.com/shopspring/decimal"
)

// Store is the slice of the persistence layer the ledger needs.
type Store interface {
	CreateUser(ctx context.Context, username string) (*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	AddToBalance(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error)
	SetUserBalance(ctx context.Context, userID int64, balance decimal.Decimal) (decimal.Decimal, error)
	ChargeBalance(ctx context.Context, userID int64, amount decimal.Decimal) error
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// CreateUser registers a user with a zero balance.
func (s *Service) CreateUser(ctx context.Context, username string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, models.Validationf("username is required")
	}
	if len(username) > 50 {
		return nil, models.Validationf("username too long (max 50 characters)")
	}
	return s.store.CreateUser(ctx, username)
}

// GetUser retrieves one user.
func (s *Service) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return s.store.GetUser(ctx, id)
}

// ListUsers retrieves all users.
func (s *Service) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.store.ListUsers(ctx)
}

// AddBalance credits a user. Amount must be strictly positive.
func (s *Service) AddBalance(ctx context.Context, userID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Decimal{}, models.Validationf("amount must be positive")
	}
	return s.store.AddToBalance(ctx, userID, amount)
}

// SetBalance overwrites a user's balance. The new value must not be negative.
func (s *Service) SetBalance(ctx context.Context, userID int64, balance decimal.Decimal) (decimal.Decimal, error) {
	if balance.IsNegative() {
		return decimal.Decimal{}, models.Validationf("balance cannot be negative")
	}
	return s.store.SetUserBalance(ctx, userID, balance)
}

// Charge debits a user, failing with ErrInsufficientBalance when the
// balance does not cover the amount. Used when a subscription is opened.
func (s *Service) Charge(ctx context.Context, userID int64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return models.Validationf("amount must be positive")
	}
	return s.store.ChargeBalance(ctx, userID, amount)
}
