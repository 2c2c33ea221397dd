// Package catalog holds product definitions and their regional links.
package catalog

import (
	"context"
	"strings"

	"github.com/stockwatch/stockwatch/internal/models"

	"github.com/shopspring/decimal"
)

// Store is the slice of the persistence layer the catalog needs.
type Store interface {
	CreateProduct(ctx context.Context, p *models.Product) (*models.Product, error)
	GetProduct(ctx context.Context, id int64) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)
	UpdateProduct(ctx context.Context, p *models.Product) (*models.Product, error)
}

// Service validates product input before it reaches the store.
type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// UpdateParams carries a partial product edit. Nil fields keep their
// current values.
type UpdateParams struct {
	Name       *string
	Price      *decimal.Decimal
	GlobalLink *string
	AULink     *string
}

// Add creates a product. Name must be non-empty and price positive.
func (s *Service) Add(ctx context.Context, name string, price decimal.Decimal, globalLink, auLink string) (*models.Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, models.Validationf("product name is required")
	}
	if !price.IsPositive() {
		return nil, models.Validationf("price must be positive")
	}

	return s.store.CreateProduct(ctx, &models.Product{
		Name:       name,
		Price:      price,
		GlobalLink: strings.TrimSpace(globalLink),
		AULink:     strings.TrimSpace(auLink),
	})
}

// Update applies a partial edit to an existing product.
func (s *Service) Update(ctx context.Context, id int64, params UpdateParams) (*models.Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}

	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name == "" {
			return nil, models.Validationf("product name is required")
		}
		p.Name = name
	}
	if params.Price != nil {
		if !params.Price.IsPositive() {
			return nil, models.Validationf("price must be positive")
		}
		p.Price = *params.Price
	}
	if params.GlobalLink != nil {
		p.GlobalLink = strings.TrimSpace(*params.GlobalLink)
	}
	if params.AULink != nil {
		p.AULink = strings.TrimSpace(*params.AULink)
	}

	return s.store.UpdateProduct(ctx, p)
}

// Get retrieves one product.
func (s *Service) Get(ctx context.Context, id int64) (*models.Product, error) {
	return s.store.GetProduct(ctx, id)
}

// List retrieves all products.
func (s *Service) List(ctx context.Context) ([]models.Product, error) {
	return s.store.ListProducts(ctx)
}
