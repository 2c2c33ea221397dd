// Package probe checks product availability at regional storefront links.
//
// A probe is a single, idempotent check. It never caches; remembering the
// last result between ticks is the coordinator's job.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/stockwatch/stockwatch/internal/models"
)

// Prober is the single operation the coordinator and the on-demand check
// endpoint consume.
type Prober interface {
	Check(ctx context.Context, region models.Region, link string) (models.StockResult, error)
}

// HTTPProbe checks live storefronts: the Shopify AU store via its product
// JSON endpoint and the global shop via its signed product-details API.
type HTTPProbe struct {
	client        *http.Client
	globalBaseURL string
	now           func() time.Time
}

// Option configures an HTTPProbe.
type Option func(*HTTPProbe)

// WithGlobalBaseURL points the global-region strategy at a different API
// host. Used by tests.
func WithGlobalBaseURL(u string) Option {
	return func(p *HTTPProbe) { p.globalBaseURL = u }
}

// WithClient swaps the underlying HTTP client.
func WithClient(c *http.Client) Option {
	return func(p *HTTPProbe) { p.client = c }
}

func New(timeout time.Duration, opts ...Option) *HTTPProbe {
	p := &HTTPProbe{
		client:        &http.Client{Timeout: timeout},
		globalBaseURL: defaultGlobalBaseURL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Check fetches the product page behind link and parses availability.
func (p *HTTPProbe) Check(ctx context.Context, region models.Region, link string) (models.StockResult, error) {
	if link == "" {
		return models.StockResult{}, models.Validationf("no link configured for region %q", region)
	}

	var (
		inStock bool
		err     error
	)
	switch region {
	case models.RegionAU:
		inStock, err = p.checkShopify(ctx, link)
	case models.RegionGlobal:
		inStock, err = p.checkGlobal(ctx, link)
	default:
		return models.StockResult{}, models.Validationf("unknown region %q", region)
	}
	if err != nil {
		return models.StockResult{}, err
	}

	status := models.StatusOutOfStock
	if inStock {
		status = models.StatusInStock
	}
	return models.StockResult{
		Region:    region,
		Status:    status,
		Link:      link,
		CheckedAt: p.now(),
	}, nil
}

// classify maps transport errors onto the shared taxonomy. The cause is
// wrapped too, so callers can still see context cancellation through the
// classified error.
func classify(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", models.ErrProbeTimeout, err)
	}
	return fmt.Errorf("%w: %w", models.ErrProbe, err)
}
