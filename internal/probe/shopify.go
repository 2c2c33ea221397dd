package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/stockwatch/stockwatch/internal/models"
)

// shopifyProduct is the slice of the Shopify product JSON we care about.
type shopifyProduct struct {
	Title    string `json:"title"`
	Variants []struct {
		Title             string `json:"title"`
		Available         bool   `json:"available"`
		InventoryQuantity int    `json:"inventory_quantity"`
	} `json:"variants"`
}

// productJSONURL converts a storefront product URL into its JSON endpoint:
// the query string is dropped and ".js" appended.
func productJSONURL(link string) string {
	if i := strings.Index(link, "?"); i >= 0 {
		link = link[:i]
	}
	return link + ".js"
}

// checkShopify reports availability for a Shopify-hosted product. The
// product is in stock when any variant is available, whether or not the
// store exposes an inventory quantity.
func (p *HTTPProbe) checkShopify(ctx context.Context, link string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, productJSONURL(link), nil)
	if err != nil {
		return false, fmt.Errorf("%w: %v", models.ErrProbe, err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return false, classify(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: unexpected status %d", models.ErrProbe, resp.StatusCode)
	}

	var product shopifyProduct
	if err := json.NewDecoder(resp.Body).Decode(&product); err != nil {
		return false, fmt.Errorf("%w: %v", models.ErrParse, err)
	}
	if len(product.Variants) == 0 {
		return false, fmt.Errorf("%w: product has no variants", models.ErrParse)
	}

	for _, v := range product.Variants {
		if v.Available {
			return true, nil
		}
	}
	return false, nil
}
