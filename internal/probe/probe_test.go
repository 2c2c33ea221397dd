package probe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stockwatch/stockwatch/internal/models"
)

func shopifyBody(available bool, qty int) string {
	return fmt.Sprintf(`{
		"title": "Test Plush",
		"variants": [
			{"title": "Default Title", "available": %t, "inventory_quantity": %d}
		]
	}`, available, qty)
}

func TestHTTPProbe_Shopify(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		status      int
		expectStock models.StockStatus
		expectErr   error
	}{
		{
			name:        "InStock",
			body:        shopifyBody(true, 5),
			status:      http.StatusOK,
			expectStock: models.StatusInStock,
		},
		{
			name:        "InStockQuantityUnknown",
			body:        shopifyBody(true, 0),
			status:      http.StatusOK,
			expectStock: models.StatusInStock,
		},
		{
			name:        "OutOfStock",
			body:        shopifyBody(false, 0),
			status:      http.StatusOK,
			expectStock: models.StatusOutOfStock,
		},
		{
			name:      "HTTPError",
			body:      "",
			status:    http.StatusInternalServerError,
			expectErr: models.ErrProbe,
		},
		{
			name:      "MalformedJSON",
			body:      "<html>not json</html>",
			status:    http.StatusOK,
			expectErr: models.ErrParse,
		},
		{
			name:      "NoVariants",
			body:      `{"title": "Test Plush", "variants": []}`,
			status:    http.StatusOK,
			expectErr: models.ErrParse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				// The probe must hit the JSON endpoint with the query dropped.
				if r.URL.Path != "/products/test-plush.js" {
					t.Errorf("unexpected path %q", r.URL.Path)
				}
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := New(time.Second)
			link := srv.URL + "/products/test-plush?variant=123"
			res, err := p.Check(context.Background(), models.RegionAU, link)

			if tt.expectErr != nil {
				if !errors.Is(err, tt.expectErr) {
					t.Fatalf("expected %v, got %v", tt.expectErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Status != tt.expectStock {
				t.Errorf("expected %q, got %q", tt.expectStock, res.Status)
			}
			if res.Region != models.RegionAU || res.Link != link {
				t.Errorf("result not tagged with region/link: %+v", res)
			}
			if res.Unknown {
				t.Error("successful probe must not be flagged unknown")
			}
		})
	}
}

func TestHTTPProbe_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(shopifyBody(true, 1)))
	}))
	defer srv.Close()

	p := New(30 * time.Millisecond)
	_, err := p.Check(context.Background(), models.RegionAU, srv.URL+"/products/slow")
	if !errors.Is(err, models.ErrProbeTimeout) {
		t.Fatalf("expected probe timeout, got %v", err)
	}
}

func TestHTTPProbe_ContextDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(shopifyBody(true, 1)))
	}))
	defer srv.Close()

	p := New(time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := p.Check(ctx, models.RegionAU, srv.URL+"/products/slow")
	if !errors.Is(err, models.ErrProbeTimeout) {
		t.Fatalf("expected probe timeout, got %v", err)
	}
}

func TestHTTPProbe_CancelPreservesCause(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(shopifyBody(true, 1)))
	}))
	defer srv.Close()

	p := New(time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()
	_, err := p.Check(ctx, models.RegionAU, srv.URL+"/products/slow")
	if !errors.Is(err, models.ErrProbe) {
		t.Fatalf("expected classified probe error, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("cancellation must survive classification, got %v", err)
	}
}

func globalBody(onlineStock int) string {
	return fmt.Sprintf(`{
		"data": {
			"title": "Test Figure",
			"skus": [
				{"title": "Single box", "stock": {"onlineStock": %d}},
				{"title": "Whole set", "stock": {"onlineStock": 0}}
			]
		}
	}`, onlineStock)
}

func TestHTTPProbe_Global(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		expectStock models.StockStatus
		expectErr   error
	}{
		{name: "InStock", body: globalBody(3), expectStock: models.StatusInStock},
		{name: "OutOfStock", body: globalBody(0), expectStock: models.StatusOutOfStock},
		{name: "NoData", body: `{"data": null}`, expectErr: models.ErrParse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/shop/v1/shop/productDetails" {
					t.Errorf("unexpected path %q", r.URL.Path)
				}
				q := r.URL.Query()
				if q.Get("spuId") != "938" {
					t.Errorf("expected spuId=938, got %q", q.Get("spuId"))
				}
				if q.Get("s") == "" || q.Get("t") == "" {
					t.Error("signed parameters missing")
				}
				if r.Header.Get("x-sign") == "" || r.Header.Get("clientkey") == "" {
					t.Error("signing headers missing")
				}
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			p := New(time.Second, WithGlobalBaseURL(srv.URL))
			res, err := p.Check(context.Background(), models.RegionGlobal, "https://www.popmart.com/goods/detail?spuId=938")

			if tt.expectErr != nil {
				if !errors.Is(err, tt.expectErr) {
					t.Fatalf("expected %v, got %v", tt.expectErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Status != tt.expectStock {
				t.Errorf("expected %q, got %q", tt.expectStock, res.Status)
			}
		})
	}
}

func TestExtractSpuID(t *testing.T) {
	tests := []struct {
		link     string
		expectID string
		expectOK bool
	}{
		{"https://www.popmart.com/goods/detail?spuId=938", "938", true},
		{"https://www.popmart.com/goods/detail?spuId=938&from=home", "938", true},
		{"https://www.popmart.com/au/products/643/THE-MONSTERS-Plush", "643", true},
		{"https://www.popmart.com/au/products/643", "643", true},
		{"https://www.popmart.com/au/products/not-a-number/x", "", false},
		{"https://www.popmart.com/au/collections/new", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		id, ok := extractSpuID(tt.link)
		if ok != tt.expectOK || id != tt.expectID {
			t.Errorf("extractSpuID(%q) = (%q, %t), want (%q, %t)", tt.link, id, ok, tt.expectID, tt.expectOK)
		}
	}
}

func TestHTTPProbe_GlobalBadLink(t *testing.T) {
	p := New(time.Second)
	_, err := p.Check(context.Background(), models.RegionGlobal, "https://www.popmart.com/au/collections/new")
	if !errors.Is(err, models.ErrParse) {
		t.Fatalf("expected parse error for link without product id, got %v", err)
	}
}

func TestSign_Deterministic(t *testing.T) {
	a, err := sign(map[string]string{"spuId": "938", "empty": ""}, "1700000000")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	b, err := sign(map[string]string{"spuId": "938"}, "1700000000")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	// Empty values are dropped before hashing, so both inputs agree.
	if a != b {
		t.Errorf("signatures differ: %s vs %s", a, b)
	}
	if len(a) != 32 {
		t.Errorf("expected 32-char md5 hex, got %q", a)
	}
}

func TestHTTPProbe_NoLink(t *testing.T) {
	p := New(time.Second)
	if _, err := p.Check(context.Background(), models.RegionAU, ""); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected validation error for empty link, got %v", err)
	}
}
