package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Region identifies which storefront a product link points at.
type Region string

const (
	RegionGlobal Region = "global"
	RegionAU     Region = "au"
)

// Regions lists every region in probe order.
var Regions = []Region{RegionGlobal, RegionAU}

// StockStatus is the availability reported by a single probe.
type StockStatus string

const (
	StatusInStock    StockStatus = "In Stock"
	StatusOutOfStock StockStatus = "Out of Stock"
)

// User represents a registered user
type User struct {
	ID        int64           `json:"id"`
	Username  string          `json:"username"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
}

// Product is a monitored item with up to one purchase link per region.
// An empty link means that region is never probed.
type Product struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	GlobalLink string          `json:"global_link,omitempty"`
	AULink     string          `json:"au_link,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Link returns the purchase link for a region, empty if not configured.
func (p Product) Link(region Region) string {
	switch region {
	case RegionGlobal:
		return p.GlobalLink
	case RegionAU:
		return p.AULink
	}
	return ""
}

// MonitorSubscription ties a user to a product until it expires or is
// cancelled. Cancelled rows are kept for audit, flagged inactive.
type MonitorSubscription struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	ProductID  int64     `json:"product_id"`
	Active     bool      `json:"active"`
	ExpiryDate time.Time `json:"expiry_date"`
	CreatedAt  time.Time `json:"created_at"`
}

// MonitorDetail is the admin read model: a subscription joined with the
// names of the user and product it references.
type MonitorDetail struct {
	MonitorSubscription
	Username    string `json:"username"`
	ProductName string `json:"product_name"`
}

// StockResult is the outcome of one probe. It is ephemeral: the latest
// result per (product, region) is cached with a short TTL, never persisted.
// Unknown is set when the probe failed and availability could not be
// determined, so callers never conflate a timeout with a real sell-out.
type StockResult struct {
	Region    Region      `json:"region"`
	Status    StockStatus `json:"status"`
	Unknown   bool        `json:"unknown,omitempty"`
	Link      string      `json:"link"`
	CheckedAt time.Time   `json:"checked_at"`
}

// StockAlert is handed to the notification collaborator when a monitored
// product comes back in stock.
type StockAlert struct {
	UserID      int64       `json:"user_id"`
	ProductID   int64       `json:"product_id"`
	ProductName string      `json:"product_name"`
	Region      Region      `json:"region"`
	Link        string      `json:"link"`
	Status      StockStatus `json:"status"`
}
