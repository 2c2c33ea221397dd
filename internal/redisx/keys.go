package redisx

import "time"

const (
	// Last known stock result per product/region:
	// stock:last:{product_id}:{region} -> StockResult JSON
	KeyLastResult = "stock:last:%d:%s"
)

// TTLLastResult keeps cached results short-lived: a stale reading is worse
// than no reading once the coordinator has been down for a few ticks.
var TTLLastResult = 10 * time.Minute
