// Package resource is the thin client for the remote inventory endpoints:
// paginated reads per scope, a dashboard summary, and stock mutations.
// It maps transport responses onto pagestream pages and classifies HTTP
// failures into the fetch taxonomy so the layers above never see raw
// status codes.
package resource

import "time"

// Scope is one selectable data partition, e.g. a warehouse or store.
type Scope struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
}

// InventoryItem is one row of a scope's current stock snapshot.
type InventoryItem struct {
	ID        string    `json:"id"`
	SKU       string    `json:"sku"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unitPrice"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StockMovement is one entry of a scope's addition or withdrawal log.
type StockMovement struct {
	ID         string    `json:"id"`
	SKU        string    `json:"sku"`
	Quantity   int       `json:"quantity"`
	Note       string    `json:"note,omitempty"`
	RecordedAt time.Time `json:"recordedAt"`
}

// Summary is the dashboard roll-up for one scope. IsEmpty marks the
// sentinel returned when the account legitimately has no data yet; it is
// a normal outcome, not an error.
type Summary struct {
	IsEmpty       bool    `json:"isEmpty"`
	TotalItems    int     `json:"totalItems"`
	TotalQuantity int     `json:"totalQuantity"`
	StockValue    float64 `json:"stockValue"`
	LowStockCount int     `json:"lowStockCount"`
}

// EmptySummary returns the well-formed sentinel summary: every numeric
// field zeroed and IsEmpty set.
func EmptySummary() Summary {
	return Summary{IsEmpty: true}
}

// Mutation is the payload for an add or withdraw stock write.
type Mutation struct {
	SKU      string `json:"sku"`
	Quantity int    `json:"quantity"`
	Note     string `json:"note,omitempty"`
}
