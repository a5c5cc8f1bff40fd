// Package inventory holds the warehouse and stock records the admin tool
// edits. Persistence sits behind Store; the identity layer only gates and
// audits the routes.
package inventory

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidInput is returned for requests that fail validation
var ErrInvalidInput = errors.New("invalid input")

// Warehouse is a storage location
type Warehouse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Location  string    `json:"location,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Item is a stock line held in a warehouse
type Item struct {
	ID          string    `json:"id"`
	WarehouseID string    `json:"warehouseId"`
	SKU         string    `json:"sku"`
	Name        string    `json:"name"`
	Quantity    int       `json:"quantity"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// WarehouseInput creates a warehouse
type WarehouseInput struct {
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
}

// WarehousePatch updates the fields that are set
type WarehousePatch struct {
	Name     *string `json:"name,omitempty"`
	Location *string `json:"location,omitempty"`
}

// ItemInput creates an item
type ItemInput struct {
	WarehouseID string `json:"warehouseId"`
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
}

// ItemPatch updates the fields that are set
type ItemPatch struct {
	Name     *string `json:"name,omitempty"`
	Quantity *int    `json:"quantity,omitempty"`
}

// Store persists warehouses and items. Unknown ids fail with auth.ErrNotFound.
type Store interface {
	ListWarehouses(ctx context.Context) ([]Warehouse, error)
	CreateWarehouse(ctx context.Context, in WarehouseInput) (*Warehouse, error)
	UpdateWarehouse(ctx context.Context, id string, patch WarehousePatch) (*Warehouse, error)
	// DeleteWarehouse also removes the warehouse's items
	DeleteWarehouse(ctx context.Context, id string) error

	// ListItems returns all items, or only those of warehouseID when it is set
	ListItems(ctx context.Context, warehouseID string) ([]Item, error)
	CreateItem(ctx context.Context, in ItemInput) (*Item, error)
	UpdateItem(ctx context.Context, id string, patch ItemPatch) (*Item, error)
	DeleteItem(ctx context.Context, id string) error
}
