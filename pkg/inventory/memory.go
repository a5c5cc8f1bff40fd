package inventory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/stockroom/pkg/auth"
)

// MemoryStore is an in-process Store
type MemoryStore struct {
	mu         sync.RWMutex
	warehouses map[string]*Warehouse
	items      map[string]*Item
	now        func() time.Time
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		warehouses: make(map[string]*Warehouse),
		items:      make(map[string]*Item),
		now:        time.Now,
	}
}

func (m *MemoryStore) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Warehouse, 0, len(m.warehouses))
	for _, w := range m.warehouses {
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryStore) CreateWarehouse(ctx context.Context, in WarehouseInput) (*Warehouse, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: warehouse name is required", ErrInvalidInput)
	}

	now := m.now().UTC()
	w := &Warehouse{
		ID:        uuid.NewString(),
		Name:      name,
		Location:  strings.TrimSpace(in.Location),
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.warehouses[w.ID] = w
	m.mu.Unlock()

	c := *w
	return &c, nil
}

func (m *MemoryStore) UpdateWarehouse(ctx context.Context, id string, patch WarehousePatch) (*Warehouse, error) {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, fmt.Errorf("%w: warehouse name cannot be empty", ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.warehouses[id]
	if !ok {
		return nil, fmt.Errorf("warehouse %s: %w", id, auth.ErrNotFound)
	}
	if patch.Name != nil {
		w.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Location != nil {
		w.Location = strings.TrimSpace(*patch.Location)
	}
	w.UpdatedAt = m.now().UTC()

	c := *w
	return &c, nil
}

func (m *MemoryStore) DeleteWarehouse(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.warehouses[id]; !ok {
		return fmt.Errorf("warehouse %s: %w", id, auth.ErrNotFound)
	}
	delete(m.warehouses, id)
	for itemID, item := range m.items {
		if item.WarehouseID == id {
			delete(m.items, itemID)
		}
	}
	return nil
}

func (m *MemoryStore) ListItems(ctx context.Context, warehouseID string) ([]Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Item, 0, len(m.items))
	for _, item := range m.items {
		if warehouseID == "" || item.WarehouseID == warehouseID {
			out = append(out, *item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WarehouseID != out[j].WarehouseID {
			return out[i].WarehouseID < out[j].WarehouseID
		}
		return out[i].SKU < out[j].SKU
	})
	return out, nil
}

func (m *MemoryStore) CreateItem(ctx context.Context, in ItemInput) (*Item, error) {
	if strings.TrimSpace(in.SKU) == "" || strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: sku and name are required", ErrInvalidInput)
	}
	if in.Quantity < 0 {
		return nil, fmt.Errorf("%w: quantity cannot be negative", ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.warehouses[in.WarehouseID]; !ok {
		return nil, fmt.Errorf("%w: unknown warehouse", ErrInvalidInput)
	}

	now := m.now().UTC()
	item := &Item{
		ID:          uuid.NewString(),
		WarehouseID: in.WarehouseID,
		SKU:         strings.TrimSpace(in.SKU),
		Name:        strings.TrimSpace(in.Name),
		Quantity:    in.Quantity,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.items[item.ID] = item

	c := *item
	return &c, nil
}

func (m *MemoryStore) UpdateItem(ctx context.Context, id string, patch ItemPatch) (*Item, error) {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return nil, fmt.Errorf("%w: item name cannot be empty", ErrInvalidInput)
	}
	if patch.Quantity != nil && *patch.Quantity < 0 {
		return nil, fmt.Errorf("%w: quantity cannot be negative", ErrInvalidInput)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("item %s: %w", id, auth.ErrNotFound)
	}
	if patch.Name != nil {
		item.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Quantity != nil {
		item.Quantity = *patch.Quantity
	}
	item.UpdatedAt = m.now().UTC()

	c := *item
	return &c, nil
}

func (m *MemoryStore) DeleteItem(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[id]; !ok {
		return fmt.Errorf("item %s: %w", id, auth.ErrNotFound)
	}
	delete(m.items, id)
	return nil
}
