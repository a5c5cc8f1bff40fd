package audit

import (
	"context"
	"time"
)

// Action names recorded by the subsystem itself
const (
	ActionLogin          = "LOGIN"
	ActionLogout         = "LOGOUT"
	ActionUpdateUserRole = "UPDATE_USER_ROLE"
)

// Action names for the warehouse and inventory routes
const (
	ActionCreateWarehouse = "CREATE_WAREHOUSE"
	ActionUpdateWarehouse = "UPDATE_WAREHOUSE"
	ActionDeleteWarehouse = "DELETE_WAREHOUSE"
	ActionCreateInventory = "CREATE_INVENTORY"
	ActionUpdateInventory = "UPDATE_INVENTORY"
	ActionDeleteInventory = "DELETE_INVENTORY"
)

// Entry is one immutable audit record
type Entry struct {
	ID        int64                  `json:"id"`
	UserID    *string                `json:"userId"`
	Action    string                 `json:"action"`
	Endpoint  string                 `json:"endpoint"`
	Method    string                 `json:"method"`
	Metadata  map[string]interface{} `json:"metadata"`
	IPAddress *string                `json:"ipAddress"`
	Timestamp time.Time              `json:"timestamp"`
}

// Logger is an append-only audit sink
type Logger interface {
	// Log appends entry and assigns its ID
	Log(ctx context.Context, entry *Entry) error
	// Recent returns up to limit entries, newest first
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
