package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CatalogEntry is a product or service offered by a user. Entries ground
// mention detection and reply drafting.
type CatalogEntry struct {
	ID          string   `db:"id" json:"id"`
	UserID      string   `db:"user_id" json:"user_id"`
	Name        string   `db:"name" json:"name"`
	SKU         string   `db:"sku" json:"sku,omitempty"`
	Description string   `db:"description" json:"description,omitempty"`
	Price       *float64 `db:"price" json:"price,omitempty"`
	Category    string   `db:"category" json:"category,omitempty"`
	Available   bool     `db:"available" json:"available"`
	Metadata    Metadata `db:"metadata" json:"metadata,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Metadata is free-form catalog data stored as a JSON document.
type Metadata map[string]any

// Value implements driver.Valuer.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *Metadata) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("scanning metadata: unsupported type %T", src)
	}
	if len(raw) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(raw, m)
}
