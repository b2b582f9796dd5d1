package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Inventory event types, used as routing keys on the inventory exchange
const (
	EventMaterialCreated = "inventory.material.created"
	EventMaterialDeleted = "inventory.material.deleted"
	EventStockRestocked  = "inventory.stock.restocked"
	EventStockAdjusted   = "inventory.stock.adjusted"
	EventStockUsed       = "inventory.stock.used"
	EventLowStockAlert   = "inventory.alert.low_stock"
)

// ExchangeInventoryEvents is the topic exchange inventory events go to.
const ExchangeInventoryEvents = "inventory.events"

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data any) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v any) error {
	return json.Unmarshal(e.Data, v)
}

// MaterialCreatedEvent is published when a material is added to a clinic's catalog
type MaterialCreatedEvent struct {
	MaterialID  string `json:"material_id"`
	ClinicID    string `json:"clinic_id"`
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	PerformedBy string `json:"performed_by"`
}

// MaterialDeletedEvent is published when a material is removed from the catalog
type MaterialDeletedEvent struct {
	MaterialID  string `json:"material_id"`
	ClinicID    string `json:"clinic_id"`
	PerformedBy string `json:"performed_by"`
}

// StockChangedEvent is published for every ledger entry that changes a
// material's quantity (restock, usage, adjustment).
type StockChangedEvent struct {
	MaterialID      string `json:"material_id"`
	ClinicID        string `json:"clinic_id"`
	TransactionID   string `json:"transaction_id"`
	TransactionType string `json:"transaction_type"`
	Quantity        int    `json:"quantity"`
	BalanceAfter    int    `json:"balance_after"`
	PerformedBy     string `json:"performed_by"`
}

// LowStockAlertEvent is published when a write leaves quantity at or below the minimum
type LowStockAlertEvent struct {
	MaterialID   string `json:"material_id"`
	ClinicID     string `json:"clinic_id"`
	Name         string `json:"name"`
	Quantity     int    `json:"quantity"`
	MinimumStock int    `json:"minimum_stock"`
}
