package events

import (
	"context"

	"github.com/dentflow/dentflow-backend/internal/inventory/repository"
	"github.com/dentflow/dentflow-backend/pkg/httputil"
	"github.com/dentflow/dentflow-backend/pkg/logger"
	"github.com/dentflow/dentflow-backend/pkg/messaging"
)

// Source identifies this service in published event envelopes
const Source = "inventory-service"

// Publisher is the transport the inventory events go through.
// *messaging.Publisher implements it.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data any) error
}

// InventoryEventPublisher publishes inventory-related events. A nil
// *InventoryEventPublisher is valid and publishes nothing, which is how the
// service runs without a broker.
type InventoryEventPublisher struct {
	publisher Publisher
	logger    *logger.Logger
}

// NewInventoryEventPublisher declares the inventory exchange and creates a publisher on it
func NewInventoryEventPublisher(rmq *messaging.RabbitMQ, log *logger.Logger) (*InventoryEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeInventoryEvents, Source, log)
	if err != nil {
		return nil, err
	}
	return NewWithPublisher(publisher, log), nil
}

// NewWithPublisher wraps an existing transport
func NewWithPublisher(publisher Publisher, log *logger.Logger) *InventoryEventPublisher {
	if log == nil {
		log = logger.Nop()
	}
	return &InventoryEventPublisher{
		publisher: publisher,
		logger:    log.WithComponent("events"),
	}
}

// PublishMaterialCreated publishes a material created event
func (p *InventoryEventPublisher) PublishMaterialCreated(ctx context.Context, m *repository.Material, performedBy string) {
	if p == nil {
		return
	}
	p.publish(ctx, messaging.EventMaterialCreated, m.ID, messaging.MaterialCreatedEvent{
		MaterialID:  m.ID,
		ClinicID:    m.ClinicID,
		Name:        m.Name,
		Quantity:    m.Quantity,
		PerformedBy: performedBy,
	})
}

// PublishMaterialDeleted publishes a material deleted event
func (p *InventoryEventPublisher) PublishMaterialDeleted(ctx context.Context, clinicID, materialID, performedBy string) {
	if p == nil {
		return
	}
	p.publish(ctx, messaging.EventMaterialDeleted, materialID, messaging.MaterialDeletedEvent{
		MaterialID:  materialID,
		ClinicID:    clinicID,
		PerformedBy: performedBy,
	})
}

// PublishStockChanged publishes the event matching the entry's transaction type
func (p *InventoryEventPublisher) PublishStockChanged(ctx context.Context, tx *repository.InventoryTransaction) {
	if p == nil {
		return
	}

	eventType := messaging.EventStockAdjusted
	switch tx.TransactionType {
	case repository.TransactionRestock:
		eventType = messaging.EventStockRestocked
	case repository.TransactionUsage:
		eventType = messaging.EventStockUsed
	}

	p.publish(ctx, eventType, tx.MaterialID, messaging.StockChangedEvent{
		MaterialID:      tx.MaterialID,
		ClinicID:        tx.ClinicID,
		TransactionID:   tx.ID,
		TransactionType: string(tx.TransactionType),
		Quantity:        tx.Quantity,
		BalanceAfter:    tx.BalanceAfter,
		PerformedBy:     tx.PerformedBy,
	})
}

// PublishLowStock publishes a low stock alert if m is at or below its threshold
func (p *InventoryEventPublisher) PublishLowStock(ctx context.Context, m *repository.Material) {
	if p == nil || !m.IsLowStock() {
		return
	}
	p.publish(ctx, messaging.EventLowStockAlert, m.ID, messaging.LowStockAlertEvent{
		MaterialID:   m.ID,
		ClinicID:     m.ClinicID,
		Name:         m.Name,
		Quantity:     m.Quantity,
		MinimumStock: m.MinimumStock,
	})
}

func (p *InventoryEventPublisher) publish(ctx context.Context, eventType, materialID string, data any) {
	if messaging.CorrelationID(ctx) == "" {
		if requestID := httputil.GetRequestID(ctx); requestID != "" {
			ctx = messaging.WithCorrelationID(ctx, requestID)
		}
	}

	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).
			Str("event_type", eventType).
			Str("material_id", materialID).
			Msg("failed to publish inventory event")
	}
}
