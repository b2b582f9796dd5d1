package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dentflow/dentflow-backend/internal/inventory/events"
	"github.com/dentflow/dentflow-backend/internal/inventory/repository"
	"github.com/dentflow/dentflow-backend/pkg/errors"
	"github.com/dentflow/dentflow-backend/pkg/logger"
	"github.com/dentflow/dentflow-backend/pkg/observability"
	"github.com/dentflow/dentflow-backend/pkg/tenant"
)

// MaterialStore is the material catalog
type MaterialStore interface {
	Create(ctx context.Context, scope tenant.Scope, m *repository.Material) error
	Get(ctx context.Context, scope tenant.Scope, id string) (*repository.Material, error)
	GetForUpdate(ctx context.Context, scope tenant.Scope, id string) (*repository.Material, error)
	List(ctx context.Context, scope tenant.Scope) ([]*repository.Material, error)
	ListLowStock(ctx context.Context, scope tenant.Scope) ([]*repository.Material, error)
	Update(ctx context.Context, scope tenant.Scope, id string, u repository.MaterialUpdate) (*repository.Material, int, error)
	SetQuantity(ctx context.Context, scope tenant.Scope, id string, quantity int, lastRestocked *time.Time) (*repository.Material, error)
	Delete(ctx context.Context, scope tenant.Scope, id string) error
	Stats(ctx context.Context, scope tenant.Scope) (*repository.MaterialStats, error)
}

// LedgerStore is the append-only inventory ledger
type LedgerStore interface {
	Append(ctx context.Context, scope tenant.Scope, tx *repository.InventoryTransaction) error
	ListForMaterial(ctx context.Context, scope tenant.Scope, materialID string) ([]*repository.InventoryTransaction, error)
	Summarize(ctx context.Context, scope tenant.Scope, materialID string) (*repository.LedgerSummary, error)
}

// TxRunner runs fn in one clinic-bound transaction. Store calls made with
// the context passed to fn join that transaction. *database.DB implements it.
type TxRunner interface {
	WithClinic(ctx context.Context, clinicID string, fn func(context.Context) error) error
}

// IdempotencyStore claims request keys so a retried write is applied once.
// *cache.IdempotencyStore implements it.
type IdempotencyStore interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// InventoryService is the only writer of material quantities. Every quantity
// change and its ledger entry commit in the same transaction.
type InventoryService struct {
	materials   MaterialStore
	ledger      LedgerStore
	tx          TxRunner
	publisher   *events.InventoryEventPublisher
	idempotency IdempotencyStore
	logger      *logger.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewInventoryService creates a new inventory service. publisher and
// idempotency may be nil.
func NewInventoryService(
	materials MaterialStore,
	ledger LedgerStore,
	tx TxRunner,
	publisher *events.InventoryEventPublisher,
	idempotency IdempotencyStore,
	log *logger.Logger,
) *InventoryService {
	if log == nil {
		log = logger.Nop()
	}
	return &InventoryService{
		materials:   materials,
		ledger:      ledger,
		tx:          tx,
		publisher:   publisher,
		idempotency: idempotency,
		logger:      log.WithComponent("inventory-service"),
		tracer:      observability.Tracer("inventory-service"),
		now:         time.Now,
	}
}

// CreateMaterial adds a material to the catalog and seeds its ledger with
// an "Initial stock" restock entry, even for an initial quantity of zero.
func (s *InventoryService) CreateMaterial(ctx context.Context, scope tenant.Scope, req CreateMaterialRequest) (*repository.Material, error) {
	ctx, span := s.startSpan(ctx, "CreateMaterial", scope, "")
	defer span.End()

	m, err := req.toMaterial()
	if err != nil {
		return nil, s.fail(ctx, span, scope, "", err)
	}

	var seed *repository.InventoryTransaction
	err = s.tx.WithClinic(ctx, scope.ClinicID, func(ctx context.Context) error {
		if err := s.materials.Create(ctx, scope, m); err != nil {
			return err
		}

		seed = &repository.InventoryTransaction{
			MaterialID:      m.ID,
			TransactionType: repository.TransactionRestock,
			Quantity:        m.Quantity,
			BalanceAfter:    m.Quantity,
			Supplier:        m.Supplier,
			Notes:           strPtr("Initial stock"),
			PerformedBy:     scope.Actor(),
		}
		if m.Price.IsPositive() {
			seed.UnitCost = decimal.NewNullDecimal(m.Price)
		}
		return s.ledger.Append(ctx, scope, seed)
	})
	if err != nil {
		return nil, s.fail(ctx, span, scope, m.ID, err)
	}

	s.logLedgerWrite(scope, seed)
	s.publisher.PublishMaterialCreated(ctx, m, scope.Actor())
	s.publisher.PublishLowStock(ctx, m)
	return m, nil
}

// GetMaterial returns one material of the clinic
func (s *InventoryService) GetMaterial(ctx context.Context, scope tenant.Scope, id string) (*repository.Material, error) {
	return s.materials.Get(ctx, scope, id)
}

// ListMaterials returns the clinic's materials ordered by name
func (s *InventoryService) ListMaterials(ctx context.Context, scope tenant.Scope) ([]*repository.Material, error) {
	return s.materials.List(ctx, scope)
}

// ListLowStock returns materials at or below their reorder threshold
func (s *InventoryService) ListLowStock(ctx context.Context, scope tenant.Scope) ([]*repository.Material, error) {
	return s.materials.ListLowStock(ctx, scope)
}

// Stats returns the dashboard counters
func (s *InventoryService) Stats(ctx context.Context, scope tenant.Scope) (*repository.MaterialStats, error) {
	return s.materials.Stats(ctx, scope)
}

// UpdateMaterial overwrites the set fields of a material. A quantity change
// is recorded as an Adjustment entry; a pure metadata edit writes nothing to
// the ledger.
func (s *InventoryService) UpdateMaterial(ctx context.Context, scope tenant.Scope, id string, req UpdateMaterialRequest) (*repository.Material, error) {
	ctx, span := s.startSpan(ctx, "UpdateMaterial", scope, id)
	defer span.End()

	update, err := req.toUpdate(id)
	if err != nil {
		return nil, s.fail(ctx, span, scope, id, err)
	}

	var (
		updated *repository.Material
		entry   *repository.InventoryTransaction
	)
	err = s.tx.WithClinic(ctx, scope.ClinicID, func(ctx context.Context) error {
		m, previous, err := s.materials.Update(ctx, scope, id, update)
		if err != nil {
			return err
		}
		updated = m

		if m.Quantity == previous {
			return nil
		}
		entry = &repository.InventoryTransaction{
			MaterialID:      id,
			TransactionType: repository.TransactionAdjustment,
			Quantity:        m.Quantity - previous,
			BalanceAfter:    m.Quantity,
			Notes:           strPtr(fmt.Sprintf("Manual adjustment: %d → %d", previous, m.Quantity)),
			PerformedBy:     scope.Actor(),
		}
		return s.ledger.Append(ctx, scope, entry)
	})
	if err != nil {
		return nil, s.fail(ctx, span, scope, id, err)
	}

	if entry != nil {
		s.logLedgerWrite(scope, entry)
		s.publisher.PublishStockChanged(ctx, entry)
		s.publisher.PublishLowStock(ctx, updated)
	}
	return updated, nil
}

// DeleteMaterial soft-deletes a material. Its ledger stays in place.
func (s *InventoryService) DeleteMaterial(ctx context.Context, scope tenant.Scope, id string) error {
	ctx, span := s.startSpan(ctx, "DeleteMaterial", scope, id)
	defer span.End()

	if err := s.materials.Delete(ctx, scope, id); err != nil {
		return s.fail(ctx, span, scope, id, err)
	}

	s.publisher.PublishMaterialDeleted(ctx, scope.ClinicID, id, scope.Actor())
	return nil
}

// ListTransactions returns a material's ledger, newest first
func (s *InventoryService) ListTransactions(ctx context.Context, scope tenant.Scope, id string) ([]*repository.InventoryTransaction, error) {
	if _, err := s.materials.Get(ctx, scope, id); err != nil {
		return nil, err
	}
	return s.ledger.ListForMaterial(ctx, scope, id)
}

func (s *InventoryService) startSpan(ctx context.Context, op string, scope tenant.Scope, materialID string) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{attribute.String("clinic.id", scope.ClinicID)}
	if materialID != "" {
		attrs = append(attrs, attribute.String("material.id", materialID))
	}
	return s.tracer.Start(ctx, "InventoryService."+op, trace.WithAttributes(attrs...))
}

// fail records err on the span and logs it. Client errors are logged at
// debug, everything else at error.
func (s *InventoryService) fail(ctx context.Context, span trace.Span, scope tenant.Scope, materialID string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	log := s.logger.WithClinicID(scope.ClinicID)
	if materialID != "" {
		log = log.WithMaterialID(materialID)
	}

	if appErr := errors.From(err); appErr != nil && appErr.StatusCode < 500 {
		log.Debug().Err(err).Msg("inventory operation rejected")
	} else {
		log.Error().Err(err).Msg("inventory operation failed")
	}
	return err
}

func (s *InventoryService) logLedgerWrite(scope tenant.Scope, tx *repository.InventoryTransaction) {
	s.logger.WithClinicID(scope.ClinicID).WithMaterialID(tx.MaterialID).Debug().
		Str("transaction_id", tx.ID).
		Str("transaction_type", string(tx.TransactionType)).
		Int("delta", tx.Quantity).
		Int("balance_after", tx.BalanceAfter).
		Msg("ledger entry written")
}

func strPtr(s string) *string {
	return &s
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	return &t
}
