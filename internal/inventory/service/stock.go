package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/dentflow/dentflow-backend/internal/inventory/repository"
	"github.com/dentflow/dentflow-backend/pkg/errors"
	"github.com/dentflow/dentflow-backend/pkg/tenant"
)

// Restock adds req.Quantity units to a material, stamps last_restocked and
// appends a Restock entry. The supplier defaults to the material's own.
func (s *InventoryService) Restock(ctx context.Context, scope tenant.Scope, id string, req RestockRequest) (*RestockResult, error) {
	ctx, span := s.startSpan(ctx, "Restock", scope, id)
	defer span.End()

	if req.Quantity <= 0 {
		return nil, s.fail(ctx, span, scope, id, errors.InvalidArgument("quantity", "must be greater than zero"))
	}
	if req.Quantity > MaxQuantity {
		return nil, s.fail(ctx, span, scope, id, errors.InvalidArgument("quantity", fmt.Sprintf("must not exceed %d", MaxQuantity)))
	}

	release, err := s.claim(ctx, scope, "restock", id, req.IdempotencyKey)
	if err != nil {
		return nil, s.fail(ctx, span, scope, id, err)
	}

	var (
		updated *repository.Material
		entry   *repository.InventoryTransaction
	)
	err = s.tx.WithClinic(ctx, scope.ClinicID, func(ctx context.Context) error {
		current, err := s.materials.GetForUpdate(ctx, scope, id)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		total := current.Quantity + req.Quantity
		if total > MaxQuantity {
			return errors.InvalidArgument("quantity",
				fmt.Sprintf("restock would raise stock above %d", MaxQuantity))
		}
		updated, err = s.materials.SetQuantity(ctx, scope, id, total, &now)
		if err != nil {
			return err
		}

		supplier := emptyToNil(trimmed(req.Supplier))
		if supplier == nil {
			supplier = current.Supplier
		}
		entry = &repository.InventoryTransaction{
			MaterialID:      id,
			TransactionType: repository.TransactionRestock,
			Quantity:        req.Quantity,
			BalanceAfter:    total,
			Supplier:        supplier,
			Notes:           emptyToNil(trimmed(req.Notes)),
			PerformedBy:     scope.Actor(),
		}
		if req.UnitCost != nil {
			entry.UnitCost = decimal.NewNullDecimal(*req.UnitCost)
		}
		return s.ledger.Append(ctx, scope, entry)
	})
	if err != nil {
		release()
		return nil, s.fail(ctx, span, scope, id, err)
	}

	s.logLedgerWrite(scope, entry)
	s.publisher.PublishStockChanged(ctx, entry)
	s.publisher.PublishLowStock(ctx, updated)
	return &RestockResult{Quantity: updated.Quantity, LastRestocked: updated.LastRestocked}, nil
}

// RecordUsage takes req.Quantity units out of a material and appends a Usage
// entry with a negative delta. Stock never goes below zero through usage.
func (s *InventoryService) RecordUsage(ctx context.Context, scope tenant.Scope, id string, req UsageRequest) (*UsageResult, error) {
	ctx, span := s.startSpan(ctx, "RecordUsage", scope, id)
	defer span.End()

	if req.Quantity <= 0 {
		return nil, s.fail(ctx, span, scope, id, errors.InvalidArgument("quantity", "must be greater than zero"))
	}
	if req.Quantity > MaxQuantity {
		return nil, s.fail(ctx, span, scope, id, errors.InvalidArgument("quantity", fmt.Sprintf("must not exceed %d", MaxQuantity)))
	}

	release, err := s.claim(ctx, scope, "usage", id, req.IdempotencyKey)
	if err != nil {
		return nil, s.fail(ctx, span, scope, id, err)
	}

	var (
		updated *repository.Material
		entry   *repository.InventoryTransaction
	)
	err = s.tx.WithClinic(ctx, scope.ClinicID, func(ctx context.Context) error {
		current, err := s.materials.GetForUpdate(ctx, scope, id)
		if err != nil {
			return err
		}

		remaining := current.Quantity - req.Quantity
		if remaining < 0 {
			return errors.InvalidArgument("quantity",
				fmt.Sprintf("only %d %s in stock", current.Quantity, current.Unit))
		}

		updated, err = s.materials.SetQuantity(ctx, scope, id, remaining, nil)
		if err != nil {
			return err
		}

		entry = &repository.InventoryTransaction{
			MaterialID:      id,
			TransactionType: repository.TransactionUsage,
			Quantity:        -req.Quantity,
			BalanceAfter:    remaining,
			Notes:           emptyToNil(trimmed(req.Notes)),
			PerformedBy:     scope.Actor(),
		}
		return s.ledger.Append(ctx, scope, entry)
	})
	if err != nil {
		release()
		return nil, s.fail(ctx, span, scope, id, err)
	}

	s.logLedgerWrite(scope, entry)
	s.publisher.PublishStockChanged(ctx, entry)
	s.publisher.PublishLowStock(ctx, updated)
	return &UsageResult{Quantity: updated.Quantity}, nil
}

// Reconcile checks a material's quantity against its ledger: the sum of
// deltas, the newest balance_after and the running balance sequence. The
// material row is locked for the duration so no writer can interleave.
func (s *InventoryService) Reconcile(ctx context.Context, scope tenant.Scope, id string) (*Reconciliation, error) {
	ctx, span := s.startSpan(ctx, "Reconcile", scope, id)
	defer span.End()

	var result *Reconciliation
	err := s.tx.WithClinic(ctx, scope.ClinicID, func(ctx context.Context) error {
		m, err := s.materials.GetForUpdate(ctx, scope, id)
		if err != nil {
			return err
		}

		summary, err := s.ledger.Summarize(ctx, scope, id)
		if err != nil {
			return err
		}

		entries, err := s.ledger.ListForMaterial(ctx, scope, id)
		if err != nil {
			return err
		}

		result = &Reconciliation{
			MaterialID:    id,
			Quantity:      m.Quantity,
			LedgerSum:     summary.Sum,
			LastBalance:   summary.LastBalance,
			Entries:       summary.Entries,
			SequenceBreak: repository.CheckSequence(entries),
		}
		result.Consistent = result.SequenceBreak < 0 &&
			summary.Sum == int64(m.Quantity) &&
			summary.LastBalance != nil && *summary.LastBalance == int64(m.Quantity)
		return nil
	})
	if err != nil {
		return nil, s.fail(ctx, span, scope, id, err)
	}

	if !result.Consistent {
		s.logger.WithClinicID(scope.ClinicID).WithMaterialID(id).Warn().
			Int("quantity", result.Quantity).
			Int64("ledger_sum", result.LedgerSum).
			Int("sequence_break", result.SequenceBreak).
			Msg("material quantity and ledger disagree")
	}
	return result, nil
}

// claim acquires the idempotency key of a write and returns the function
// that frees it again. Without a key or a store nothing is claimed. If the
// store is unreachable the write proceeds unguarded.
func (s *InventoryService) claim(ctx context.Context, scope tenant.Scope, op, materialID, key string) (func(), error) {
	noop := func() {}
	if key == "" || s.idempotency == nil {
		return noop, nil
	}

	full := fmt.Sprintf("%s:%s:%s:%s", scope.ClinicID, op, materialID, key)
	ok, err := s.idempotency.Acquire(ctx, full)
	if err != nil {
		s.logger.WithClinicID(scope.ClinicID).Warn().Err(err).Msg("idempotency store unavailable, continuing without it")
		return noop, nil
	}
	if !ok {
		return nil, errors.Conflict("a request with this idempotency key was already processed")
	}

	return func() {
		if err := s.idempotency.Release(context.WithoutCancel(ctx), full); err != nil {
			s.logger.WithClinicID(scope.ClinicID).Warn().Err(err).Msg("failed to release idempotency key")
		}
	}, nil
}
