package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentflow/dentflow-backend/pkg/messaging"
	"github.com/dentflow/dentflow-backend/pkg/testutil"
)

type staticClinics struct {
	ids []string
	err error
}

func (c *staticClinics) ListIDs(context.Context) ([]string, error) {
	return c.ids, c.err
}

func countLowStockAlerts(p *txAwarePublisher) int {
	n := 0
	for _, typ := range p.published() {
		if typ == messaging.EventLowStockAlert {
			n++
		}
	}
	return n
}

func TestLowStockScheduler_AlertsOncePerQuantity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	gauze := f.create(t, "Gauze", 5)
	f.create(t, "Gloves", 100)
	baseline := countLowStockAlerts(f.publisher)

	sched := NewLowStockScheduler(&staticClinics{ids: []string{f.scope.ClinicID}}, f.svc, 0, nil)

	assert.Equal(t, 1, sched.RunScanCycle(ctx))
	assert.Equal(t, 0, sched.RunScanCycle(ctx), "unchanged quantity must not re-alert")

	_, err := f.svc.RecordUsage(ctx, f.scope, gauze.ID, UsageRequest{Quantity: 1})
	require.NoError(t, err)
	afterUsage := countLowStockAlerts(f.publisher)

	assert.Equal(t, 1, sched.RunScanCycle(ctx), "changed quantity re-alerts")
	assert.Equal(t, afterUsage+1, countLowStockAlerts(f.publisher))
	assert.Greater(t, countLowStockAlerts(f.publisher), baseline)
}

func TestLowStockScheduler_RecoveredMaterialAlertsAgainLater(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	gauze := f.create(t, "Gauze", 5)
	sched := NewLowStockScheduler(&staticClinics{ids: []string{f.scope.ClinicID}}, f.svc, 0, nil)
	require.Equal(t, 1, sched.RunScanCycle(ctx))

	_, err := f.svc.Restock(ctx, f.scope, gauze.ID, RestockRequest{Quantity: 50})
	require.NoError(t, err)
	assert.Equal(t, 0, sched.RunScanCycle(ctx))

	_, err = f.svc.RecordUsage(ctx, f.scope, gauze.ID, UsageRequest{Quantity: 50})
	require.NoError(t, err)
	assert.Equal(t, 1, sched.RunScanCycle(ctx))
}

func TestLowStockScheduler_CoversEveryClinic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	other := testutil.TestScope()
	f.create(t, "Gauze", 5)
	_, err := f.svc.CreateMaterial(ctx, other, CreateMaterialRequest{Name: "Gauze", Quantity: 2, Unit: "pack"})
	require.NoError(t, err)

	sched := NewLowStockScheduler(&staticClinics{ids: []string{f.scope.ClinicID, other.ClinicID}}, f.svc, 0, nil)

	assert.Equal(t, 2, sched.RunScanCycle(ctx))
}

func TestLowStockScheduler_ListFailure(t *testing.T) {
	f := newFixture(t)
	f.create(t, "Gauze", 5)

	sched := NewLowStockScheduler(&staticClinics{err: fmt.Errorf("connection refused")}, f.svc, 0, nil)

	assert.Equal(t, 0, sched.RunScanCycle(context.Background()))
}

func TestLowStockScheduler_StopsWithContext(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sched := NewLowStockScheduler(&staticClinics{ids: []string{f.scope.ClinicID}}, f.svc, time.Hour, nil)

	assert.NoError(t, sched.Run(ctx))
}
