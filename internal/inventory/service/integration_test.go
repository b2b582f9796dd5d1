//go:build integration

package service_test

import (
	"context"
	"log"
	"os"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dentflow/dentflow-backend/internal/inventory/repository"
	"github.com/dentflow/dentflow-backend/internal/inventory/service"
	"github.com/dentflow/dentflow-backend/pkg/errors"
	"github.com/dentflow/dentflow-backend/pkg/tenant"
	"github.com/dentflow/dentflow-backend/pkg/testutil"
)

var suite *testutil.IntegrationSuite

func TestMain(m *testing.M) {
	ctx := context.Background()

	var err error
	suite, err = testutil.NewIntegrationSuite(ctx)
	if err != nil {
		log.Fatalf("failed to create integration suite: %v", err)
	}

	code := m.Run()

	if err := suite.Cleanup(ctx); err != nil {
		log.Printf("cleanup failed: %v", err)
	}
	testutil.TerminateContainer(ctx)
	os.Exit(code)
}

func newIntegrationService() *service.InventoryService {
	return service.NewInventoryService(
		repository.NewMaterialRepository(suite.DB),
		repository.NewLedgerRepository(suite.DB),
		suite.DB,
		nil,
		nil,
		nil,
	)
}

func TestInventoryService_Integration_ConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	scope := suite.SetupClinic(t, ctx, "Busy Clinic").Scope("dr.jones")
	svc := newIntegrationService()

	m, err := svc.CreateMaterial(ctx, scope, service.CreateMaterialRequest{
		Name:     "Gauze",
		Quantity: 50,
		Unit:     "pack",
		Price:    decimal.RequireFromString("2.50"),
	})
	require.NoError(t, err)

	const restocks = 20
	adjustments := []int{40, 75, 60}
	usages := 5

	var wg sync.WaitGroup
	errs := make(chan error, restocks+len(adjustments)+usages)

	for i := 0; i < restocks; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.Restock(ctx, scope, m.ID, service.RestockRequest{Quantity: n%4 + 1})
			errs <- err
		}(i)
	}
	for _, q := range adjustments {
		wg.Add(1)
		go func(q int) {
			defer wg.Done()
			_, err := svc.UpdateMaterial(ctx, scope, m.ID, service.UpdateMaterialRequest{Quantity: testutil.PtrInt(q)})
			errs <- err
		}(q)
	}
	for i := 0; i < usages; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordUsage(ctx, scope, m.ID, service.UsageRequest{Quantity: 1})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	got, err := svc.GetMaterial(ctx, scope, m.ID)
	require.NoError(t, err)

	entries, err := svc.ListTransactions(ctx, scope, m.ID)
	require.NoError(t, err)
	assert.Equal(t, -1, repository.CheckSequence(entries))

	sum := 0
	for _, e := range entries {
		sum += e.Quantity
	}
	assert.Equal(t, got.Quantity, sum)
	assert.Equal(t, got.Quantity, entries[0].BalanceAfter)
	// seed + restocks + usages, plus one entry per adjustment that changed the quantity
	assert.GreaterOrEqual(t, len(entries), 1+restocks+usages)

	r, err := svc.Reconcile(ctx, scope, m.ID)
	require.NoError(t, err)
	assert.True(t, r.Consistent, "reconciliation failed: %+v", r)
	assert.Equal(t, int64(len(entries)), r.Entries)
}

func TestInventoryService_Integration_LowStockIsolation(t *testing.T) {
	ctx := context.Background()
	owner := suite.SetupClinic(t, ctx, "Owner Clinic").Scope("a")
	other := suite.SetupClinic(t, ctx, "Other Clinic").Scope("b")
	svc := newIntegrationService()

	_, err := svc.CreateMaterial(ctx, owner, service.CreateMaterialRequest{Name: "Composite", Quantity: 3, Unit: "syringe"})
	require.NoError(t, err)

	low, err := svc.ListLowStock(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, low, 1)

	low, err = svc.ListLowStock(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, low)
}

func TestInventoryService_Integration_MalformedClinicID(t *testing.T) {
	ctx := context.Background()
	svc := newIntegrationService()
	scope := tenant.NewScope("not-a-uuid", "intruder")

	_, err := svc.ListMaterials(ctx, scope)
	assert.ErrorIs(t, err, errors.ErrForbidden)

	_, err = svc.Restock(ctx, scope, "3c9f3d4e-0000-4000-8000-000000000000", service.RestockRequest{Quantity: 1})
	assert.ErrorIs(t, err, errors.ErrForbidden)
}
