package service

import (
	"context"
	"sync"
	"time"

	"github.com/dentflow/dentflow-backend/pkg/logger"
	"github.com/dentflow/dentflow-backend/pkg/tenant"
)

// ClinicLister enumerates clinics for background sweeps.
// *repository.ClinicRepository implements it.
type ClinicLister interface {
	ListIDs(ctx context.Context) ([]string, error)
}

// LowStockScheduler periodically publishes low-stock alerts across all
// clinics. A material is announced again only when its quantity changed
// since the last alert or it left the low-stock set in between.
type LowStockScheduler struct {
	clinics  ClinicLister
	service  *InventoryService
	interval time.Duration
	logger   *logger.Logger

	mu      sync.Mutex
	alerted map[string]map[string]int // clinic -> material -> quantity
}

// NewLowStockScheduler creates a new low-stock scheduler
func NewLowStockScheduler(clinics ClinicLister, svc *InventoryService, interval time.Duration, log *logger.Logger) *LowStockScheduler {
	if log == nil {
		log = logger.Nop()
	}
	return &LowStockScheduler{
		clinics:  clinics,
		service:  svc,
		interval: interval,
		logger:   log.WithComponent("low-stock-scheduler"),
		alerted:  make(map[string]map[string]int),
	}
}

// Run scans immediately and then on every tick until ctx is done.
func (s *LowStockScheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.Info().Msg("low-stock scheduler disabled")
		return nil
	}

	s.logger.Info().Dur("interval", s.interval).Msg("low-stock scheduler started")

	s.RunScanCycle(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("low-stock scheduler stopped")
			return nil
		case <-ticker.C:
			s.RunScanCycle(ctx)
		}
	}
}

// RunScanCycle sweeps every clinic once and returns the number of alerts
// published. A clinic whose scan fails keeps its previous alert state.
func (s *LowStockScheduler) RunScanCycle(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()

	clinicIDs, err := s.clinics.ListIDs(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list clinics")
		return 0
	}

	next := make(map[string]map[string]int, len(clinicIDs))
	published := 0

	for _, clinicID := range clinicIDs {
		if ctx.Err() != nil {
			break
		}

		materials, err := s.service.ListLowStock(ctx, tenant.NewScope(clinicID, ""))
		if err != nil {
			s.logger.Error().Err(err).Str("clinic_id", clinicID).Msg("low-stock scan failed for clinic")
			if prev, ok := s.alerted[clinicID]; ok {
				next[clinicID] = prev
			}
			continue
		}

		prev := s.alerted[clinicID]
		seen := make(map[string]int, len(materials))
		for _, m := range materials {
			seen[m.ID] = m.Quantity
			if q, ok := prev[m.ID]; ok && q == m.Quantity {
				continue
			}
			s.service.publisher.PublishLowStock(ctx, m)
			published++
		}
		next[clinicID] = seen
	}
	s.alerted = next

	s.logger.Info().
		Dur("duration", time.Since(start)).
		Int("clinic_count", len(clinicIDs)).
		Int("alerts", published).
		Msg("low-stock scan cycle completed")

	return published
}
