package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dentflow/dentflow-backend/internal/inventory/repository"
	"github.com/dentflow/dentflow-backend/pkg/errors"
	"github.com/dentflow/dentflow-backend/pkg/tenant"
)

type fakeTxKey struct{}

// memStore is an in-memory catalog, ledger and transaction runner. WithClinic
// holds a single lock for the whole transaction and restores a snapshot when
// fn fails. SetQuantity refuses rows that were not read with GetForUpdate in
// the current transaction, so a write path that skips the row lock fails.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	materials map[string]*repository.Material
	ledger    []*repository.InventoryTransaction
	seq       int64
	active    bool
	locked    map[string]bool

	// appendErr, when set, fails every Append
	appendErr error
}

func newMemStore() *memStore {
	return &memStore{materials: make(map[string]*repository.Material)}
}

func (s *memStore) WithClinic(ctx context.Context, clinicID string, fn func(context.Context) error) error {
	if ctx.Value(fakeTxKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := make(map[string]repository.Material, len(s.materials))
	for id, m := range s.materials {
		snapshot[id] = *m
	}
	ledgerLen := len(s.ledger)
	s.active = true
	s.locked = make(map[string]bool)
	s.mu.Unlock()

	err := fn(context.WithValue(ctx, fakeTxKey{}, clinicID))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.locked = nil
	if err != nil {
		s.materials = make(map[string]*repository.Material, len(snapshot))
		for id, m := range snapshot {
			m := m
			s.materials[id] = &m
		}
		s.ledger = s.ledger[:ledgerLen]
	}
	return err
}

func (s *memStore) inTransaction() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

func (s *memStore) visible(scope tenant.Scope, id string) (*repository.Material, error) {
	m, ok := s.materials[id]
	if !ok || m.ClinicID != scope.ClinicID || m.DeletedAt != nil {
		return nil, errors.NotFound("material")
	}
	return m, nil
}

func (s *memStore) nameTaken(clinicID, name, exceptID string) bool {
	for _, m := range s.materials {
		if m.ClinicID == clinicID && m.DeletedAt == nil && m.Name == name && m.ID != exceptID {
			return true
		}
	}
	return false
}

func (s *memStore) Create(ctx context.Context, scope tenant.Scope, m *repository.Material) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nameTaken(scope.ClinicID, m.Name, "") {
		return errors.DuplicateName("material", m.Name)
	}
	m.ID = uuid.New().String()
	m.ClinicID = scope.ClinicID
	m.CreatedAt = time.Now().UTC()
	stored := *m
	s.materials[m.ID] = &stored
	return nil
}

func (s *memStore) Get(ctx context.Context, scope tenant.Scope, id string) (*repository.Material, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.visible(scope, id)
	if err != nil {
		return nil, err
	}
	out := *m
	return &out, nil
}

func (s *memStore) GetForUpdate(ctx context.Context, scope tenant.Scope, id string) (*repository.Material, error) {
	if ctx.Value(fakeTxKey{}) == nil {
		return nil, fmt.Errorf("GetForUpdate outside a transaction")
	}
	m, err := s.Get(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.locked[id] = true
	s.mu.Unlock()
	return m, nil
}

func (s *memStore) List(ctx context.Context, scope tenant.Scope) ([]*repository.Material, error) {
	return s.filter(scope, func(*repository.Material) bool { return true }), nil
}

func (s *memStore) ListLowStock(ctx context.Context, scope tenant.Scope) ([]*repository.Material, error) {
	out := s.filter(scope, (*repository.Material).IsLowStock)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Quantity < out[j].Quantity })
	return out, nil
}

func (s *memStore) filter(scope tenant.Scope, keep func(*repository.Material) bool) []*repository.Material {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*repository.Material, 0)
	for _, m := range s.materials {
		if m.ClinicID == scope.ClinicID && m.DeletedAt == nil && keep(m) {
			c := *m
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *memStore) Update(ctx context.Context, scope tenant.Scope, id string, u repository.MaterialUpdate) (*repository.Material, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.visible(scope, id)
	if err != nil {
		return nil, 0, err
	}
	if u.Name != nil && s.nameTaken(scope.ClinicID, *u.Name, id) {
		return nil, 0, errors.DuplicateName("material", *u.Name)
	}
	previous := m.Quantity
	u.Apply(m)
	now := time.Now().UTC()
	m.UpdatedAt = &now
	out := *m
	return &out, previous, nil
}

func (s *memStore) SetQuantity(ctx context.Context, scope tenant.Scope, id string, quantity int, lastRestocked *time.Time) (*repository.Material, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.locked[id] {
		return nil, fmt.Errorf("SetQuantity on %s without a row lock", id)
	}
	m, err := s.visible(scope, id)
	if err != nil {
		return nil, err
	}
	m.Quantity = quantity
	if lastRestocked != nil {
		t := *lastRestocked
		m.LastRestocked = &t
	}
	out := *m
	return &out, nil
}

func (s *memStore) Delete(ctx context.Context, scope tenant.Scope, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.visible(scope, id)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	m.DeletedAt = &now
	return nil
}

func (s *memStore) Stats(ctx context.Context, scope tenant.Scope) (*repository.MaterialStats, error) {
	stats := &repository.MaterialStats{}
	for _, m := range s.filter(scope, func(*repository.Material) bool { return true }) {
		stats.TotalMaterials++
		stats.TotalUnits += int64(m.Quantity)
		if m.IsLowStock() {
			stats.LowStockCount++
		}
		if m.Quantity <= 0 {
			stats.OutOfStockCount++
		}
	}
	return stats, nil
}

func (s *memStore) Append(ctx context.Context, scope tenant.Scope, tx *repository.InventoryTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	if _, ok := s.materials[tx.MaterialID]; !ok {
		return errors.Conflict("referenced record does not exist or is still in use")
	}
	s.seq++
	tx.ID = uuid.New().String()
	tx.Seq = s.seq
	tx.ClinicID = scope.ClinicID
	tx.CreatedAt = time.Now().UTC()
	stored := *tx
	s.ledger = append(s.ledger, &stored)
	return nil
}

func (s *memStore) ListForMaterial(ctx context.Context, scope tenant.Scope, materialID string) ([]*repository.InventoryTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*repository.InventoryTransaction, 0)
	for i := len(s.ledger) - 1; i >= 0; i-- {
		e := s.ledger[i]
		if e.MaterialID == materialID && e.ClinicID == scope.ClinicID {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *memStore) Summarize(ctx context.Context, scope tenant.Scope, materialID string) (*repository.LedgerSummary, error) {
	entries, _ := s.ListForMaterial(ctx, scope, materialID)
	summary := &repository.LedgerSummary{Entries: int64(len(entries))}
	for _, e := range entries {
		summary.Sum += int64(e.Quantity)
	}
	if len(entries) > 0 {
		last := int64(entries[0].BalanceAfter)
		summary.LastBalance = &last
	}
	return summary, nil
}

// corrupt overwrites a material's quantity without a ledger entry
func (s *memStore) corrupt(id string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.materials[id].Quantity = quantity
}

// memIdempotency is an in-memory IdempotencyStore
type memIdempotency struct {
	mu   sync.Mutex
	keys map[string]bool
	err  error
}

func newMemIdempotency() *memIdempotency {
	return &memIdempotency{keys: make(map[string]bool)}
}

func (m *memIdempotency) Acquire(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *memIdempotency) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func (m *memIdempotency) held() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}

// txAwarePublisher records events and whether a transaction was open when
// each one was published.
type txAwarePublisher struct {
	store *memStore

	mu           sync.Mutex
	types        []string
	duringCommit int
}

func (p *txAwarePublisher) Publish(ctx context.Context, eventType string, data any) error {
	inTx := p.store.inTransaction()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.types = append(p.types, eventType)
	if inTx {
		p.duringCommit++
	}
	return nil
}

func (p *txAwarePublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.types...)
}
