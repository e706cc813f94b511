package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/talentlink/caseflow/internal/models"
)

// MemoryStore is an in-process Store used by tests and local runs. Transact
// snapshots the maps up front and restores them when fn fails, so a failed
// transition leaves no partial state, matching the Postgres behavior.
type MemoryStore struct {
	mu       sync.RWMutex
	cases    map[int64]models.Case
	history  map[int64]models.CaseHistoryEntry
	supplies map[int64]string

	nextCaseID    int64
	nextHistoryID int64
	nextSeq       map[int64]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cases:    map[int64]models.Case{},
		history:  map[int64]models.CaseHistoryEntry{},
		supplies: map[int64]string{},
		nextSeq:  map[int64]int64{},
	}
}

// SeedCase inserts a case row, assigning an id when none is set. Case
// creation is owned by the surrounding CRUD layer in production; tests and
// local runs seed through this.
func (m *MemoryStore) SeedCase(c models.Case) models.Case {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == 0 {
		m.nextCaseID++
		c.ID = m.nextCaseID
	} else if c.ID > m.nextCaseID {
		m.nextCaseID = c.ID
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now
	m.cases[c.ID] = c
	if _, ok := m.supplies[c.SupplyID]; !ok && c.SupplyID != 0 {
		m.supplies[c.SupplyID] = ""
	}
	return c
}

// SeedSupply registers a supply row with an initial aggregate status.
func (m *MemoryStore) SeedSupply(id int64, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.supplies[id] = status
}

func (m *MemoryStore) GetCase(ctx context.Context, id int64) (models.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getCase(id)
}

func (m *MemoryStore) getCase(id int64) (models.Case, error) {
	c, ok := m.cases[id]
	if !ok {
		return models.Case{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) UpdateCaseStatus(ctx context.Context, id int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateCaseStatus(id, status)
}

func (m *MemoryStore) updateCaseStatus(id int64, status string) error {
	c, ok := m.cases[id]
	if !ok {
		return ErrNotFound
	}
	c.Status = status
	c.UpdatedAt = time.Now().UTC()
	m.cases[id] = c
	return nil
}

func (m *MemoryStore) SetCaseActive(ctx context.Context, id int64, active bool, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setCaseActive(id, active, reason)
}

func (m *MemoryStore) setCaseActive(id int64, active bool, reason string) error {
	c, ok := m.cases[id]
	if !ok {
		return ErrNotFound
	}
	c.Active = active
	c.Reason = reason
	c.UpdatedAt = time.Now().UTC()
	m.cases[id] = c
	return nil
}

func (m *MemoryStore) ListCasesBySupply(ctx context.Context, supplyID int64, active bool) ([]models.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listCasesBySupply(supplyID, active), nil
}

func (m *MemoryStore) listCasesBySupply(supplyID int64, active bool) []models.Case {
	var out []models.Case
	for _, c := range m.cases {
		if c.SupplyID == supplyID && c.Active == active {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryStore) ListCasesOwned(ctx context.Context, ids []int64, ownerTable string, ownerID int64) ([]models.Case, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listCasesOwned(ids, ownerTable, ownerID)
}

func (m *MemoryStore) listCasesOwned(ids []int64, ownerTable string, ownerID int64) ([]models.Case, error) {
	if ownerTable != OwnerTableSupply && ownerTable != OwnerTableDemand {
		return nil, fmt.Errorf("unknown owner table %q", ownerTable)
	}
	// distinct rows, like the id = ANY(...) query
	seen := make(map[int64]bool, len(ids))
	var out []models.Case
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		c, ok := m.cases[id]
		if !ok {
			continue
		}
		owner := c.SupplyID
		if ownerTable == OwnerTableDemand {
			owner = c.DemandID
		}
		if owner == ownerID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) DeactivateCases(ctx context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deactivateCases(ids)
}

func (m *MemoryStore) deactivateCases(ids []int64) error {
	for _, id := range ids {
		c, ok := m.cases[id]
		if !ok {
			continue
		}
		c.Active = false
		c.ToBeConfirmed = false
		c.UpdatedAt = time.Now().UTC()
		m.cases[id] = c
	}
	return nil
}

func (m *MemoryStore) ListHistory(ctx context.Context, caseID int64, activeOnly bool) ([]models.CaseHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listHistory(caseID, activeOnly), nil
}

func (m *MemoryStore) listHistory(caseID int64, activeOnly bool) []models.CaseHistoryEntry {
	var out []models.CaseHistoryEntry
	for _, e := range m.history {
		if e.CaseID != caseID {
			continue
		}
		if activeOnly && !e.Active {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

func (m *MemoryStore) GetHistoryEntry(ctx context.Context, id int64) (models.CaseHistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getHistoryEntry(id)
}

func (m *MemoryStore) getHistoryEntry(id int64) (models.CaseHistoryEntry, error) {
	e, ok := m.history[id]
	if !ok {
		return models.CaseHistoryEntry{}, ErrNotFound
	}
	return e, nil
}

func (m *MemoryStore) InsertHistory(ctx context.Context, caseID int64, status, remark string) (models.CaseHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertHistory(caseID, status, remark), nil
}

func (m *MemoryStore) insertHistory(caseID int64, status, remark string) models.CaseHistoryEntry {
	m.nextHistoryID++
	m.nextSeq[caseID]++
	e := models.CaseHistoryEntry{
		ID:        m.nextHistoryID,
		CaseID:    caseID,
		Seq:       m.nextSeq[caseID],
		Status:    status,
		Remark:    remark,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	m.history[e.ID] = e
	return e
}

func (m *MemoryStore) UpdateHistory(ctx context.Context, id int64, upd HistoryUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateHistory(id, upd)
}

func (m *MemoryStore) updateHistory(id int64, upd HistoryUpdate) error {
	e, ok := m.history[id]
	if !ok {
		return ErrNotFound
	}
	if upd.Status != nil {
		e.Status = *upd.Status
	}
	if upd.Remark != nil {
		e.Remark = *upd.Remark
	}
	if upd.Active != nil {
		e.Active = *upd.Active
	}
	m.history[id] = e
	return nil
}

func (m *MemoryStore) GetSupplyStatus(ctx context.Context, supplyID int64) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getSupplyStatus(supplyID)
}

func (m *MemoryStore) getSupplyStatus(supplyID int64) (string, error) {
	status, ok := m.supplies[supplyID]
	if !ok {
		return "", ErrNotFound
	}
	return status, nil
}

func (m *MemoryStore) SetSupplyStatus(ctx context.Context, supplyID int64, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setSupplyStatus(supplyID, status)
}

func (m *MemoryStore) setSupplyStatus(supplyID int64, status string) error {
	if _, ok := m.supplies[supplyID]; !ok {
		return ErrNotFound
	}
	m.supplies[supplyID] = status
	return nil
}

func (m *MemoryStore) Transact(ctx context.Context, fn func(Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&memoryTx{m: m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

type memorySnapshot struct {
	cases         map[int64]models.Case
	history       map[int64]models.CaseHistoryEntry
	supplies      map[int64]string
	nextCaseID    int64
	nextHistoryID int64
	nextSeq       map[int64]int64
}

func (m *MemoryStore) snapshot() memorySnapshot {
	snap := memorySnapshot{
		cases:         make(map[int64]models.Case, len(m.cases)),
		history:       make(map[int64]models.CaseHistoryEntry, len(m.history)),
		supplies:      make(map[int64]string, len(m.supplies)),
		nextCaseID:    m.nextCaseID,
		nextHistoryID: m.nextHistoryID,
		nextSeq:       make(map[int64]int64, len(m.nextSeq)),
	}
	for k, v := range m.cases {
		snap.cases[k] = v
	}
	for k, v := range m.history {
		snap.history[k] = v
	}
	for k, v := range m.supplies {
		snap.supplies[k] = v
	}
	for k, v := range m.nextSeq {
		snap.nextSeq[k] = v
	}
	return snap
}

func (m *MemoryStore) restore(snap memorySnapshot) {
	m.cases = snap.cases
	m.history = snap.history
	m.supplies = snap.supplies
	m.nextCaseID = snap.nextCaseID
	m.nextHistoryID = snap.nextHistoryID
	m.nextSeq = snap.nextSeq
}

// memoryTx is the view handed to Transact callbacks. The MemoryStore mutex
// is already held, so it calls the unlocked internals directly.
type memoryTx struct {
	m *MemoryStore
}

func (t *memoryTx) GetCase(ctx context.Context, id int64) (models.Case, error) {
	return t.m.getCase(id)
}

func (t *memoryTx) UpdateCaseStatus(ctx context.Context, id int64, status string) error {
	return t.m.updateCaseStatus(id, status)
}

func (t *memoryTx) SetCaseActive(ctx context.Context, id int64, active bool, reason string) error {
	return t.m.setCaseActive(id, active, reason)
}

func (t *memoryTx) ListCasesBySupply(ctx context.Context, supplyID int64, active bool) ([]models.Case, error) {
	return t.m.listCasesBySupply(supplyID, active), nil
}

func (t *memoryTx) ListCasesOwned(ctx context.Context, ids []int64, ownerTable string, ownerID int64) ([]models.Case, error) {
	return t.m.listCasesOwned(ids, ownerTable, ownerID)
}

func (t *memoryTx) DeactivateCases(ctx context.Context, ids []int64) error {
	return t.m.deactivateCases(ids)
}

func (t *memoryTx) ListHistory(ctx context.Context, caseID int64, activeOnly bool) ([]models.CaseHistoryEntry, error) {
	return t.m.listHistory(caseID, activeOnly), nil
}

func (t *memoryTx) GetHistoryEntry(ctx context.Context, id int64) (models.CaseHistoryEntry, error) {
	return t.m.getHistoryEntry(id)
}

func (t *memoryTx) InsertHistory(ctx context.Context, caseID int64, status, remark string) (models.CaseHistoryEntry, error) {
	return t.m.insertHistory(caseID, status, remark), nil
}

func (t *memoryTx) UpdateHistory(ctx context.Context, id int64, upd HistoryUpdate) error {
	return t.m.updateHistory(id, upd)
}

func (t *memoryTx) GetSupplyStatus(ctx context.Context, supplyID int64) (string, error) {
	return t.m.getSupplyStatus(supplyID)
}

func (t *memoryTx) SetSupplyStatus(ctx context.Context, supplyID int64, status string) error {
	return t.m.setSupplyStatus(supplyID, status)
}

func (t *memoryTx) Transact(ctx context.Context, fn func(Store) error) error {
	return fn(t)
}

func (t *memoryTx) Ping(ctx context.Context) error { return nil }
