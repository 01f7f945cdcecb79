package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"amlcore/internal/operations/models"
	id "amlcore/pkg/domain"
	dErrors "amlcore/pkg/domain-errors"
	"amlcore/pkg/platform/sentinel"
)

type folioKey struct {
	owner id.OwnerID
	year  int
}

// InMemory is a map-backed store with the same contract as the Postgres
// store, including transactions: writes made inside RunInTx are staged and
// only become visible when fn succeeds.
type InMemory struct {
	mu       sync.RWMutex
	ops      map[id.OperationID]models.Operation
	counters map[folioKey]int

	// txMu serializes transactions.
	txMu sync.Mutex
}

type memTxKey struct{}

// memTx holds staged writes of one transaction.
type memTx struct {
	ops      map[id.OperationID]models.Operation
	counters map[folioKey]int
}

func NewInMemory() *InMemory {
	return &InMemory{
		ops:      make(map[id.OperationID]models.Operation),
		counters: make(map[folioKey]int),
	}
}

func txFrom(ctx context.Context) *memTx {
	t, _ := ctx.Value(memTxKey{}).(*memTx)
	return t
}

// RunInTx runs fn with staged writes and commits them when fn returns nil.
func (s *InMemory) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if txFrom(ctx) != nil {
		return fn(ctx)
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTxTimeout)
		defer cancel()
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	t := &memTx{
		ops:      make(map[id.OperationID]models.Operation),
		counters: make(map[folioKey]int),
	}
	if err := fn(context.WithValue(ctx, memTxKey{}, t)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range t.ops {
		s.ops[k] = v
	}
	for k, v := range t.counters {
		s.counters[k] = v
	}
	return nil
}

// lookup reads through the transaction overlay. Caller holds s.mu.
func (s *InMemory) lookup(t *memTx, opID id.OperationID) (models.Operation, bool) {
	if t != nil {
		if op, ok := t.ops[opID]; ok {
			return op, true
		}
	}
	op, ok := s.ops[opID]
	return op, ok
}

// snapshot returns every visible operation. Caller holds s.mu.
func (s *InMemory) snapshot(t *memTx) []models.Operation {
	out := make([]models.Operation, 0, len(s.ops))
	for k, op := range s.ops {
		if t != nil {
			if staged, ok := t.ops[k]; ok {
				op = staged
			}
		}
		out = append(out, op)
	}
	if t != nil {
		for k, op := range t.ops {
			if _, ok := s.ops[k]; !ok {
				out = append(out, op)
			}
		}
	}
	return out
}

// NextSequence increments the (owner, year) counter, seeding it from the
// highest stored sequence the first time.
func (s *InMemory) NextSequence(ctx context.Context, ownerID id.OwnerID, year int) (int, error) {
	t := txFrom(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	key := folioKey{owner: ownerID, year: year}
	current, ok := 0, false
	if t != nil {
		current, ok = t.counters[key]
	}
	if !ok {
		current, ok = s.counters[key]
	}
	if !ok {
		for _, op := range s.snapshot(t) {
			if op.OwnerID == ownerID && op.Folio.Year == year && op.Folio.Seq > current {
				current = op.Folio.Seq
			}
		}
	}

	next := current + 1
	if t != nil {
		t.counters[key] = next
	} else {
		s.counters[key] = next
	}
	return next, nil
}

// Insert stores a new operation. A duplicate id or (owner, year, seq) is a conflict.
func (s *InMemory) Insert(ctx context.Context, op *models.Operation) error {
	t := txFrom(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.lookup(t, op.ID); exists {
		return sentinel.ErrConflict
	}
	for _, other := range s.snapshot(t) {
		if other.OwnerID == op.OwnerID && other.Folio.Year == op.Folio.Year && other.Folio.Seq == op.Folio.Seq {
			return sentinel.ErrConflict
		}
	}
	s.put(t, op)
	return nil
}

// Update replaces an existing operation scoped to its owner.
func (s *InMemory) Update(ctx context.Context, op *models.Operation) error {
	t := txFrom(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.lookup(t, op.ID)
	if !ok || existing.OwnerID != op.OwnerID {
		return sentinel.ErrNotFound
	}
	s.put(t, op)
	return nil
}

func (s *InMemory) put(t *memTx, op *models.Operation) {
	c := clone(op)
	if t != nil {
		t.ops[op.ID] = c
		return
	}
	s.ops[op.ID] = c
}

// FindByID returns the owner's operation, deleted or not.
func (s *InMemory) FindByID(ctx context.Context, ownerID id.OwnerID, opID id.OperationID) (*models.Operation, error) {
	t := txFrom(ctx)
	s.mu.RLock()
	defer s.mu.RUnlock()

	op, ok := s.lookup(t, opID)
	if !ok || op.OwnerID != ownerID {
		return nil, sentinel.ErrNotFound
	}
	c := clone(&op)
	return &c, nil
}

// FindByIDForUpdate is FindByID; the transaction lock already serializes writers.
func (s *InMemory) FindByIDForUpdate(ctx context.Context, ownerID id.OwnerID, opID id.OperationID) (*models.Operation, error) {
	return s.FindByID(ctx, ownerID, opID)
}

// History returns the non-deleted operations of (owner, client) with event
// dates in [from, to].
func (s *InMemory) History(ctx context.Context, ownerID id.OwnerID, clientID id.ClientID, from, to time.Time) ([]models.HistoryEntry, error) {
	t := txFrom(ctx)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.HistoryEntry
	for _, op := range s.snapshot(t) {
		if op.OwnerID != ownerID || op.ClientID != clientID || op.Deleted {
			continue
		}
		if op.EventDate.Before(from) || op.EventDate.After(to) {
			continue
		}
		out = append(out, models.HistoryEntry{ID: op.ID, ClientID: op.ClientID, EventDate: op.EventDate})
	}
	return out, nil
}

// ListByClient returns up to limit non-deleted operations, newest event first.
func (s *InMemory) ListByClient(ctx context.Context, ownerID id.OwnerID, clientID id.ClientID, limit int) ([]*models.Operation, error) {
	t := txFrom(ctx)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Operation
	for _, op := range s.snapshot(t) {
		if op.OwnerID != ownerID || op.ClientID != clientID || op.Deleted {
			continue
		}
		c := clone(&op)
		out = append(out, &c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].EventDate.Equal(out[j].EventDate) {
			return out[i].EventDate.After(out[j].EventDate)
		}
		if out[i].EventTime != out[j].EventTime {
			return out[i].EventTime > out[j].EventTime
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func clone(op *models.Operation) models.Operation {
	c := *op
	c.Alerts = append([]string(nil), op.Alerts...)
	if op.DeletedAt != nil {
		at := *op.DeletedAt
		c.DeletedAt = &at
	}
	return c
}
