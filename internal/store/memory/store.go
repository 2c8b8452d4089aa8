// Package memory is an in-process implementation of every pipeline store.
// Transactions take a store-wide lock and roll back through an undo log, so
// concurrent review calls serialize exactly like row locks would.
package memory

import (
	"context"
	"sync"
	"time"

	"promisetracker/internal/models"
	id "promisetracker/pkg/domain"
	dErrors "promisetracker/pkg/domain-errors"
)

const defaultTxTimeout = 5 * time.Second

type claim struct {
	owner   string
	expires time.Time
}

func (c claim) heldAt(now time.Time) bool {
	return c.owner != "" && now.Before(c.expires)
}

type ingestRow struct {
	rec   *models.IngestRecord
	claim claim
}

type evidenceRow struct {
	item  *models.EvidenceItem
	claim claim
}

type pairKey struct {
	promise  id.PromiseID
	evidence id.EvidenceID
}

// Store keeps all records in maps guarded by one mutex.
type Store struct {
	mu      sync.Mutex
	timeout time.Duration

	raw       map[id.RawID]*models.RawDocument
	ingest    map[id.RawID]*ingestRow
	evidence  map[id.EvidenceID]*evidenceRow
	bySource  map[string]id.EvidenceID
	promises  map[id.PromiseID]*models.Promise
	links     map[id.LinkID]*models.PotentialLink
	linkPairs map[pairKey]id.LinkID
	outbox    []*models.OutboxEntry
}

func New() *Store {
	return &Store{
		timeout:   defaultTxTimeout,
		raw:       make(map[id.RawID]*models.RawDocument),
		ingest:    make(map[id.RawID]*ingestRow),
		evidence:  make(map[id.EvidenceID]*evidenceRow),
		bySource:  make(map[string]id.EvidenceID),
		promises:  make(map[id.PromiseID]*models.Promise),
		links:     make(map[id.LinkID]*models.PotentialLink),
		linkPairs: make(map[pairKey]id.LinkID),
	}
}

type txKey struct{}

type txState struct {
	owner *Store
	undo  []func()
}

// remember registers a compensating action; a nil state is a no-op.
func (t *txState) remember(f func()) {
	if t != nil {
		t.undo = append(t.undo, f)
	}
}

func (t *txState) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (s *Store) txFrom(ctx context.Context) *txState {
	st, ok := ctx.Value(txKey{}).(*txState)
	if !ok || st.owner != s {
		return nil
	}
	return st
}

// RunInTx runs fn holding the store lock. Store calls made with the callback
// context join the transaction; any error or panic undoes their writes.
// Nested calls join the outer transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if s.txFrom(ctx) != nil {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := &txState{owner: s}
	defer func() {
		if r := recover(); r != nil {
			st.rollback()
			panic(r)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, st)); err != nil {
		st.rollback()
		return err
	}
	return nil
}

// with runs fn under the store lock unless ctx already holds it through a
// transaction.
func (s *Store) with(ctx context.Context, fn func(tx *txState) error) error {
	if st := s.txFrom(ctx); st != nil {
		return fn(st)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(nil)
}
