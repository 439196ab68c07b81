package ledger

import (
	"context"
	"sort"
	"sync"
	"time"

	id "tally/pkg/domain"
	"tally/pkg/platform/sentinel"
)

// MemoryStore keeps the ledger in process memory. It mirrors the Postgres
// store's semantics exactly so the service can be unit-tested and run
// single-process without a database.
type MemoryStore struct {
	mu       sync.RWMutex
	byKey    map[id.IdempotencyKey]*PointsTransaction
	byUser   map[id.UserID][]*PointsTransaction
	balances map[id.UserID]*Balance
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byKey:    make(map[id.IdempotencyKey]*PointsTransaction),
		byUser:   make(map[id.UserID][]*PointsTransaction),
		balances: make(map[id.UserID]*Balance),
	}
}

func (s *MemoryStore) InsertTransaction(_ context.Context, tx *PointsTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byKey[tx.IdempotencyKey]; exists {
		return sentinel.ErrDuplicateKey
	}
	cp := *tx
	s.byKey[tx.IdempotencyKey] = &cp
	s.byUser[tx.UserID] = append(s.byUser[tx.UserID], &cp)
	return nil
}

func (s *MemoryStore) GetByIdempotencyKey(_ context.Context, key id.IdempotencyKey) (*PointsTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.byKey[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

func (s *MemoryStore) ApplyToBalance(_ context.Context, userID id.UserID, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal, ok := s.balances[userID]
	if !ok {
		bal = &Balance{UserID: userID}
		s.balances[userID] = bal
	}
	bal.TotalPoints += delta
	bal.UpdatedAt = time.Now()
	return bal.TotalPoints, nil
}

func (s *MemoryStore) GetBalance(_ context.Context, userID id.UserID) (*Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bal, ok := s.balances[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *bal
	return &cp, nil
}

func (s *MemoryStore) SumTransactions(_ context.Context, userID id.UserID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var sum int64
	for _, tx := range s.byUser[userID] {
		sum += tx.Points
	}
	return sum, nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID id.UserID, limit, offset int) ([]PointsTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	txs := s.byUser[userID]
	out := make([]PointsTransaction, 0, len(txs))
	for _, tx := range txs {
		out = append(out, *tx)
	}
	// Most-recent-first; creation order breaks timestamp ties.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// MemoryUnitOfWork serializes same-user units of work with the sharded user
// guard. The memory store cannot fail mid-sequence, so the balance update
// ordered last gives the same no-partial-state guarantee as a SQL rollback.
type MemoryUnitOfWork struct {
	store *MemoryStore
	guard userGuard
}

func NewMemoryUnitOfWork(store *MemoryStore) *MemoryUnitOfWork {
	return &MemoryUnitOfWork{store: store}
}

func (u *MemoryUnitOfWork) RunInTx(ctx context.Context, userID id.UserID, fn func(Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := u.guard.lock(userID.String())
	defer m.Unlock()
	return fn(u.store)
}
