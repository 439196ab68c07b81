//go:build integration

package postgres

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"golang.org/x/sync/errgroup"

	"tally/internal/ledger"
	id "tally/pkg/domain"
	"tally/pkg/platform/sentinel"
	"tally/pkg/testutil/containers"
)

type PostgresLedgerSuite struct {
	suite.Suite

	pg    *containers.PostgresContainer
	store *Store
	uow   *UnitOfWork
	svc   *ledger.Service
}

func TestPostgresLedgerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	suite.Run(t, new(PostgresLedgerSuite))
}

func (s *PostgresLedgerSuite) SetupSuite() {
	s.pg = containers.NewPostgresContainer(s.T())
	s.store = New(s.pg.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
	s.uow = NewUnitOfWork(s.pg.DB, s.store)
	s.svc = ledger.NewService(s.uow, s.store)
}

func (s *PostgresLedgerSuite) SetupTest() {
	s.Require().NoError(s.pg.TruncateAll(context.Background(),
		"points_transactions", "point_balances"))
}

func (s *PostgresLedgerSuite) award(userID id.UserID, key string, points int64) (ledger.AwardResult, error) {
	return s.svc.AwardPoints(context.Background(), ledger.AwardRequest{
		UserID:         userID,
		Action:         id.ActionDocumentUploaded,
		Points:         points,
		IdempotencyKey: id.IdempotencyKey(key),
		Source:         "integration-test",
	})
}

func (s *PostgresLedgerSuite) TestUniqueConstraintMapsToSentinel() {
	userID := id.NewUserID()
	tx := &ledger.PointsTransaction{
		ID:             id.NewTransactionID(),
		UserID:         userID,
		Action:         id.ActionDocumentUploaded,
		Points:         10,
		IdempotencyKey: "dup-key",
	}
	s.Require().NoError(s.store.InsertTransaction(context.Background(), tx))

	again := *tx
	again.ID = id.NewTransactionID()
	err := s.store.InsertTransaction(context.Background(), &again)
	s.Require().ErrorIs(err, sentinel.ErrDuplicateKey)
}

func (s *PostgresLedgerSuite) TestConcurrentSameKeyCreditsOnce() {
	userID := id.NewUserID()
	const callers = 16

	var wg sync.WaitGroup
	results := make([]ledger.AwardResult, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.award(userID, "race-key", 25)
		}(i)
	}
	wg.Wait()

	applied := 0
	for i := 0; i < callers; i++ {
		s.Require().NoError(errs[i])
		if results[i].Status == ledger.StatusApplied {
			applied++
		}
		s.EqualValues(25, results[i].TotalPoints)
	}
	s.Equal(1, applied)

	bal, err := s.svc.Balance(context.Background(), userID)
	s.Require().NoError(err)
	s.EqualValues(25, bal.TotalPoints)

	var rows int
	s.Require().NoError(s.pg.DB.QueryRow(
		"SELECT COUNT(*) FROM points_transactions").Scan(&rows))
	s.Equal(1, rows)
}

func (s *PostgresLedgerSuite) TestConcurrentDistinctKeysLoseNoUpdates() {
	userID := id.NewUserID()
	const awards = 40

	var g errgroup.Group
	for i := 0; i < awards; i++ {
		key := fmt.Sprintf("key-%03d", i)
		g.Go(func() error {
			_, err := s.award(userID, key, 5)
			return err
		})
	}
	s.Require().NoError(g.Wait())

	bal, err := s.svc.Balance(context.Background(), userID)
	s.Require().NoError(err)
	s.EqualValues(awards*5, bal.TotalPoints)

	drift, err := s.svc.ReconcileBalance(context.Background(), userID)
	s.Require().NoError(err)
	s.Zero(drift)
}

func (s *PostgresLedgerSuite) TestHistoryPagination() {
	userID := id.NewUserID()
	for i := 0; i < 7; i++ {
		_, err := s.award(userID, fmt.Sprintf("hist-%d", i), 10)
		s.Require().NoError(err)
	}

	first, err := s.svc.History(context.Background(), userID, 4, 0)
	s.Require().NoError(err)
	second, err := s.svc.History(context.Background(), userID, 4, 4)
	s.Require().NoError(err)

	s.Len(first, 4)
	s.Len(second, 3)
	seen := map[id.TransactionID]bool{}
	for _, tx := range append(first, second...) {
		require.False(s.T(), seen[tx.ID], "transaction repeated across pages")
		seen[tx.ID] = true
	}
}
