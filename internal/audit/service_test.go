package audit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	id "tally/pkg/domain"
	dErrors "tally/pkg/domain-errors"
)

type TrailSuite struct {
	suite.Suite
	store *MemoryStore
	trail *Trail
	now   time.Time
}

func (s *TrailSuite) SetupTest() {
	s.store = NewMemoryStore()
	s.now = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.trail = NewTrail(s.store, WithClock(func() time.Time { return s.now }))
}

func TestTrailSuite(t *testing.T) {
	suite.Run(t, new(TrailSuite))
}

func (s *TrailSuite) appendAt(userID id.UserID, what string, occurred time.Time) id.EntryID {
	entryID, err := s.trail.Append(context.Background(), Entry{
		UserID:     userID,
		Who:        userID.String(),
		What:       what,
		How:        "api",
		OccurredAt: occurred,
	})
	s.Require().NoError(err)
	return entryID
}

func (s *TrailSuite) TestAppendDefaults() {
	entryID, err := s.trail.Append(context.Background(), Entry{What: "config_changed"})
	s.Require().NoError(err)
	s.NotEqual(id.EntryID{}, entryID)

	entries, err := s.trail.GetByAction(context.Background(), "config_changed")
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(ActorSystem, entries[0].Who, "system actions default the actor")
	s.Equal(s.now, entries[0].OccurredAt)
}

func (s *TrailSuite) TestAppendRejectsMissingAction() {
	_, err := s.trail.Append(context.Background(), Entry{Who: "admin-1"})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *TrailSuite) TestGetByUserPaginatesWithoutOverlap() {
	userID := id.UserID(uuid.New())
	base := s.now.Add(-24 * time.Hour)
	for i := 0; i < 1000; i++ {
		s.appendAt(userID, "record_viewed", base.Add(time.Duration(i)*time.Second))
	}

	page1, err := s.trail.GetByUser(context.Background(), userID, 10, 0)
	s.Require().NoError(err)
	page2, err := s.trail.GetByUser(context.Background(), userID, 10, 10)
	s.Require().NoError(err)

	s.Require().Len(page1, 10)
	s.Require().Len(page2, 10)

	seen := make(map[id.EntryID]bool)
	for _, e := range append(page1, page2...) {
		s.False(seen[e.ID], "pages must not overlap")
		seen[e.ID] = true
	}
	s.Len(seen, 20)

	// Most-recent-first within and across pages.
	all := append(page1, page2...)
	for i := 1; i < len(all); i++ {
		s.False(all[i].OccurredAt.After(all[i-1].OccurredAt))
	}
}

func (s *TrailSuite) TestGetByRequestIDAscending() {
	userID := id.UserID(uuid.New())
	times := []time.Time{
		s.now.Add(-3 * time.Minute),
		s.now.Add(-1 * time.Minute),
		s.now.Add(-2 * time.Minute),
	}
	for _, at := range times {
		_, err := s.trail.Append(context.Background(), Entry{
			UserID:     userID,
			Who:        userID.String(),
			What:       "document_uploaded",
			RequestID:  "req-42",
			OccurredAt: at,
		})
		s.Require().NoError(err)
	}

	entries, err := s.trail.GetByRequestID(context.Background(), "req-42")
	s.Require().NoError(err)
	s.Require().Len(entries, 3)
	for i := 1; i < len(entries); i++ {
		s.True(entries[i].OccurredAt.After(entries[i-1].OccurredAt),
			"request lifecycle reads oldest to newest")
	}
}

func (s *TrailSuite) TestSearchAndCount() {
	userA := id.UserID(uuid.New())
	userB := id.UserID(uuid.New())
	s.appendAt(userA, "points_awarded", s.now.Add(-time.Hour))
	s.appendAt(userA, "record_viewed", s.now.Add(-time.Hour))
	s.appendAt(userB, "points_awarded", s.now.Add(-time.Hour))

	entries, err := s.trail.Search(context.Background(), Filters{UserID: userA, What: "points_awarded"})
	s.Require().NoError(err)
	s.Len(entries, 1)

	n, err := s.trail.Count(context.Background(), Filters{What: "points_awarded"})
	s.Require().NoError(err)
	s.EqualValues(2, n)
}

func (s *TrailSuite) TestPurgeBoundaryExactness() {
	userID := id.UserID(uuid.New())
	cutoff := s.now.Add(-365 * 24 * time.Hour)

	older := s.appendAt(userID, "record_viewed", cutoff.Add(-time.Second))
	boundary := s.appendAt(userID, "record_viewed", cutoff)
	newer := s.appendAt(userID, "record_viewed", cutoff.Add(time.Second))

	deleted, err := s.trail.PurgeOlderThan(context.Background(), cutoff)
	s.Require().NoError(err)
	s.EqualValues(1, deleted)

	remaining, err := s.trail.GetByUser(context.Background(), userID, 10, 0)
	s.Require().NoError(err)
	s.Require().Len(remaining, 2)
	ids := map[id.EntryID]bool{remaining[0].ID: true, remaining[1].ID: true}
	s.True(ids[boundary], "boundary-inclusive entries are kept")
	s.True(ids[newer])
	s.False(ids[older])
}

func (s *TrailSuite) TestPurgeAuditsItselfExactlyOnce() {
	userID := id.UserID(uuid.New())
	cutoff := s.now.Add(-365 * 24 * time.Hour)
	s.appendAt(userID, "record_viewed", cutoff.Add(-time.Hour))
	s.appendAt(userID, "record_viewed", cutoff.Add(-2*time.Hour))

	deleted, err := s.trail.PurgeOlderThan(context.Background(), cutoff)
	s.Require().NoError(err)
	s.EqualValues(2, deleted)

	purgeEntries, err := s.trail.GetByAction(context.Background(), ActionPurge)
	s.Require().NoError(err)
	s.Require().Len(purgeEntries, 1, "exactly one purge record")
	s.Equal(ActorSystem, purgeEntries[0].Who)
	s.JSONEq(`{"deleted_count":2,"cutoff":"2025-08-01T12:00:00Z"}`, string(purgeEntries[0].Details))
}

func (s *TrailSuite) TestPurgeWithNothingEligibleWritesNoRecord() {
	userID := id.UserID(uuid.New())
	cutoff := s.now.Add(-365 * 24 * time.Hour)
	s.appendAt(userID, "record_viewed", s.now.Add(-time.Hour))

	deleted, err := s.trail.PurgeOlderThan(context.Background(), cutoff)
	s.Require().NoError(err)
	s.Zero(deleted)

	purgeEntries, err := s.trail.GetByAction(context.Background(), ActionPurge)
	s.Require().NoError(err)
	s.Empty(purgeEntries, "idempotent re-runs must not spam the trail")
}

func (s *TrailSuite) TestCountOlderThanMatchesPurge() {
	userID := id.UserID(uuid.New())
	cutoff := s.now.Add(-90 * 24 * time.Hour)
	s.appendAt(userID, "record_viewed", cutoff.Add(-time.Second))
	s.appendAt(userID, "record_viewed", cutoff)
	s.appendAt(userID, "record_viewed", cutoff.Add(time.Second))

	wouldDelete, err := s.trail.CountOlderThan(context.Background(), cutoff)
	s.Require().NoError(err)

	deleted, err := s.trail.PurgeOlderThan(context.Background(), cutoff)
	s.Require().NoError(err)
	s.Equal(wouldDelete, deleted, "dry-run count must match the real purge")
}

func (s *TrailSuite) TestHashLocationIsDeterministicAndOpaque() {
	a := HashLocation("10.1.2.3:/admin/users")
	b := HashLocation("10.1.2.3:/admin/users")

	s.Equal(a, b)
	s.Len(a, 64)
	s.NotContains(a, "10.1.2.3")
	s.NotEqual(a, HashLocation("10.1.2.4:/admin/users"))
	s.Empty(HashLocation(""))

	entryID, err := s.trail.Append(context.Background(), Entry{
		UserID:    id.UserID(uuid.New()),
		Who:       "admin@example",
		What:      "record_viewed",
		WhereHash: a,
	})
	s.Require().NoError(err)

	entries, err := s.trail.Search(context.Background(), Filters{What: "record_viewed"})
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(entryID, entries[0].ID)
	s.Equal(a, entries[0].WhereHash)
}
