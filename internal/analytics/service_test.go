package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"tally/internal/platform/config"
	dErrors "tally/pkg/domain-errors"
)

// capturingHandler records every log line so tests can assert on breadcrumb
// count and content.
type capturingHandler struct {
	mu    sync.Mutex
	lines []string
}

func (h *capturingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *capturingHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Level.String() + " " + r.Message)
	r.Attrs(func(a slog.Attr) bool {
		sb.WriteString(fmt.Sprintf(" %s=%v", a.Key, a.Value.Any()))
		return true
	})
	h.mu.Lock()
	h.lines = append(h.lines, sb.String())
	h.mu.Unlock()
	return nil
}

func (h *capturingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *capturingHandler) WithGroup(string) slog.Handler      { return h }

func (h *capturingHandler) warnings() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, l := range h.lines {
		if strings.HasPrefix(l, "WARN") {
			out = append(out, l)
		}
	}
	return out
}

type ServiceSuite struct {
	suite.Suite

	store *MemoryStore
	logs  *capturingHandler
	now   time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.store = NewMemoryStore()
	s.logs = &capturingHandler{}
	s.now = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
}

func (s *ServiceSuite) newService(policy config.PIIPolicy) *Service {
	return NewService(s.store, NewHasher("test-secret"), policy,
		WithLogger(slog.New(s.logs)),
		WithEnvironment("test"),
		WithClock(func() time.Time { return s.now }),
	)
}

func (s *ServiceSuite) TestHashIsDeterministicAndOpaque() {
	h := NewHasher("test-secret")
	a := h.HashUserID("user-42")
	b := h.HashUserID("user-42")

	s.Equal(a, b)
	s.Len(a, 64)
	s.NotContains(a, "user-42")
	s.NotEqual(a, h.HashUserID("user-43"))
	s.Empty(h.HashUserID(""))
}

func (s *ServiceSuite) TestTrackPersistsHashedIdentityOnly() {
	svc := s.newService(config.PolicyStrict)

	eventID, err := svc.Track(context.Background(), EventUserRegistered,
		map[string]any{"channel": "referral"}, nil, "user-42", "sess-1")

	s.Require().NoError(err)
	s.Require().NotNil(eventID)

	stored, err := s.store.ListByUserHash(context.Background(),
		NewHasher("test-secret").HashUserID("user-42"), 10)
	s.Require().NoError(err)
	s.Require().Len(stored, 1)
	s.Equal(*eventID, stored[0].ID)
	s.Equal(CategoryLifecycle, stored[0].Category)
	s.Equal("test", stored[0].Environment)
	s.Equal("sess-1", stored[0].SessionID)
	s.NotContains(stored[0].UserIDHash, "user-42")
	s.JSONEq(`{"channel":"referral"}`, string(stored[0].Metadata))
}

func (s *ServiceSuite) TestStrictPolicyRejectsPII() {
	svc := s.newService(config.PolicyStrict)

	cases := []struct {
		name     string
		metadata map[string]any
		detector string
	}{
		{"email", map[string]any{"channel": "jane.doe@example.com"}, "email"},
		{"national id", map[string]any{"channel": "12345678901"}, "national_id"},
		{"phone", map[string]any{"channel": "+31 6 1234 5678"}, "phone"},
		{"nested value", map[string]any{"channel": "web", "extra": map[string]any{"note": "mail me at a@b.io"}}, "email"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			eventID, err := svc.Track(context.Background(), EventUserRegistered,
				tc.metadata, nil, "user-42", "")

			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodePolicyViolation))
			s.Contains(err.Error(), tc.detector)
			s.Nil(eventID)
		})
	}
	s.Zero(s.store.Len())
}

func (s *ServiceSuite) TestPermissivePolicyDropsWithSingleBreadcrumb() {
	svc := s.newService(config.PolicyPermissive)

	eventID, err := svc.Track(context.Background(), EventUserRegistered,
		map[string]any{"channel": "jane.doe@example.com"}, nil, "user-42", "")

	s.Require().NoError(err)
	s.Nil(eventID)
	s.Zero(s.store.Len())

	warnings := s.logs.warnings()
	s.Require().Len(warnings, 1)
	s.Contains(warnings[0], EventUserRegistered)
	s.Contains(warnings[0], "email")
	s.NotContains(warnings[0], "jane.doe@example.com")
}

func (s *ServiceSuite) TestPermissiveDropIsDeterministic() {
	svc := s.newService(config.PolicyPermissive)

	for i := 0; i < 3; i++ {
		eventID, err := svc.Track(context.Background(), EventUserRegistered,
			map[string]any{"channel": "jane.doe@example.com"}, nil, "user-42", "")
		s.Require().NoError(err)
		s.Nil(eventID)
	}
	s.Zero(s.store.Len())
	s.Len(s.logs.warnings(), 3)
}

func (s *ServiceSuite) TestContextPayloadIsScannedToo() {
	svc := s.newService(config.PolicyStrict)

	_, err := svc.Track(context.Background(), EventUserRegistered,
		map[string]any{"channel": "web"},
		map[string]any{"referrer": "call 06 1234 5678 90"},
		"user-42", "")

	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodePolicyViolation))
}

func (s *ServiceSuite) TestSchemaRejectsMissingRequiredFields() {
	svc := s.newService(config.PolicyStrict)

	eventID, err := svc.Track(context.Background(), EventPointsAwarded,
		map[string]any{"action": "document_uploaded"}, nil, "user-42", "")

	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	s.Contains(err.Error(), "points")
	s.Nil(eventID)
	s.Zero(s.store.Len())
}

func (s *ServiceSuite) TestUnknownEventNamePassesWithWarning() {
	svc := s.newService(config.PolicyStrict)

	eventID, err := svc.Track(context.Background(), "beta_feature_toggled",
		map[string]any{"feature": "dark_mode"}, nil, "user-42", "")

	s.Require().NoError(err)
	s.Require().NotNil(eventID)

	warnings := s.logs.warnings()
	s.Require().Len(warnings, 1)
	s.Contains(warnings[0], "beta_feature_toggled")

	stored, err := s.store.ListByUserHash(context.Background(),
		NewHasher("test-secret").HashUserID("user-42"), 10)
	s.Require().NoError(err)
	s.Require().Len(stored, 1)
	s.Equal(CategoryUnknown, stored[0].Category)
}

func (s *ServiceSuite) TestEmptyEventNameRejected() {
	svc := s.newService(config.PolicyStrict)

	_, err := svc.Track(context.Background(), "", nil, nil, "user-42", "")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ServiceSuite) TestPruneRemovesStrictlyOlder() {
	svc := s.newService(config.PolicyStrict)
	cutoff := s.now

	for i, offset := range []time.Duration{-48 * time.Hour, -time.Second, 0, time.Second} {
		s.now = cutoff.Add(offset)
		_, err := svc.Track(context.Background(), EventLevelUp,
			map[string]any{"level": i + 2}, nil, "user-42", "")
		s.Require().NoError(err)
	}

	count, err := svc.CountOlderThan(context.Background(), cutoff)
	s.Require().NoError(err)
	s.EqualValues(2, count)

	deleted, err := svc.PruneOlderThan(context.Background(), cutoff)
	s.Require().NoError(err)
	s.EqualValues(2, deleted)
	s.Equal(2, s.store.Len())
}

func (s *ServiceSuite) TestCohortEventsByRawID() {
	svc := s.newService(config.PolicyStrict)

	for i := 0; i < 3; i++ {
		s.now = s.now.Add(time.Minute)
		_, err := svc.Track(context.Background(), EventQuestionnaireSubmitted,
			map[string]any{"questionnaire_id": "risk-profile"}, nil, "user-42", "")
		s.Require().NoError(err)
	}
	_, err := svc.Track(context.Background(), EventQuestionnaireSubmitted,
		map[string]any{"questionnaire_id": "risk-profile"}, nil, "user-43", "")
	s.Require().NoError(err)

	cohort, err := svc.CohortEvents(context.Background(), "user-42", 10)
	s.Require().NoError(err)
	s.Len(cohort, 3)
	s.True(cohort[0].OccurredAt.After(cohort[1].OccurredAt))

	_, err = svc.CohortEvents(context.Background(), "", 10)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestDetectorSetOrdering(t *testing.T) {
	set := DefaultDetectors()

	// An 11-digit sequence is valid input for both the national ID and the
	// phone detector; set order must attribute it to the more specific one.
	match := set.Scan(map[string]any{"note": "id 12345678901 on file"})
	require.NotNil(t, match)
	require.Equal(t, "national_id", match.Detector)
	require.Equal(t, "note", match.Field)
}

func TestDetectorSetCleanPayload(t *testing.T) {
	set := DefaultDetectors()

	match := set.Scan(map[string]any{
		"channel": "organic_search",
		"count":   12345,
		"tags":    []any{"onboarding", "kyc"},
	})
	require.Nil(t, match)
}

func TestDetectorSetFullName(t *testing.T) {
	set := DefaultDetectors()

	require.NotNil(t, set.Scan(map[string]any{"submitted_by": "Jane Doe"}))
	require.Nil(t, set.Scan(map[string]any{"submitted_by": "jane doe account"}))
}

func TestSchemaValidateNilValueCountsAsMissing(t *testing.T) {
	schema, ok := NewRegistry().Lookup(EventLevelUp)
	require.True(t, ok)

	err := schema.Validate(map[string]any{"level": nil})
	require.Error(t, err)
	require.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestMetadataRoundTripsThroughStore(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store, NewHasher("k"), config.PolicyStrict,
		WithLogger(slog.New(&capturingHandler{})))

	_, err := svc.Track(context.Background(), EventDocumentUploaded,
		map[string]any{"document_type": "passport_scan", "pages": 2}, nil, "u1", "")
	require.NoError(t, err)

	events, err := store.ListByUserHash(context.Background(), NewHasher("k").HashUserID("u1"), 1)
	require.NoError(t, err)
	require.Len(t, events, 1)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(events[0].Metadata, &decoded))
	require.Equal(t, "passport_scan", decoded["document_type"])
}
