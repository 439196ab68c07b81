package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"tally/internal/events"
	"tally/internal/events/mocks"
	id "tally/pkg/domain"
)

type recordingSubscriber struct {
	name string
	mu   sync.Mutex
	got  []events.Event
	fail bool
}

func (s *recordingSubscriber) Name() string { return s.name }

func (s *recordingSubscriber) Handle(_ context.Context, event events.Event) error {
	s.mu.Lock()
	s.got = append(s.got, event)
	s.mu.Unlock()
	if s.fail {
		return errors.New("subscriber boom")
	}
	return nil
}

func (s *recordingSubscriber) events() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Event{}, s.got...)
}

func earned(points int64) events.PointsEarned {
	return events.PointsEarned{
		TransactionID: id.NewTransactionID(),
		UserID:        id.UserID(uuid.New()),
		Action:        id.ActionDocumentUploaded,
		Points:        points,
		TotalPoints:   points,
		OccurredAt:    time.Now(),
	}
}

func runBus(t *testing.T, bus *events.Bus) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = bus.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestBusDeliversInRegistrationOrder(t *testing.T) {
	bus := events.NewBus()

	var order []string
	var mu sync.Mutex
	mk := func(name string) events.Subscriber {
		return subscriberFunc{name: name, fn: func(context.Context, events.Event) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}}
	}
	bus.Subscribe(events.KindPointsEarned, mk("analytics"))
	bus.Subscribe(events.KindPointsEarned, mk("audit"))
	bus.Subscribe(events.KindPointsEarned, mk("kafka"))

	runBus(t, bus)
	bus.Publish(earned(10))
	bus.Drain()

	assert.Equal(t, []string{"analytics", "audit", "kafka"}, order)
}

func TestBusIsolatesFailingSubscriber(t *testing.T) {
	bus := events.NewBus()

	failing := &recordingSubscriber{name: "failing", fail: true}
	healthy := &recordingSubscriber{name: "healthy"}
	bus.Subscribe(events.KindPointsEarned, failing)
	bus.Subscribe(events.KindPointsEarned, healthy)

	runBus(t, bus)
	bus.Publish(earned(5))
	bus.Drain()

	require.Len(t, failing.events(), 1)
	require.Len(t, healthy.events(), 1, "failure upstream must not block delivery")
}

func TestBusIsolatesPanickingSubscriber(t *testing.T) {
	bus := events.NewBus()

	bus.Subscribe(events.KindPointsEarned, subscriberFunc{
		name: "panicky",
		fn:   func(context.Context, events.Event) error { panic("kaboom") },
	})
	healthy := &recordingSubscriber{name: "healthy"}
	bus.Subscribe(events.KindPointsEarned, healthy)

	runBus(t, bus)
	bus.Publish(earned(5))
	bus.Drain()

	require.Len(t, healthy.events(), 1)
}

func TestBusRoutesByKind(t *testing.T) {
	bus := events.NewBus()

	earnedSub := &recordingSubscriber{name: "earned"}
	levelSub := &recordingSubscriber{name: "level"}
	bus.Subscribe(events.KindPointsEarned, earnedSub)
	bus.Subscribe(events.KindLevelUp, levelSub)

	runBus(t, bus)
	bus.Publish(earned(10))
	bus.Publish(events.LevelUp{UserID: id.UserID(uuid.New()), Level: 2, TotalPoints: 150, OccurredAt: time.Now()})
	bus.Drain()

	assert.Len(t, earnedSub.events(), 1)
	assert.Len(t, levelSub.events(), 1)
}

func TestBusSubscriberContract(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sub := mocks.NewMockSubscriber(ctrl)
	event := earned(25)
	sub.EXPECT().Handle(gomock.Any(), event).Return(nil)

	bus := events.NewBus()
	bus.Subscribe(events.KindPointsEarned, sub)

	runBus(t, bus)
	bus.Publish(event)
	bus.Drain()
}

type subscriberFunc struct {
	name string
	fn   func(context.Context, events.Event) error
}

func (s subscriberFunc) Name() string                                    { return s.name }
func (s subscriberFunc) Handle(ctx context.Context, e events.Event) error { return s.fn(ctx, e) }

// Event payloads travel to external sinks as JSON; the typed IDs must render
// as canonical UUID strings for downstream consumers.
func TestEventJSONCarriesCanonicalIDs(t *testing.T) {
	earned := events.PointsEarned{
		TransactionID: id.NewTransactionID(),
		UserID:        id.NewUserID(),
		Action:        id.ActionDocumentUploaded,
		Points:        15,
		TotalPoints:   40,
		OccurredAt:    time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}

	payload, err := json.Marshal(earned)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"`+earned.UserID.String()+`"`)
	assert.Contains(t, string(payload), `"`+earned.TransactionID.String()+`"`)
	assert.NotContains(t, string(payload), `[`, "IDs must not serialize as byte arrays")

	var decoded events.PointsEarned
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, earned, decoded)
}
