package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/peerprep/matching-server-go/internal/connection"
	"github.com/peerprep/matching-server-go/internal/dispatch"
	"github.com/peerprep/matching-server-go/internal/hub"
	"github.com/peerprep/matching-server-go/internal/hub/hubtest"
	"github.com/peerprep/matching-server-go/internal/match"
	"github.com/peerprep/matching-server-go/internal/metrics"
	"github.com/peerprep/matching-server-go/internal/model"
	"github.com/peerprep/matching-server-go/internal/pool"
)

type mockHistoryRepo struct {
	mock.Mock
}

func (m *mockHistoryRepo) Record(ctx context.Context, params model.RecordMatchParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *mockHistoryRepo) FindByMatchID(ctx context.Context, matchID string) (*model.MatchHistory, error) {
	args := m.Called(ctx, matchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.MatchHistory), args.Error(1)
}

func (m *mockHistoryRepo) FindByUserID(ctx context.Context, userID string, limit, offset int) ([]model.MatchHistory, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.MatchHistory), args.Error(1)
}

func (m *mockHistoryRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// outcomes returns the outcomes recorded for matchID, in call order.
func (m *mockHistoryRepo) outcomes(matchID string) []model.MatchOutcome {
	var out []model.MatchOutcome
	for _, call := range m.Calls {
		if call.Method != "Record" {
			continue
		}
		params := call.Arguments.Get(1).(model.RecordMatchParams)
		if params.MatchID == matchID {
			out = append(out, params.Outcome)
		}
	}
	return out
}

type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, *model.PendingRequest) error {
	return errors.New("broker unavailable")
}

func (failingQueue) Close() error { return nil }

type fixture struct {
	connections *connection.Registry
	pools       *pool.Manager
	matches     *match.Registry
	hub         *hub.Hub
	history     *mockHistoryRepo
	pairing     *PairingService
	session     *SessionService

	mu  sync.Mutex
	now time.Time
}

type fixtureOption func(*fixtureConfig)

type fixtureConfig struct {
	grace time.Duration
	queue func(dispatch.Handler) dispatch.Queue
}

func withGrace(d time.Duration) fixtureOption {
	return func(c *fixtureConfig) { c.grace = d }
}

func withQueue(q dispatch.Queue) fixtureOption {
	return func(c *fixtureConfig) {
		c.queue = func(dispatch.Handler) dispatch.Queue { return q }
	}
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	cfg := fixtureConfig{
		grace: time.Second,
		queue: func(h dispatch.Handler) dispatch.Queue { return dispatch.NewDirectQueue(h) },
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	f := &fixture{
		connections: connection.NewRegistry(cfg.grace),
		matches:     match.NewRegistry(),
		hub:         hub.New(),
		history:     &mockHistoryRepo{},
		now:         time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	f.history.On("Record", mock.Anything, mock.Anything).Return(nil)

	f.pools = pool.NewManager(f.connections)
	f.pools.SetClock(f.clock)

	m := metrics.New(prometheus.NewRegistry())
	lifecycle := NewLifecycle(f.hub, m, f.history)
	f.pairing = NewPairingService(f.connections, f.pools, f.matches, f.hub, lifecycle, m)

	queue := cfg.queue(f.pairing.Process)
	f.session = NewSessionService(f.connections, f.pools, f.matches, f.hub, queue, lifecycle, m, SessionConfig{
		DefaultTTL:     30 * time.Second,
		MaxTTL:         600 * time.Second,
		EnqueueTimeout: time.Second,
	})
	f.session.now = f.clock

	return f
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func request(userID string) model.MatchRequestPayload {
	return model.MatchRequestPayload{
		User:       model.UserInfo{ID: userID, Username: userID},
		Complexity: "Easy",
		Category:   "Arrays",
		Language:   "Python",
		Timeout:    30,
	}
}

// connect opens a recording channel for userID and announces it.
func (f *fixture) connect(userID string) *hubtest.RecordingChannel {
	ch := hubtest.NewRecordingChannel("ch-" + userID)
	f.session.Connect(ch, userID)
	return ch
}

func (f *fixture) submit(t *testing.T, ch hub.Channel, userID string) {
	t.Helper()
	require.NoError(t, f.session.Submit(context.Background(), ch, request(userID)))
}

// matchFound returns the match id carried by the single match_found event on ch.
func matchFound(t *testing.T, ch *hubtest.RecordingChannel) string {
	t.Helper()
	var found []model.MatchFoundEvent
	for _, e := range ch.Events() {
		if e.Event == model.EventMatchFound {
			found = append(found, e.Data.(model.MatchFoundEvent))
		}
	}
	require.Len(t, found, 1)
	return found[0].MatchID
}

// pairUp matches userA and userB and returns their channels and the match id.
func (f *fixture) pairUp(t *testing.T, userA, userB string) (*hubtest.RecordingChannel, *hubtest.RecordingChannel, string) {
	t.Helper()
	chA := f.connect(userA)
	chB := f.connect(userB)
	f.submit(t, chA, userA)
	f.submit(t, chB, userB)
	return chA, chB, matchFound(t, chA)
}
