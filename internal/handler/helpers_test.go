package handler

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/peerprep/matching-server-go/internal/connection"
	"github.com/peerprep/matching-server-go/internal/dispatch"
	"github.com/peerprep/matching-server-go/internal/hub"
	"github.com/peerprep/matching-server-go/internal/match"
	"github.com/peerprep/matching-server-go/internal/metrics"
	"github.com/peerprep/matching-server-go/internal/pool"
	"github.com/peerprep/matching-server-go/internal/service"
)

type testDeps struct {
	connections *connection.Registry
	pools       *pool.Manager
	matches     *match.Registry
	sessions    *service.SessionService
}

func newTestDeps(t *testing.T) *testDeps {
	t.Helper()

	connections := connection.NewRegistry(time.Second)
	pools := pool.NewManager(connections)
	matches := match.NewRegistry()
	h := hub.New()
	m := metrics.New(prometheus.NewRegistry())
	lifecycle := service.NewLifecycle(h, m, nil)

	pairing := service.NewPairingService(connections, pools, matches, h, lifecycle, m)
	queue := dispatch.NewDirectQueue(pairing.Process)
	sessions := service.NewSessionService(connections, pools, matches, h, queue, lifecycle, m, service.SessionConfig{
		DefaultTTL:     30 * time.Second,
		MaxTTL:         10 * time.Minute,
		EnqueueTimeout: time.Second,
	})

	return &testDeps{
		connections: connections,
		pools:       pools,
		matches:     matches,
		sessions:    sessions,
	}
}
