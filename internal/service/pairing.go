package service

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/peerprep/matching-server-go/internal/audit"
	"github.com/peerprep/matching-server-go/internal/connection"
	"github.com/peerprep/matching-server-go/internal/hub"
	"github.com/peerprep/matching-server-go/internal/match"
	"github.com/peerprep/matching-server-go/internal/metrics"
	"github.com/peerprep/matching-server-go/internal/model"
	"github.com/peerprep/matching-server-go/internal/pool"
)

// PairingService consumes submitted requests: it scans the request's
// partition for a partner and turns a hit into a proposed match.
type PairingService struct {
	connections *connection.Registry
	pools       *pool.Manager
	matches     *match.Registry
	hub         *hub.Hub
	lifecycle   *Lifecycle
	metrics     *metrics.Metrics
}

func NewPairingService(
	connections *connection.Registry,
	pools *pool.Manager,
	matches *match.Registry,
	h *hub.Hub,
	lifecycle *Lifecycle,
	m *metrics.Metrics,
) *PairingService {
	s := &PairingService{
		connections: connections,
		pools:       pools,
		matches:     matches,
		hub:         h,
		lifecycle:   lifecycle,
		metrics:     m,
	}
	pools.OnPurge(s.purged)
	return s
}

// Process is the dispatch handler. Requests whose owner has since cancelled,
// disconnected or re-submitted are dropped before touching the pool.
func (s *PairingService) Process(ctx context.Context, req *model.PendingRequest) {
	if !s.connections.IsActiveRequest(req.User.ID, req.ID) {
		log.Debug().
			Str("requestId", req.ID).
			Str("userId", req.User.ID).
			Msg("dropping request no longer owned by its user")
		return
	}

	candidate, ok := s.pools.TryMatch(req.Key, req)
	if !ok {
		log.Debug().
			Str("requestId", req.ID).
			Str("userId", req.User.ID).
			Str("partition", req.Key.String()).
			Msg("request waiting for a partner")
		return
	}

	s.pair(ctx, candidate, req)
}

// pair turns two claimed requests into a match. first is the request that was
// waiting in the pool and becomes user1.
func (s *PairingService) pair(ctx context.Context, first, second *model.PendingRequest) {
	ch1, ok1 := s.connections.Channel(first.User.ID)
	ch2, ok2 := s.connections.Channel(second.User.ID)
	if !ok1 || !ok2 {
		log.Info().
			Str("user1Id", first.User.ID).
			Str("user2Id", second.User.ID).
			Msg("pairing abandoned, participant no longer connected")

		// One side vanished between the scan and now. The survivor scans the
		// partition again so requests queued behind the vanished one get a turn.
		for _, req := range []*model.PendingRequest{first, second} {
			if s.connections.IsActiveRequest(req.User.ID, req.ID) {
				s.Process(ctx, req)
			}
		}
		return
	}

	s.connections.ClearRequest(first.User.ID, first.ID)
	s.connections.ClearRequest(second.User.ID, second.ID)

	m, superseded := s.matches.Create(first.User, second.User, second.Key)
	for _, old := range superseded {
		s.supersede(old, m)
	}

	s.hub.Join(m.ID, ch1)
	s.hub.Join(m.ID, ch2)
	s.hub.Broadcast(m.ID, model.EventMatchFound, model.MatchFoundEvent{
		MatchID: m.ID,
		User1:   m.User1,
		User2:   m.User2,
	}, nil)

	s.metrics.MatchCreated()
	audit.Log(audit.Event{
		Type:      audit.EventMatchCreated,
		MatchID:   m.ID,
		Partition: m.Key.String(),
		Details: map[string]interface{}{
			"user1Id": m.User1.ID,
			"user2Id": m.User2.ID,
		},
	})

	log.Info().
		Str("matchId", m.ID).
		Str("user1Id", m.User1.ID).
		Str("user2Id", m.User2.ID).
		Str("partition", m.Key.String()).
		Msg("match found")
}

// supersede tears down old, which shared a user with the new match. Only the
// party left behind is told.
func (s *PairingService) supersede(old, current *model.Match) {
	for _, u := range []model.UserInfo{old.User1, old.User2} {
		if current.Involves(u.ID) {
			if ch, ok := s.connections.Channel(u.ID); ok {
				s.hub.Leave(old.ID, ch)
			}
			continue
		}
		if ch, ok := s.connections.Channel(u.ID); ok {
			emit(ch, model.EventMatchUnsuccessful)
			emit(ch, model.EventMatchEnded)
		}
	}
	s.lifecycle.Teardown(old, model.MatchOutcomeSuperseded, nil)

	log.Info().
		Str("matchId", old.ID).
		Str("supersededBy", current.ID).
		Msg("match superseded")
}

func (s *PairingService) purged(key model.PartitionKey, req *model.PendingRequest, reason string) {
	s.metrics.RequestPurged(reason)
}

func emit(ch hub.Channel, event string) {
	if err := ch.Emit(event, nil); err != nil {
		log.Warn().
			Err(err).
			Str("channelId", ch.ID()).
			Str("event", event).
			Msg("failed to emit event")
	}
}
