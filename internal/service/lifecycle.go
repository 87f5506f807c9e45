package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/peerprep/matching-server-go/internal/audit"
	"github.com/peerprep/matching-server-go/internal/config"
	"github.com/peerprep/matching-server-go/internal/hub"
	"github.com/peerprep/matching-server-go/internal/metrics"
	"github.com/peerprep/matching-server-go/internal/model"
	"github.com/peerprep/matching-server-go/internal/repository"
)

// Lifecycle notifies and records match resolutions. It is shared by the
// pairing path and the session controller.
type Lifecycle struct {
	hub     *hub.Hub
	metrics *metrics.Metrics
	history repository.MatchHistoryRepository
	now     func() time.Time
}

// NewLifecycle builds a Lifecycle. history may be nil when no database is
// configured.
func NewLifecycle(h *hub.Hub, m *metrics.Metrics, history repository.MatchHistoryRepository) *Lifecycle {
	return &Lifecycle{
		hub:     h,
		metrics: m,
		history: history,
		now:     time.Now,
	}
}

// Teardown emits events to the match room, skipping except, then drops the
// room and records the outcome.
func (l *Lifecycle) Teardown(m *model.Match, outcome model.MatchOutcome, except hub.Channel, events ...string) {
	for _, event := range events {
		l.hub.Broadcast(m.ID, event, nil, except)
	}
	l.hub.CloseRoom(m.ID)
	l.Resolved(m, outcome)
}

// Resolved records a final or intermediate outcome for m.
func (l *Lifecycle) Resolved(m *model.Match, outcome model.MatchOutcome) {
	l.metrics.MatchResolved(outcome)

	audit.Log(audit.Event{
		Type:      auditType(outcome),
		MatchID:   m.ID,
		Partition: m.Key.String(),
		Details: map[string]interface{}{
			"user1Id": m.User1.ID,
			"user2Id": m.User2.ID,
		},
	})

	if l.history == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.HistoryWriteTimeout)
	defer cancel()

	err := l.history.Record(ctx, model.RecordMatchParams{
		MatchID:    m.ID,
		User1ID:    m.User1.ID,
		User2ID:    m.User2.ID,
		Partition:  m.Key.String(),
		Outcome:    outcome,
		CreatedAt:  m.CreatedAt,
		ResolvedAt: l.now(),
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("matchId", m.ID).
			Str("outcome", string(outcome)).
			Msg("failed to record match history")
	}
}

func auditType(outcome model.MatchOutcome) audit.EventType {
	switch outcome {
	case model.MatchOutcomeSuccessful:
		return audit.EventMatchSuccessful
	case model.MatchOutcomeEnded:
		return audit.EventMatchEnded
	case model.MatchOutcomeSuperseded:
		return audit.EventMatchSuperseded
	case model.MatchOutcomeDisconnected:
		return audit.EventUserDisconnected
	default:
		return audit.EventMatchDeclined
	}
}
