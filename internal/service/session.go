package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/peerprep/matching-server-go/internal/audit"
	"github.com/peerprep/matching-server-go/internal/connection"
	"github.com/peerprep/matching-server-go/internal/dispatch"
	apperrors "github.com/peerprep/matching-server-go/internal/errors"
	"github.com/peerprep/matching-server-go/internal/hub"
	"github.com/peerprep/matching-server-go/internal/match"
	"github.com/peerprep/matching-server-go/internal/metrics"
	"github.com/peerprep/matching-server-go/internal/model"
	"github.com/peerprep/matching-server-go/internal/pool"
)

// Ack answers the event that triggered an operation. It may be nil.
type Ack func(data any)

type SessionConfig struct {
	DefaultTTL     time.Duration
	MaxTTL         time.Duration
	EnqueueTimeout time.Duration
}

// SessionService interprets inbound session events and drives the
// registries, the intake queue and outbound notifications.
type SessionService struct {
	connections *connection.Registry
	pools       *pool.Manager
	matches     *match.Registry
	hub         *hub.Hub
	queue       dispatch.Queue
	lifecycle   *Lifecycle
	metrics     *metrics.Metrics
	cfg         SessionConfig
	newID       func() string
	now         func() time.Time
}

func NewSessionService(
	connections *connection.Registry,
	pools *pool.Manager,
	matches *match.Registry,
	h *hub.Hub,
	queue dispatch.Queue,
	lifecycle *Lifecycle,
	m *metrics.Metrics,
	cfg SessionConfig,
) *SessionService {
	s := &SessionService{
		connections: connections,
		pools:       pools,
		matches:     matches,
		hub:         h,
		queue:       queue,
		lifecycle:   lifecycle,
		metrics:     m,
		cfg:         cfg,
		newID:       func() string { return uuid.NewString() },
		now:         time.Now,
	}
	connections.OnExpire(s.expired)
	return s
}

// Connect records ch as userID's live channel and puts it back into the
// user's match room, if any.
func (s *SessionService) Connect(ch hub.Channel, userID string) {
	reconnect := s.connections.MarkConnected(userID, ch)
	if m, ok := s.matches.FindByUser(userID); ok {
		s.hub.Join(m.ID, ch)
	}
	s.metrics.SetConnected(s.connections.Count())

	log.Info().
		Str("userId", userID).
		Str("channelId", ch.ID()).
		Bool("reconnect", reconnect).
		Msg("user connected")
}

// Disconnecting starts the grace window after a disconnect notice.
func (s *SessionService) Disconnecting(userID string) {
	if !s.connections.MarkDisconnecting(userID) {
		log.Debug().Str("userId", userID).Msg("disconnect notice for unknown user")
	}
}

// Submit validates payload, claims the user's session and enqueues the
// request. When the queue refuses it the claim is rolled back and ch closed.
func (s *SessionService) Submit(ctx context.Context, ch hub.Channel, payload model.MatchRequestPayload) error {
	return s.submit(ctx, ch, payload, "")
}

func (s *SessionService) submit(ctx context.Context, ch hub.Channel, payload model.MatchRequestPayload, rejectedPartnerID string) error {
	req, err := s.buildRequest(payload, rejectedPartnerID)
	if err != nil {
		s.metrics.RequestSubmitted(metrics.SubmitInvalid)
		return err
	}

	if err := s.connections.Claim(req.User.ID, ch, req.ID, req.Key); err != nil {
		s.metrics.RequestSubmitted(metrics.SubmitDuplicate)
		emit(ch, model.EventMatchRequestExists)
		log.Info().Str("userId", req.User.ID).Msg("duplicate match request refused")
		return err
	}
	s.metrics.SetConnected(s.connections.Count())

	enqueueCtx, cancel := context.WithTimeout(ctx, s.cfg.EnqueueTimeout)
	defer cancel()

	if err := s.queue.Enqueue(enqueueCtx, req); err != nil {
		s.connections.Release(req.User.ID, req.ID)
		s.metrics.RequestSubmitted(metrics.SubmitEnqueueFailed)
		emit(ch, model.EventMatchRequestError)
		if cerr := ch.Close(); cerr != nil {
			log.Debug().Err(cerr).Str("channelId", ch.ID()).Msg("close after enqueue failure")
		}
		log.Error().
			Err(err).
			Str("userId", req.User.ID).
			Str("requestId", req.ID).
			Msg("failed to enqueue match request")
		return apperrors.EnqueueFailed(err)
	}

	s.metrics.RequestSubmitted(metrics.SubmitQueued)
	audit.Log(audit.Event{
		Type:      audit.EventRequestQueued,
		UserID:    req.User.ID,
		Partition: req.Key.String(),
		Details: map[string]interface{}{
			"requestId":  req.ID,
			"ttlSeconds": req.TTLSeconds,
		},
	})
	return nil
}

// maxCriterionLen bounds each partition key component.
const maxCriterionLen = 64

func (s *SessionService) buildRequest(payload model.MatchRequestPayload, rejectedPartnerID string) (*model.PendingRequest, error) {
	user := payload.User
	user.ID = strings.TrimSpace(user.ID)
	if user.ID == "" {
		return nil, apperrors.MissingRequired("user.id")
	}

	key := payload.PartitionKey()
	switch {
	case key.Complexity == "":
		return nil, apperrors.MissingRequired("complexity")
	case key.Category == "":
		return nil, apperrors.MissingRequired("category")
	case key.Language == "":
		return nil, apperrors.MissingRequired("language")
	case len(key.Complexity) > maxCriterionLen:
		return nil, apperrors.InvalidInput("complexity", "too long")
	case len(key.Category) > maxCriterionLen:
		return nil, apperrors.InvalidInput("category", "too long")
	case len(key.Language) > maxCriterionLen:
		return nil, apperrors.InvalidInput("language", "too long")
	}

	ttl := time.Duration(payload.Timeout) * time.Second
	if ttl <= 0 {
		ttl = s.cfg.DefaultTTL
	}
	if s.cfg.MaxTTL > 0 && ttl > s.cfg.MaxTTL {
		ttl = s.cfg.MaxTTL
	}

	return &model.PendingRequest{
		ID:                s.newID(),
		User:              user,
		Key:               key,
		SubmittedAt:       s.now(),
		TTLSeconds:        int(ttl / time.Second),
		RejectedPartnerID: rejectedPartnerID,
	}, nil
}

// Cancel removes userID's session ownership record and its pending request.
func (s *SessionService) Cancel(ch hub.Channel, userID string) bool {
	requestID, key, ok := s.connections.Cancel(userID, ch)
	if !ok {
		return false
	}
	if requestID != "" {
		s.pools.Remove(key, userID, requestID)
	}
	s.metrics.SetConnected(s.connections.Count())

	audit.Log(audit.Event{
		Type:      audit.EventRequestCancelled,
		UserID:    userID,
		Partition: key.String(),
	})
	return true
}

// Accept registers userID's acceptance of matchID. ack, when given, is
// answered with the mutual flag before the success broadcast goes out.
func (s *SessionService) Accept(userID, matchID string, ack Ack) bool {
	mutual, ok := s.matches.Accept(matchID, userID)
	if ack != nil {
		ack(ok && mutual)
	}
	if !ok {
		log.Debug().Str("matchId", matchID).Str("userId", userID).Msg("accept for unknown match")
		return false
	}
	if !mutual {
		return false
	}

	s.hub.Broadcast(matchID, model.EventMatchSuccessful, nil, nil)
	if m, found := s.matches.Get(matchID); found {
		s.lifecycle.Resolved(m, model.MatchOutcomeSuccessful)
	}
	log.Info().Str("matchId", matchID).Msg("match accepted by both users")
	return true
}

// Decline removes matchID. The partner is told unless the decline comes from
// an accept-window timeout; the declining channel is never notified.
func (s *SessionService) Decline(ch hub.Channel, userID, matchID string, isTimeout bool) bool {
	if existing, ok := s.matches.Get(matchID); !ok || (userID != "" && !existing.Involves(userID)) {
		return false
	}

	m, ok := s.matches.Decline(matchID)
	if !ok {
		return false
	}

	var events []string
	if !isTimeout {
		events = append(events, model.EventMatchUnsuccessful)
	}
	s.lifecycle.Teardown(m, model.MatchOutcomeDeclined, ch, events...)

	log.Info().
		Str("matchId", matchID).
		Str("userId", userID).
		Bool("timeout", isTimeout).
		Msg("match declined")
	return true
}

// Rematch declines the current match and re-submits for userID with the old
// partner excluded.
func (s *SessionService) Rematch(ctx context.Context, ch hub.Channel, userID string, payload model.RematchPayload) error {
	s.Decline(ch, userID, payload.MatchID, false)

	req := payload.Request
	if req.User.ID == "" {
		req.User.ID = userID
	}
	return s.submit(ctx, ch, req, payload.PartnerID)
}

// End finishes an underway session for userID and drops their state.
func (s *SessionService) End(ch hub.Channel, userID, matchID string) bool {
	if existing, ok := s.matches.Get(matchID); !ok || (userID != "" && !existing.Involves(userID)) {
		return false
	}

	m, ok := s.matches.End(matchID)
	if !ok {
		return false
	}
	s.lifecycle.Teardown(m, model.MatchOutcomeEnded, ch, model.EventMatchEnded)

	if userID != "" {
		s.connections.Remove(userID)
		s.metrics.SetConnected(s.connections.Count())
	}

	log.Info().Str("matchId", matchID).Str("userId", userID).Msg("match ended")
	return true
}

// Status returns userID's current match, or nil.
func (s *SessionService) Status(userID string) *model.MatchStatus {
	m, ok := s.matches.FindByUser(userID)
	if !ok {
		return nil
	}
	partner, _ := m.Partner(userID)
	return &model.MatchStatus{
		MatchID: m.ID,
		Partner: partner,
		State:   m.State,
	}
}

// TransportClosed handles the raw close of ch. An unannounced drop of the
// user's live channel tears the match down at once; drops inside a grace
// window are left to the timer.
func (s *SessionService) TransportClosed(ch hub.Channel, userID string) {
	if userID != "" && s.connections.DropChannel(userID, ch) {
		log.Info().Str("userId", userID).Msg("abrupt disconnect")
		s.teardownUser(userID, ch)
	}
	s.hub.LeaveAll(ch)
	s.metrics.SetConnected(s.connections.Count())
}

func (s *SessionService) expired(userID string, ch hub.Channel) {
	s.teardownUser(userID, ch)
	if ch != nil {
		s.hub.LeaveAll(ch)
		if err := ch.Close(); err != nil {
			log.Debug().Err(err).Str("userId", userID).Msg("close after grace window")
		}
	}
	s.metrics.SetConnected(s.connections.Count())
}

// teardownUser ends userID's match, telling the partner on both screens.
func (s *SessionService) teardownUser(userID string, ch hub.Channel) {
	m, ok := s.matches.RemoveByUser(userID)
	if !ok {
		return
	}
	s.lifecycle.Teardown(m, model.MatchOutcomeDisconnected, ch,
		model.EventMatchUnsuccessful,
		model.EventMatchEnded,
	)

	log.Info().
		Str("matchId", m.ID).
		Str("userId", userID).
		Msg("match torn down after disconnect")
}
