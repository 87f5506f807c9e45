// Package connection tracks which users hold a live channel, the grace timer
// that follows an announced disconnect, and each user's active match request.
package connection

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	apperrors "github.com/peerprep/matching-server-go/internal/errors"
	"github.com/peerprep/matching-server-go/internal/hub"
	"github.com/peerprep/matching-server-go/internal/model"
)

const DefaultGrace = 3 * time.Second

// ExpireFunc is invoked, outside the registry lock, when a grace window
// elapses without a reconnect. ch is the channel the user last held.
type ExpireFunc func(userID string, ch hub.Channel)

type state struct {
	channel       hub.Channel
	disconnecting bool
	timer         *time.Timer
	timerSeq      uint64
	requestID     string
	key           model.PartitionKey
}

type Registry struct {
	states   map[string]*state
	grace    time.Duration
	onExpire ExpireFunc
	seq      uint64
	mu       sync.Mutex
}

func NewRegistry(grace time.Duration) *Registry {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Registry{
		states: make(map[string]*state),
		grace:  grace,
	}
}

// OnExpire registers the teardown hook fired when a grace window elapses.
func (r *Registry) OnExpire(fn ExpireFunc) {
	r.mu.Lock()
	r.onExpire = fn
	r.mu.Unlock()
}

// MarkConnected records ch as the user's live channel, cancelling any pending
// grace timer. The active request id survives a reconnect. It reports whether
// the user already had state, i.e. this is a reconnect.
func (r *Registry) MarkConnected(userID string, ch hub.Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, existed := r.states[userID]
	if !existed {
		st = &state{}
		r.states[userID] = st
	}
	r.stopTimer(st)
	st.channel = ch
	st.disconnecting = false

	log.Debug().
		Str("userId", userID).
		Bool("reconnect", existed).
		Msg("user marked connected")

	return existed
}

// MarkDisconnecting starts the grace timer for a user who announced a
// disconnect. Unknown users are ignored. A timer already running is kept.
func (r *Registry) MarkDisconnecting(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.states[userID]
	if !ok {
		return false
	}
	st.disconnecting = true
	if st.timer != nil {
		return true
	}

	r.seq++
	seq := r.seq
	st.timerSeq = seq
	st.timer = time.AfterFunc(r.grace, func() { r.expire(userID, seq) })

	log.Debug().
		Str("userId", userID).
		Dur("grace", r.grace).
		Msg("user disconnecting, grace timer started")

	return true
}

// expire fires from the grace timer. The sequence check makes a timer that
// was stopped too late a no-op.
func (r *Registry) expire(userID string, seq uint64) {
	r.mu.Lock()
	st, ok := r.states[userID]
	if !ok || st.timer == nil || st.timerSeq != seq {
		r.mu.Unlock()
		return
	}
	delete(r.states, userID)
	ch := st.channel
	fn := r.onExpire
	r.mu.Unlock()

	log.Info().Str("userId", userID).Msg("grace window elapsed, disconnect is final")

	if fn != nil {
		fn(userID, ch)
	}
}

func (r *Registry) stopTimer(st *state) {
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
		st.timerSeq = 0
	}
}

// Claim makes requestID the user's active request on ch. It fails with
// REQUEST_EXISTS when another channel holds a live, non-disconnecting session
// for the same user. Re-submitting from the same channel supersedes the
// previous request.
func (r *Registry) Claim(userID string, ch hub.Channel, requestID string, key model.PartitionKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.states[userID]
	if ok && !st.disconnecting && st.channel != nil && ch != nil && st.channel.ID() != ch.ID() {
		return apperrors.RequestExists()
	}
	if !ok {
		st = &state{}
		r.states[userID] = st
	}
	r.stopTimer(st)
	st.channel = ch
	st.disconnecting = false
	st.requestID = requestID
	st.key = key
	return nil
}

// Release undoes a Claim after a failed enqueue. It only removes the state
// if requestID is still the user's active request.
func (r *Registry) Release(userID, requestID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.states[userID]
	if !ok || st.requestID != requestID {
		return false
	}
	r.stopTimer(st)
	delete(r.states, userID)
	return true
}

// ClearRequest drops the active request id once it has been matched.
func (r *Registry) ClearRequest(userID, requestID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.states[userID]
	if !ok || st.requestID != requestID {
		return false
	}
	st.requestID = ""
	st.key = model.PartitionKey{}
	return true
}

// Cancel removes the user's session ownership record. When ch is non-nil it
// must be the channel that owns the session. The cancelled request id and its
// partition are returned so the caller can purge the pool eagerly.
func (r *Registry) Cancel(userID string, ch hub.Channel) (string, model.PartitionKey, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.states[userID]
	if !ok {
		return "", model.PartitionKey{}, false
	}
	if ch != nil && st.channel != nil && st.channel.ID() != ch.ID() {
		return "", model.PartitionKey{}, false
	}
	r.stopTimer(st)
	delete(r.states, userID)
	return st.requestID, st.key, true
}

// Remove drops all state for the user and returns the channel it held.
func (r *Registry) Remove(userID string) (hub.Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.states[userID]
	if !ok {
		return nil, false
	}
	r.stopTimer(st)
	delete(r.states, userID)
	return st.channel, true
}

// DropChannel handles a raw transport close of ch. It reports true only for
// an unannounced drop: ch owns the user's session and no grace timer is
// running. In that case the state is removed and the caller must tear down
// immediately. A drop during a grace window is left to the timer, and a drop
// of a channel that was already replaced is ignored.
func (r *Registry) DropChannel(userID string, ch hub.Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.states[userID]
	if !ok || ch == nil || st.channel == nil || st.channel.ID() != ch.ID() {
		return false
	}
	if st.timer != nil {
		return false
	}
	delete(r.states, userID)
	return true
}

func (r *Registry) Channel(userID string) (hub.Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.states[userID]
	if !ok || st.channel == nil {
		return nil, false
	}
	return st.channel, true
}

// IsLive reports whether the user holds a channel, including during a grace window.
func (r *Registry) IsLive(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.states[userID]
	return ok && st.channel != nil
}

func (r *Registry) IsActiveRequest(userID, requestID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.states[userID]
	return ok && requestID != "" && st.requestID == requestID
}

func (r *Registry) ActiveRequest(userID string) (string, model.PartitionKey, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st, ok := r.states[userID]
	if !ok || st.requestID == "" {
		return "", model.PartitionKey{}, false
	}
	return st.requestID, st.key, true
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.states)
}
