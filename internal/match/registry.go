// Package match keeps active matches and drives their accept/decline/end
// lifecycle. Every operation on a match id is serialized by the registry lock.
package match

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/peerprep/matching-server-go/internal/model"
)

type Registry struct {
	matches map[string]*model.Match
	byUser  map[string]string // user id -> match id
	newID   func() string
	now     func() time.Time
	mu      sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{
		matches: make(map[string]*model.Match),
		byUser:  make(map[string]string),
		newID:   func() string { return uuid.NewString() },
		now:     time.Now,
	}
}

// Create registers a Proposed match between two users. Any match either user
// still belongs to is removed and returned as superseded.
func (r *Registry) Create(user1, user2 model.UserInfo, key model.PartitionKey) (*model.Match, []*model.Match) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var superseded []*model.Match
	for _, userID := range []string{user1.ID, user2.ID} {
		if old, ok := r.lookupByUser(userID); ok {
			r.removeLocked(old)
			old.State = model.MatchStateSuperseded
			superseded = append(superseded, snapshot(old))
		}
	}

	m := &model.Match{
		ID:        r.newID(),
		User1:     user1,
		User2:     user2,
		Key:       key,
		State:     model.MatchStateProposed,
		CreatedAt: r.now(),
	}
	r.matches[m.ID] = m
	r.byUser[user1.ID] = m.ID
	r.byUser[user2.ID] = m.ID

	return snapshot(m), superseded
}

// Accept records userID's acceptance. mutual is true only for the call that
// moves the match to Successful; repeat acceptances by the same side, and any
// acceptance after success, return mutual=false. ok is false for unknown
// match ids and non-participants.
func (r *Registry) Accept(matchID, userID string) (mutual bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, found := r.matches[matchID]
	if !found || (userID != "" && !m.Involves(userID)) {
		return false, false
	}

	switch m.State {
	case model.MatchStateProposed:
		m.State = model.MatchStateOneAccepted
		m.AcceptedBy = userID
		return false, true
	case model.MatchStateOneAccepted:
		if userID != "" && m.AcceptedBy == userID {
			return false, true
		}
		m.State = model.MatchStateSuccessful
		return true, true
	default:
		return false, true
	}
}

// Decline removes the match in any state.
func (r *Registry) Decline(matchID string) (*model.Match, bool) {
	return r.finish(matchID, model.MatchStateDeclined)
}

// End removes a match whose session is underway.
func (r *Registry) End(matchID string) (*model.Match, bool) {
	return r.finish(matchID, model.MatchStateEnded)
}

func (r *Registry) finish(matchID string, final model.MatchState) (*model.Match, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.matches[matchID]
	if !ok {
		return nil, false
	}
	r.removeLocked(m)
	m.State = final
	return snapshot(m), true
}

// RemoveByUser tears down whatever match userID belongs to.
func (r *Registry) RemoveByUser(userID string) (*model.Match, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.lookupByUser(userID)
	if !ok {
		return nil, false
	}
	r.removeLocked(m)
	m.State = model.MatchStateDeclined
	return snapshot(m), true
}

func (r *Registry) Get(matchID string) (*model.Match, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.matches[matchID]
	if !ok {
		return nil, false
	}
	return snapshot(m), true
}

func (r *Registry) FindByUser(userID string) (*model.Match, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.lookupByUser(userID)
	if !ok {
		return nil, false
	}
	return snapshot(m), true
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.matches)
}

func (r *Registry) lookupByUser(userID string) (*model.Match, bool) {
	id, ok := r.byUser[userID]
	if !ok {
		return nil, false
	}
	m, ok := r.matches[id]
	return m, ok
}

func (r *Registry) removeLocked(m *model.Match) {
	delete(r.matches, m.ID)
	for _, userID := range []string{m.User1.ID, m.User2.ID} {
		if r.byUser[userID] == m.ID {
			delete(r.byUser, userID)
		}
	}
}

func snapshot(m *model.Match) *model.Match {
	cp := *m
	return &cp
}
