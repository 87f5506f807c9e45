// Package pool holds pending match requests partitioned by
// (complexity, category, language) and pairs compatible requests.
package pool

import (
	"container/list"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/peerprep/matching-server-go/internal/model"
)

// Liveness answers whether a request is still owned by a connected user.
type Liveness interface {
	IsLive(userID string) bool
	IsActiveRequest(userID, requestID string) bool
}

// PurgeFunc observes every entry removed without being matched.
type PurgeFunc func(key model.PartitionKey, req *model.PendingRequest, reason string)

const (
	ReasonExpired      = "expired"
	ReasonDisconnected = "disconnected"
	ReasonStale        = "stale"
	ReasonCancelled    = "cancelled"
)

// partition keeps entries keyed by user id in insertion order. Every read or
// write holds mu, so scans on one partition are serialized. A retired
// partition has been dropped from the manager and must not take new entries.
type partition struct {
	mu      sync.Mutex
	order   *list.List // of *model.PendingRequest
	entries map[string]*list.Element
	retired bool
}

func newPartition() *partition {
	return &partition{
		order:   list.New(),
		entries: make(map[string]*list.Element),
	}
}

func (p *partition) put(req *model.PendingRequest) {
	if el, ok := p.entries[req.User.ID]; ok {
		p.order.Remove(el)
	}
	p.entries[req.User.ID] = p.order.PushBack(req)
}

func (p *partition) remove(el *list.Element) {
	req := el.Value.(*model.PendingRequest)
	p.order.Remove(el)
	if cur, ok := p.entries[req.User.ID]; ok && cur == el {
		delete(p.entries, req.User.ID)
	}
}

type Manager struct {
	partitions map[model.PartitionKey]*partition
	liveness   Liveness
	onPurge    PurgeFunc
	now        func() time.Time
	mu         sync.RWMutex
}

func NewManager(liveness Liveness) *Manager {
	return &Manager{
		partitions: make(map[model.PartitionKey]*partition),
		liveness:   liveness,
		now:        time.Now,
	}
}

// OnPurge registers an observer for unmatched removals.
func (m *Manager) OnPurge(fn PurgeFunc) {
	m.mu.Lock()
	m.onPurge = fn
	m.mu.Unlock()
}

// SetClock replaces the time source.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
}

func (m *Manager) clock() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now()
}

func (m *Manager) partition(key model.PartitionKey, create bool) *partition {
	m.mu.RLock()
	p, ok := m.partitions[key]
	m.mu.RUnlock()
	if ok || !create {
		return p
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok = m.partitions[key]; !ok {
		p = newPartition()
		m.partitions[key] = p
	}
	return p
}

// lockPartition returns the live partition for key with its mutex held,
// creating it when missing.
func (m *Manager) lockPartition(key model.PartitionKey) *partition {
	for {
		p := m.partition(key, true)
		p.mu.Lock()
		if !p.retired {
			return p
		}
		p.mu.Unlock()
	}
}

// Insert adds req to its partition, replacing any entry from the same user.
func (m *Manager) Insert(key model.PartitionKey, req *model.PendingRequest) {
	p := m.lockPartition(key)
	p.put(req)
	p.mu.Unlock()
}

// Remove drops the user's entry if it still carries requestID.
func (m *Manager) Remove(key model.PartitionKey, userID, requestID string) bool {
	p := m.partition(key, false)
	if p == nil {
		return false
	}

	p.mu.Lock()
	el, ok := p.entries[userID]
	if !ok || el.Value.(*model.PendingRequest).ID != requestID {
		p.mu.Unlock()
		return false
	}
	req := el.Value.(*model.PendingRequest)
	p.remove(el)
	p.mu.Unlock()

	m.purged(key, req, ReasonCancelled)
	return true
}

// invalidReason returns why req can no longer take part in a match, or "".
func (m *Manager) invalidReason(req *model.PendingRequest, now time.Time) string {
	if req.Expired(now) {
		return ReasonExpired
	}
	if m.liveness == nil {
		return ""
	}
	if !m.liveness.IsLive(req.User.ID) {
		return ReasonDisconnected
	}
	if !m.liveness.IsActiveRequest(req.User.ID, req.ID) {
		return ReasonStale
	}
	return ""
}

// TryMatch scans the partition in insertion order for a partner for req.
// Expired, disconnected and superseded candidates are purged as they are
// encountered. Candidates separated from req by a rejection are skipped but
// kept. The first compatible candidate is removed and returned, and req is
// not stored. If req itself is found to be invalid the scan is abandoned
// without storing it. If no partner is found, req is stored.
func (m *Manager) TryMatch(key model.PartitionKey, req *model.PendingRequest) (*model.PendingRequest, bool) {
	now := m.clock()

	type purge struct {
		req    *model.PendingRequest
		reason string
	}
	var purged []purge

	p := m.lockPartition(key)
	var matched *model.PendingRequest
	aborted := false
	for el := p.order.Front(); el != nil; {
		next := el.Next()
		candidate := el.Value.(*model.PendingRequest)

		if reason := m.invalidReason(candidate, now); reason != "" {
			p.remove(el)
			purged = append(purged, purge{req: candidate, reason: reason})
			el = next
			continue
		}

		if reason := m.invalidReason(req, now); reason != "" {
			log.Debug().
				Str("requestId", req.ID).
				Str("userId", req.User.ID).
				Str("reason", reason).
				Msg("incoming request no longer valid, scan abandoned")
			aborted = true
			break
		}

		if candidate.User.ID == req.User.ID || req.Excludes(candidate) {
			el = next
			continue
		}

		p.remove(el)
		matched = candidate
		break
	}
	if matched == nil && !aborted {
		p.put(req)
	}
	p.mu.Unlock()

	for _, pr := range purged {
		m.purged(key, pr.req, pr.reason)
	}

	return matched, matched != nil
}

// Sweep purges every invalid entry from every partition and returns the
// number removed. Partitions left empty are dropped.
func (m *Manager) Sweep() int {
	now := m.clock()

	m.mu.RLock()
	keys := make([]model.PartitionKey, 0, len(m.partitions))
	for k := range m.partitions {
		keys = append(keys, k)
	}
	m.mu.RUnlock()

	total := 0
	for _, key := range keys {
		p := m.partition(key, false)
		if p == nil {
			continue
		}

		var removed []*model.PendingRequest
		var reasons []string
		p.mu.Lock()
		for el := p.order.Front(); el != nil; {
			next := el.Next()
			req := el.Value.(*model.PendingRequest)
			if reason := m.invalidReason(req, now); reason != "" {
				p.remove(el)
				removed = append(removed, req)
				reasons = append(reasons, reason)
			}
			el = next
		}
		p.mu.Unlock()

		for i, req := range removed {
			m.purged(key, req, reasons[i])
		}
		total += len(removed)

		m.dropIfEmpty(key, p)
	}
	return total
}

// dropIfEmpty removes p from the manager when it holds no entries. Lock order
// is manager then partition.
func (m *Manager) dropIfEmpty(key model.PartitionKey, p *partition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.partitions[key] != p {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.order.Len() > 0 {
		return
	}
	p.retired = true
	delete(m.partitions, key)
}

func (m *Manager) purged(key model.PartitionKey, req *model.PendingRequest, reason string) {
	log.Debug().
		Str("partition", key.String()).
		Str("requestId", req.ID).
		Str("userId", req.User.ID).
		Str("reason", reason).
		Msg("pending request purged")

	m.mu.RLock()
	fn := m.onPurge
	m.mu.RUnlock()
	if fn != nil {
		fn(key, req, reason)
	}
}

// Contains reports whether the partition holds requestID for userID.
func (m *Manager) Contains(key model.PartitionKey, userID, requestID string) bool {
	p := m.partition(key, false)
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	el, ok := p.entries[userID]
	return ok && el.Value.(*model.PendingRequest).ID == requestID
}

func (m *Manager) Len(key model.PartitionKey) int {
	p := m.partition(key, false)
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.order.Len()
}

type PartitionStats struct {
	Key     model.PartitionKey `json:"key"`
	Pending int                `json:"pending"`
}

// Stats lists non-empty partitions ordered by key.
func (m *Manager) Stats() []PartitionStats {
	m.mu.RLock()
	keys := make([]model.PartitionKey, 0, len(m.partitions))
	for k := range m.partitions {
		keys = append(keys, k)
	}
	m.mu.RUnlock()

	stats := make([]PartitionStats, 0, len(keys))
	for _, k := range keys {
		if n := m.Len(k); n > 0 {
			stats = append(stats, PartitionStats{Key: k, Pending: n})
		}
	}
	sort.Slice(stats, func(i, j int) bool {
		return stats[i].Key.String() < stats[j].Key.String()
	})
	return stats
}
