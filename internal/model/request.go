package model

import (
	"fmt"
	"strings"
	"time"
)

// UserInfo is the public identity of a participant as supplied by the client.
type UserInfo struct {
	ID       string  `json:"id"`
	Username string  `json:"username"`
	Profile  *string `json:"profile,omitempty"`
}

// PartitionKey selects the pool a request lives in.
type PartitionKey struct {
	Complexity string `json:"complexity"`
	Category   string `json:"category"`
	Language   string `json:"language"`
}

func (k PartitionKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Complexity, k.Category, k.Language)
}

type PendingRequest struct {
	ID                string       `json:"id"`
	User              UserInfo     `json:"user"`
	Key               PartitionKey `json:"key"`
	SubmittedAt       time.Time    `json:"submittedAt"`
	TTLSeconds        int          `json:"ttlSeconds"`
	RejectedPartnerID string       `json:"rejectedPartnerId,omitempty"`
}

// Expired reports whether the request is past its time-to-live at now.
func (r *PendingRequest) Expired(now time.Time) bool {
	return now.Sub(r.SubmittedAt) >= time.Duration(r.TTLSeconds)*time.Second
}

// Excludes reports whether r and other were separated by a decline or
// rematch and must not be paired with each other.
func (r *PendingRequest) Excludes(other *PendingRequest) bool {
	if r.RejectedPartnerID != "" && r.RejectedPartnerID == other.User.ID {
		return true
	}
	return other.RejectedPartnerID != "" && other.RejectedPartnerID == r.User.ID
}

// MatchRequestPayload is the inbound match_request body. Both the singular and
// list forms are accepted; the first listed value selects the partition.
type MatchRequestPayload struct {
	User         UserInfo `json:"user"`
	Complexity   string   `json:"complexity,omitempty"`
	Complexities []string `json:"complexities,omitempty"`
	Category     string   `json:"category,omitempty"`
	Categories   []string `json:"categories,omitempty"`
	Language     string   `json:"language,omitempty"`
	Languages    []string `json:"languages,omitempty"`
	Timeout      int      `json:"timeout"`
}

func (p MatchRequestPayload) PartitionKey() PartitionKey {
	return PartitionKey{
		Complexity: firstNonEmpty(p.Complexity, p.Complexities),
		Category:   firstNonEmpty(p.Category, p.Categories),
		Language:   firstNonEmpty(p.Language, p.Languages),
	}
}

func firstNonEmpty(single string, list []string) string {
	if s := strings.TrimSpace(single); s != "" {
		return s
	}
	for _, v := range list {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
