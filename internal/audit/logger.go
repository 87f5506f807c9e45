// Package audit writes one structured log line per match lifecycle change.
package audit

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type EventType string

const (
	EventRequestQueued    EventType = "request_queued"
	EventRequestCancelled EventType = "request_cancelled"
	EventMatchCreated     EventType = "match_created"
	EventMatchSuperseded  EventType = "match_superseded"
	EventMatchSuccessful  EventType = "match_successful"
	EventMatchDeclined    EventType = "match_declined"
	EventMatchEnded       EventType = "match_ended"
	EventUserDisconnected EventType = "user_disconnected"
	EventRateLimitExceed  EventType = "rate_limit_exceeded"
)

type Event struct {
	Type      EventType
	UserID    string
	MatchID   string
	Partition string
	IP        string
	Details   map[string]interface{}
}

func Log(event Event) {
	logger := log.With().
		Str("audit", "match").
		Str("eventType", string(event.Type)).
		Time("timestamp", time.Now()).
		Logger()

	if event.UserID != "" {
		logger = logger.With().Str("userId", event.UserID).Logger()
	}
	if event.MatchID != "" {
		logger = logger.With().Str("matchId", event.MatchID).Logger()
	}
	if event.Partition != "" {
		logger = logger.With().Str("partition", event.Partition).Logger()
	}
	if event.IP != "" {
		logger = logger.With().Str("ip", event.IP).Logger()
	}

	logEvent := logger.Info()
	for k, v := range event.Details {
		logEvent = addField(logEvent, k, v)
	}
	logEvent.Msg("match audit event")
}

func addField(e *zerolog.Event, key string, value interface{}) *zerolog.Event {
	switch v := value.(type) {
	case string:
		return e.Str(key, v)
	case int:
		return e.Int(key, v)
	case int64:
		return e.Int64(key, v)
	case bool:
		return e.Bool(key, v)
	default:
		return e.Interface(key, v)
	}
}

func LogFromRequest(r *http.Request, event Event) {
	event.IP = ClientIP(r)
	Log(event)
}

// ClientIP prefers proxy headers over the socket address.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}
