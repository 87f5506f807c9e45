package audit

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestLog(t *testing.T) {
	buf := captureLog(t)

	Log(Event{
		Type:      EventMatchCreated,
		UserID:    "u1",
		MatchID:   "m1",
		Partition: "Easy:Arrays:Go",
		Details:   map[string]interface{}{"partnerId": "u2", "attempt": 2},
	})

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "match_created", line["eventType"])
	assert.Equal(t, "u1", line["userId"])
	assert.Equal(t, "m1", line["matchId"])
	assert.Equal(t, "Easy:Arrays:Go", line["partition"])
	assert.Equal(t, "u2", line["partnerId"])
	assert.Equal(t, float64(2), line["attempt"])
	assert.NotContains(t, line, "ip")
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		expected string
	}{
		{"forwarded for", map[string]string{"X-Forwarded-For": "10.0.0.1"}, "10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": "10.0.0.2"}, "10.0.0.2"},
		{"remote addr", nil, "192.0.2.1:1234"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, ClientIP(r))
		})
	}
}
