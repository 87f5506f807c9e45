package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/peerprep/matching-server-go/internal/model"
	"github.com/peerprep/matching-server-go/internal/service"
	"github.com/peerprep/matching-server-go/internal/ws"
)

// SocketHandler upgrades /ws requests and routes session events to the
// SessionService.
type SocketHandler struct {
	sessions *service.SessionService
	upgrader websocket.Upgrader
}

// NewSocketHandler accepts any origin when allowedOrigins is empty.
func NewSocketHandler(sessions *service.SessionService, allowedOrigins []string) *SocketHandler {
	return &SocketHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(r *http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[u.Scheme+"://"+u.Host]
		return ok
	}
}

func (h *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := ws.NewConn(wsConn)
	log.Debug().Str("channelId", conn.ID()).Msg("socket connected")

	ctx := context.WithoutCancel(r.Context())
	conn.Run(
		func(c *ws.Conn, f ws.Frame) { h.dispatch(ctx, c, f) },
		func(c *ws.Conn) { h.sessions.TransportClosed(c, c.UserID()) },
	)
}

func (h *SocketHandler) dispatch(ctx context.Context, c *ws.Conn, f ws.Frame) {
	ack := func(data any) {
		if f.Ack == nil {
			return
		}
		if err := c.Reply(*f.Ack, data); err != nil {
			log.Debug().Err(err).Str("event", f.Event).Msg("failed to send ack")
		}
	}

	switch f.Event {
	case model.EventUserConnected:
		var p model.UserEventPayload
		if !decode(c, f, &p) || p.UserID == "" {
			return
		}
		c.Bind(p.UserID)
		h.sessions.Connect(c, p.UserID)

	case model.EventUserDisconnected:
		var p model.UserEventPayload
		if !decode(c, f, &p) {
			return
		}
		h.sessions.Disconnecting(userFor(c, p.UserID))

	case model.EventMatchRequest:
		var p model.MatchRequestPayload
		if !decode(c, f, &p) {
			ack(false)
			return
		}
		if c.UserID() == "" && p.User.ID != "" {
			c.Bind(p.User.ID)
		}
		err := h.sessions.Submit(ctx, c, p)
		ack(err == nil)

	case model.EventCancelMatchRequest:
		var p model.UserEventPayload
		if !decode(c, f, &p) {
			return
		}
		ack(h.sessions.Cancel(c, userFor(c, p.UserID)))

	case model.EventMatchAccept:
		var p model.MatchAcceptPayload
		if !decode(c, f, &p) {
			ack(false)
			return
		}
		h.sessions.Accept(userFor(c, p.UserID), p.MatchID, ack)

	case model.EventMatchDecline:
		var p model.MatchDeclinePayload
		if !decode(c, f, &p) {
			return
		}
		ack(h.sessions.Decline(c, userFor(c, p.UserID), p.MatchID, p.IsTimeout))

	case model.EventRematchRequest:
		var p model.RematchPayload
		if !decode(c, f, &p) {
			ack(false)
			return
		}
		err := h.sessions.Rematch(ctx, c, c.UserID(), p)
		ack(err == nil)

	case model.EventMatchEnd:
		var p model.MatchEndPayload
		if !decode(c, f, &p) {
			return
		}
		ack(h.sessions.End(c, userFor(c, p.UserID), p.MatchID))

	case model.EventMatchStatus:
		var p model.UserEventPayload
		if !decode(c, f, &p) {
			ack(nil)
			return
		}
		ack(h.sessions.Status(userFor(c, p.UserID)))

	default:
		log.Debug().Str("channelId", c.ID()).Str("event", f.Event).Msg("unknown event")
	}
}

// userFor prefers the id bound to the connection over one claimed in a payload.
func userFor(c *ws.Conn, claimed string) string {
	if bound := c.UserID(); bound != "" {
		return bound
	}
	return claimed
}

func decode(c *ws.Conn, f ws.Frame, dst any) bool {
	if len(f.Data) == 0 {
		return true
	}
	if err := json.Unmarshal(f.Data, dst); err != nil {
		log.Warn().
			Err(err).
			Str("channelId", c.ID()).
			Str("event", f.Event).
			Msg("invalid event payload")
		return false
	}
	return true
}
