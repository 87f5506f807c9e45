package model

// Inbound session events.
const (
	EventUserConnected      = "user_connected"
	EventUserDisconnected   = "user_disconnected"
	EventMatchRequest       = "match_request"
	EventCancelMatchRequest = "cancel_match_request"
	EventMatchAccept        = "match_accept_request"
	EventMatchDecline       = "match_decline_request"
	EventRematchRequest     = "rematch_request"
	EventMatchEnd           = "match_end_request"
	EventMatchStatus        = "match_status_request"
)

// Outbound notifications.
const (
	EventMatchFound         = "match_found"
	EventMatchSuccessful    = "match_successful"
	EventMatchUnsuccessful  = "match_unsuccessful"
	EventMatchEnded         = "match_ended"
	EventMatchRequestExists = "match_request_exists"
	EventMatchRequestError  = "match_request_error"
)

type UserEventPayload struct {
	UserID string `json:"userId"`
}

type MatchAcceptPayload struct {
	UserID  string `json:"userId,omitempty"`
	MatchID string `json:"matchId"`
}

type MatchDeclinePayload struct {
	UserID    string `json:"userId"`
	MatchID   string `json:"matchId"`
	IsTimeout bool   `json:"isTimeout"`
}

type RematchPayload struct {
	MatchID   string              `json:"matchId"`
	PartnerID string              `json:"partnerId"`
	Request   MatchRequestPayload `json:"request"`
}

type MatchEndPayload struct {
	UserID  string `json:"userId"`
	MatchID string `json:"matchId"`
}

type MatchFoundEvent struct {
	MatchID string   `json:"matchId"`
	User1   UserInfo `json:"user1"`
	User2   UserInfo `json:"user2"`
}

type MatchStatus struct {
	MatchID string     `json:"matchId"`
	Partner UserInfo   `json:"partner"`
	State   MatchState `json:"state"`
}
