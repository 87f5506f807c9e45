package model

import "time"

type MatchState string

const (
	MatchStateProposed    MatchState = "proposed"
	MatchStateOneAccepted MatchState = "one_accepted"
	MatchStateSuccessful  MatchState = "successful"
	MatchStateDeclined    MatchState = "declined"
	MatchStateEnded       MatchState = "ended"
	MatchStateSuperseded  MatchState = "superseded"
)

// MatchOutcome is how a match left the registry; recorded in history and metrics.
type MatchOutcome string

const (
	MatchOutcomeSuccessful   MatchOutcome = "successful"
	MatchOutcomeDeclined     MatchOutcome = "declined"
	MatchOutcomeEnded        MatchOutcome = "ended"
	MatchOutcomeDisconnected MatchOutcome = "disconnected"
	MatchOutcomeSuperseded   MatchOutcome = "superseded"
)

type Match struct {
	ID         string       `json:"matchId"`
	User1      UserInfo     `json:"user1"`
	User2      UserInfo     `json:"user2"`
	Key        PartitionKey `json:"-"`
	State      MatchState   `json:"state"`
	AcceptedBy string       `json:"-"`
	CreatedAt  time.Time    `json:"createdAt"`
}

// Partner returns the participant that is not userID.
func (m *Match) Partner(userID string) (UserInfo, bool) {
	switch userID {
	case m.User1.ID:
		return m.User2, true
	case m.User2.ID:
		return m.User1, true
	}
	return UserInfo{}, false
}

func (m *Match) Involves(userID string) bool {
	return m.User1.ID == userID || m.User2.ID == userID
}

type MatchHistory struct {
	MatchID    string       `db:"match_id" json:"matchId"`
	User1ID    string       `db:"user1_id" json:"user1Id"`
	User2ID    string       `db:"user2_id" json:"user2Id"`
	Partition  string       `db:"partition_key" json:"partition"`
	Outcome    MatchOutcome `db:"outcome" json:"outcome"`
	CreatedAt  time.Time    `db:"created_at" json:"createdAt"`
	ResolvedAt time.Time    `db:"resolved_at" json:"resolvedAt"`
}

type RecordMatchParams struct {
	MatchID    string
	User1ID    string
	User2ID    string
	Partition  string
	Outcome    MatchOutcome
	CreatedAt  time.Time
	ResolvedAt time.Time
}
