package repository

import (
	"context"
	"time"

	"github.com/peerprep/matching-server-go/internal/database"
	"github.com/peerprep/matching-server-go/internal/model"
)

type MatchHistoryRepository interface {
	Record(ctx context.Context, params model.RecordMatchParams) error
	FindByMatchID(ctx context.Context, matchID string) (*model.MatchHistory, error)
	FindByUserID(ctx context.Context, userID string, limit, offset int) ([]model.MatchHistory, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type matchHistoryRepo struct {
	db database.DBTX
}

func NewMatchHistoryRepository(db database.DBTX) MatchHistoryRepository {
	return &matchHistoryRepo{db: db}
}

// Record stores the outcome of a match. A later outcome for the same match id
// replaces the earlier one, so a successful match that is then ended keeps
// only "ended".
func (r *matchHistoryRepo) Record(ctx context.Context, params model.RecordMatchParams) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO match_history (match_id, user1_id, user2_id, partition_key, outcome, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (match_id) DO UPDATE SET
			outcome = EXCLUDED.outcome,
			resolved_at = EXCLUDED.resolved_at
	`, params.MatchID, params.User1ID, params.User2ID, params.Partition, params.Outcome, params.CreatedAt, params.ResolvedAt)
	return err
}

func (r *matchHistoryRepo) FindByMatchID(ctx context.Context, matchID string) (*model.MatchHistory, error) {
	var h model.MatchHistory
	err := r.db.GetContext(ctx, &h, `
		SELECT * FROM match_history WHERE match_id = $1
	`, matchID)
	return HandleNotFound(&h, err)
}

func (r *matchHistoryRepo) FindByUserID(ctx context.Context, userID string, limit, offset int) ([]model.MatchHistory, error) {
	var rows []model.MatchHistory
	err := r.db.SelectContext(ctx, &rows, `
		SELECT * FROM match_history
		WHERE user1_id = $1 OR user2_id = $1
		ORDER BY resolved_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	return rows, err
}

func (r *matchHistoryRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM match_history WHERE resolved_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
