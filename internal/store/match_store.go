package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// MatchRecord is a verified match outcome ready for durable insertion.
type MatchRecord struct {
	Mode         string  `db:"mode"`
	Player1ID    int64   `db:"player1_id"`
	Player2ID    int64   `db:"player2_id"`
	Player1Score int     `db:"player1_score"`
	Player2Score int     `db:"player2_score"`
	WinnerID     *int64  `db:"winner_id"`
	TournamentID *string `db:"tournament_id"`
	Stage        *string `db:"stage"`
}

// MatchStore persists verified match rows and win/loss counters.
type MatchStore struct {
	db *sqlx.DB
}

// NewMatchStore wraps the shared database handle.
func NewMatchStore(db *sqlx.DB) *MatchStore {
	return &MatchStore{db: db}
}

// InsertVerifiedMatch writes the match row and, for decisive results, bumps the
// participants' win/loss counters in the same transaction. Draws leave the
// counters untouched. Returns the new row id.
func (s *MatchStore) InsertVerifiedMatch(ctx context.Context, rec MatchRecord) (int64, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.NamedExecContext(ctx, `INSERT INTO matches
        (mode, player1_id, player2_id, opponent_label, player1_score, player2_score, winner_id, is_verified, tournament_id, stage)
        VALUES (:mode, :player1_id, :player2_id, NULL, :player1_score, :player2_score, :winner_id, 1, :tournament_id, :stage)`, rec)
	if err != nil {
		return 0, fmt.Errorf("insert match: %w", err)
	}
	matchID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("match row id: %w", err)
	}

	if rec.Player1Score != rec.Player2Score {
		winner, loser := rec.Player1ID, rec.Player2ID
		if rec.Player2Score > rec.Player1Score {
			winner, loser = rec.Player2ID, rec.Player1ID
		}
		if _, err := tx.ExecContext(ctx, `UPDATE users SET wins = wins + 1 WHERE id = ?`, winner); err != nil {
			return 0, fmt.Errorf("increment wins: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE users SET losses = losses + 1 WHERE id = ?`, loser); err != nil {
			return 0, fmt.Errorf("increment losses: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return matchID, nil
}

// IncrementWin bumps the win counter for a single user.
func (s *MatchStore) IncrementWin(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET wins = wins + 1 WHERE id = ?`, userID)
	return err
}

// IncrementLoss bumps the loss counter for a single user.
func (s *MatchStore) IncrementLoss(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET losses = losses + 1 WHERE id = ?`, userID)
	return err
}
