package store

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB creates an in-memory SQLite database and applies migrations.
func setupTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Connect("sqlite3", "file::memory:")
	require.NoError(t, err, "Failed to connect to in-memory DB")

	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	require.NoError(t, err)

	require.NoError(t, Migrate(db), "Failed to apply migrations")

	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedUsers(t *testing.T, db *sqlx.DB, aliases ...string) []int64 {
	t.Helper()
	ids := make([]int64, 0, len(aliases))
	for _, alias := range aliases {
		res, err := db.Exec(`INSERT INTO users (alias) VALUES (?)`, alias)
		require.NoError(t, err)
		id, err := res.LastInsertId()
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func userCounters(t *testing.T, db *sqlx.DB, id int64) (wins, losses int) {
	t.Helper()
	row := struct {
		Wins   int `db:"wins"`
		Losses int `db:"losses"`
	}{}
	require.NoError(t, db.Get(&row, `SELECT wins, losses FROM users WHERE id = ?`, id))
	return row.Wins, row.Losses
}

func TestInsertVerifiedMatchBumpsCounters(t *testing.T) {
	db := setupTestDB(t)
	ids := seedUsers(t, db, "ada", "linus")
	ctx := context.Background()

	winner := ids[0]
	matchID, err := NewMatchStore(db).InsertVerifiedMatch(ctx, MatchRecord{
		Mode:         "ONLINE",
		Player1ID:    ids[0],
		Player2ID:    ids[1],
		Player1Score: 5,
		Player2Score: 3,
		WinnerID:     &winner,
	})
	require.NoError(t, err)
	assert.Positive(t, matchID)

	wins, losses := userCounters(t, db, ids[0])
	assert.Equal(t, 1, wins)
	assert.Equal(t, 0, losses)

	wins, losses = userCounters(t, db, ids[1])
	assert.Equal(t, 0, wins)
	assert.Equal(t, 1, losses)

	var row struct {
		Mode       string `db:"mode"`
		IsVerified int    `db:"is_verified"`
		WinnerID   *int64 `db:"winner_id"`
	}
	require.NoError(t, db.Get(&row, `SELECT mode, is_verified, winner_id FROM matches WHERE id = ?`, matchID))
	assert.Equal(t, "ONLINE", row.Mode)
	assert.Equal(t, 1, row.IsVerified)
	require.NotNil(t, row.WinnerID)
	assert.Equal(t, ids[0], *row.WinnerID)
}

func TestInsertVerifiedMatchDrawLeavesCountersAlone(t *testing.T) {
	db := setupTestDB(t)
	ids := seedUsers(t, db, "ada", "linus")

	matchID, err := NewMatchStore(db).InsertVerifiedMatch(context.Background(), MatchRecord{
		Mode:         "ONLINE",
		Player1ID:    ids[0],
		Player2ID:    ids[1],
		Player1Score: 4,
		Player2Score: 4,
	})
	require.NoError(t, err)

	for _, id := range ids {
		wins, losses := userCounters(t, db, id)
		assert.Zero(t, wins)
		assert.Zero(t, losses)
	}

	var winnerID *int64
	require.NoError(t, db.Get(&winnerID, `SELECT winner_id FROM matches WHERE id = ?`, matchID))
	assert.Nil(t, winnerID)
}

func TestInsertVerifiedMatchTournamentTagging(t *testing.T) {
	db := setupTestDB(t)
	ids := seedUsers(t, db, "ada", "linus")

	winner := ids[1]
	tournamentID := "t-123"
	stage := "SEMIFINAL"
	matchID, err := NewMatchStore(db).InsertVerifiedMatch(context.Background(), MatchRecord{
		Mode:         "TOURNAMENT",
		Player1ID:    ids[0],
		Player2ID:    ids[1],
		Player1Score: 2,
		Player2Score: 5,
		WinnerID:     &winner,
		TournamentID: &tournamentID,
		Stage:        &stage,
	})
	require.NoError(t, err)

	var row struct {
		TournamentID *string `db:"tournament_id"`
		Stage        *string `db:"stage"`
	}
	require.NoError(t, db.Get(&row, `SELECT tournament_id, stage FROM matches WHERE id = ?`, matchID))
	require.NotNil(t, row.TournamentID)
	assert.Equal(t, tournamentID, *row.TournamentID)
	require.NotNil(t, row.Stage)
	assert.Equal(t, stage, *row.Stage)
}

func TestCounterAdjustments(t *testing.T) {
	db := setupTestDB(t)
	ids := seedUsers(t, db, "ada", "linus")
	matches := NewMatchStore(db)
	ctx := context.Background()

	require.NoError(t, matches.IncrementWin(ctx, ids[0]))
	require.NoError(t, matches.IncrementWin(ctx, ids[0]))
	require.NoError(t, matches.IncrementLoss(ctx, ids[1]))

	wins, losses := userCounters(t, db, ids[0])
	assert.Equal(t, 2, wins)
	assert.Zero(t, losses)

	wins, losses = userCounters(t, db, ids[1])
	assert.Zero(t, wins)
	assert.Equal(t, 1, losses)
}

func TestFriendQueries(t *testing.T) {
	db := setupTestDB(t)
	ids := seedUsers(t, db, "ada", "linus", "grace", "mallory")
	friends := NewFriendStore(db)
	ctx := context.Background()

	// ada<->linus accepted, grace->ada accepted, mallory blocked ada.
	_, err := db.Exec(`INSERT INTO friends (user_id, friend_id, status) VALUES (?, ?, 'accepted')`, ids[0], ids[1])
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO friends (user_id, friend_id, status) VALUES (?, ?, 'accepted')`, ids[2], ids[0])
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO friends (user_id, friend_id, status) VALUES (?, ?, 'blocked')`, ids[3], ids[0])
	require.NoError(t, err)

	list, err := friends.FriendIDs(ctx, ids[0])
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{ids[1], ids[2]}, list)

	ok, err := friends.AreFriends(ctx, ids[1], ids[0])
	require.NoError(t, err)
	assert.True(t, ok, "friendship should hold in either direction")

	ok, err = friends.AreFriends(ctx, ids[1], ids[2])
	require.NoError(t, err)
	assert.False(t, ok)

	blocked, err := friends.BlockedEitherWay(ctx, ids[0], ids[3])
	require.NoError(t, err)
	assert.True(t, blocked, "block should hold regardless of direction")

	blocked, err = friends.BlockedEitherWay(ctx, ids[0], ids[1])
	require.NoError(t, err)
	assert.False(t, blocked)
}
