package store

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// FriendStore answers friendship and block queries against the shared friends table.
type FriendStore struct {
	db *sqlx.DB
}

// NewFriendStore wraps the shared database handle.
func NewFriendStore(db *sqlx.DB) *FriendStore {
	return &FriendStore{db: db}
}

// FriendIDs returns the ids of every accepted friend of userID.
func (s *FriendStore) FriendIDs(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, `SELECT DISTINCT
            CASE WHEN user_id = ? THEN friend_id ELSE user_id END AS id
        FROM friends
        WHERE status = 'accepted'
          AND (user_id = ? OR friend_id = ?)
          AND user_id != friend_id`, userID, userID, userID)
	return ids, err
}

// AreFriends reports whether an accepted friendship exists between a and b in either direction.
func (s *FriendStore) AreFriends(ctx context.Context, a, b int64) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(1)
        FROM friends
        WHERE status = 'accepted'
          AND ((user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?))`, a, b, b, a)
	return count > 0, err
}

// BlockedEitherWay reports whether either user has blocked the other.
func (s *FriendStore) BlockedEitherWay(ctx context.Context, a, b int64) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(1)
        FROM friends
        WHERE status = 'blocked'
          AND ((user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?))`, a, b, b, a)
	return count > 0, err
}
