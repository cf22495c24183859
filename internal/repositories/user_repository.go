package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messaging-service/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserRepository reads identity records and owns the presence fields.
type UserRepository interface {
	Get(ctx context.Context, userID int) (models.User, error)
	Bulk(ctx context.Context, userIDs []int) ([]models.User, error)
	GetStatus(ctx context.Context, userID int) (models.PresenceStatus, error)
	UpdateStatus(ctx context.Context, userID int, isOnline bool) (models.PresenceStatus, error)
}

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// Get fetches a user by id.
func (r *UserRepo) Get(ctx context.Context, userID int) (models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT id, name, email, image, is_online, last_seen, created_at
        FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, ErrUserNotFound
	}
	return user, err
}

// Bulk fetches multiple users in one query.
func (r *UserRepo) Bulk(ctx context.Context, userIDs []int) ([]models.User, error) {
	if len(userIDs) == 0 {
		return []models.User{}, nil
	}
	ids := make([]int64, 0, len(userIDs))
	for _, id := range userIDs {
		ids = append(ids, int64(id))
	}

	var users []models.User
	err := r.db.SelectContext(ctx, &users, `SELECT id, name, email, image, is_online, last_seen, created_at
        FROM users WHERE id = ANY($1) ORDER BY id`, pq.Int64Array(ids))
	return users, err
}

// GetStatus reads the persisted presence fields.
func (r *UserRepo) GetStatus(ctx context.Context, userID int) (models.PresenceStatus, error) {
	var status models.PresenceStatus
	err := r.db.GetContext(ctx, &status, `SELECT id, is_online, last_seen FROM users WHERE id=$1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PresenceStatus{}, ErrUserNotFound
	}
	return status, err
}

// UpdateStatus flips the online flag in a single atomic update. last_seen
// only moves on the online-to-offline edge; repeating an offline report
// leaves the earlier timestamp alone.
func (r *UserRepo) UpdateStatus(ctx context.Context, userID int, isOnline bool) (models.PresenceStatus, error) {
	var status models.PresenceStatus
	err := r.db.QueryRowxContext(ctx, `UPDATE users
        SET is_online=$2, last_seen = CASE WHEN $2 THEN last_seen WHEN is_online THEN NOW() ELSE last_seen END
        WHERE id=$1
        RETURNING id, is_online, last_seen`, userID, isOnline).
		StructScan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PresenceStatus{}, ErrUserNotFound
	}
	return status, err
}
