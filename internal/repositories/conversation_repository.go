package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messaging-service/internal/models"
)

var ErrConversationNotFound = errors.New("conversation not found")

// ConversationRepository abstracts conversation persistence.
type ConversationRepository interface {
	FindOrCreateDirect(ctx context.Context, userID int, targetID int) (models.Conversation, error)
	CreateGroup(ctx context.Context, creatorID int, name string, memberIDs []int) (models.Conversation, error)
	Get(ctx context.Context, conversationID int) (models.Conversation, error)
	IsParticipant(ctx context.Context, conversationID int, userID int) (bool, error)
	ListForUser(ctx context.Context, userID int) ([]models.Conversation, error)
}

// ConversationRepo is a sqlx implementation of ConversationRepository.
type ConversationRepo struct {
	db *sqlx.DB
}

// NewConversationRepo constructs a ConversationRepo.
func NewConversationRepo(db *sqlx.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// directKey normalizes a participant pair into the unique key that caps
// direct conversations at one per pair.
func directKey(userID, targetID int) string {
	lo, hi := userID, targetID
	if lo > hi {
		lo, hi = hi, lo
	}
	return fmt.Sprintf("%d:%d", lo, hi)
}

// FindOrCreateDirect returns the direct conversation between two users,
// creating it on first contact. Concurrent first calls converge on one row
// through the unique direct_key upsert.
func (r *ConversationRepo) FindOrCreateDirect(ctx context.Context, userID int, targetID int) (models.Conversation, error) {
	if userID == targetID {
		return models.Conversation{}, errors.New("cannot start conversation with self")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var conv models.Conversation
	err = tx.QueryRowxContext(ctx, `INSERT INTO conversations (is_group, direct_key) VALUES (FALSE, $1)
        ON CONFLICT (direct_key) DO UPDATE SET direct_key = EXCLUDED.direct_key
        RETURNING id, name, is_group, direct_key, created_at, last_message_at`, directKey(userID, targetID)).
		StructScan(&conv)
	if err != nil {
		return models.Conversation{}, err
	}

	for _, id := range []int{userID, targetID} {
		if _, err = tx.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2)
            ON CONFLICT DO NOTHING`, conv.ID, id); err != nil {
			return models.Conversation{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Conversation{}, err
	}

	lo, hi := userID, targetID
	if lo > hi {
		lo, hi = hi, lo
	}
	conv.UserIDs = []int{lo, hi}
	return conv, nil
}

// CreateGroup creates a group conversation and its participants atomically.
func (r *ConversationRepo) CreateGroup(ctx context.Context, creatorID int, name string, memberIDs []int) (models.Conversation, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Conversation{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var conv models.Conversation
	err = tx.QueryRowxContext(ctx, `INSERT INTO conversations (name, is_group) VALUES (NULLIF($1, ''), TRUE)
        RETURNING id, name, is_group, direct_key, created_at, last_message_at`, name).
		StructScan(&conv)
	if err != nil {
		return models.Conversation{}, err
	}

	// ensure creator present and dedupe members
	memberSet := map[int]struct{}{creatorID: {}}
	for _, id := range memberIDs {
		memberSet[id] = struct{}{}
	}
	ids := make([]int, 0, len(memberSet))
	for id := range memberSet {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	for _, id := range ids {
		if _, err = tx.ExecContext(ctx, `INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2)`, conv.ID, id); err != nil {
			return models.Conversation{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Conversation{}, err
	}
	conv.UserIDs = ids
	return conv, nil
}

// Get fetches a conversation with its participant set.
func (r *ConversationRepo) Get(ctx context.Context, conversationID int) (models.Conversation, error) {
	var conv models.Conversation
	err := r.db.GetContext(ctx, &conv, `SELECT id, name, is_group, direct_key, created_at, last_message_at
        FROM conversations WHERE id=$1`, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrConversationNotFound
	}
	if err != nil {
		return models.Conversation{}, err
	}

	if err := r.db.SelectContext(ctx, &conv.UserIDs, `SELECT user_id FROM conversation_participants
        WHERE conversation_id=$1 ORDER BY user_id`, conversationID); err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// IsParticipant checks whether a user belongs to the conversation.
func (r *ConversationRepo) IsParticipant(ctx context.Context, conversationID int, userID int) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM conversation_participants
        WHERE conversation_id=$1 AND user_id=$2)`, conversationID, userID)
	return exists, err
}

// ListForUser returns the caller's conversations, most recent activity
// first, each with its participant set loaded.
func (r *ConversationRepo) ListForUser(ctx context.Context, userID int) ([]models.Conversation, error) {
	var convs []models.Conversation
	err := r.db.SelectContext(ctx, &convs, `SELECT c.id, c.name, c.is_group, c.direct_key, c.created_at, c.last_message_at
        FROM conversations c
        INNER JOIN conversation_participants cp ON cp.conversation_id = c.id
        WHERE cp.user_id=$1
        ORDER BY c.last_message_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	if len(convs) == 0 {
		return convs, nil
	}

	ids := make([]int64, 0, len(convs))
	for _, c := range convs {
		ids = append(ids, int64(c.ID))
	}

	rows, err := r.db.QueryxContext(ctx, `SELECT conversation_id, user_id FROM conversation_participants
        WHERE conversation_id = ANY($1) ORDER BY user_id`, pq.Int64Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	participants := map[int][]int{}
	for rows.Next() {
		var convID, uid int
		if err := rows.Scan(&convID, &uid); err != nil {
			return nil, err
		}
		participants[convID] = append(participants[convID], uid)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range convs {
		convs[i].UserIDs = participants[convs[i].ID]
	}
	return convs, nil
}
