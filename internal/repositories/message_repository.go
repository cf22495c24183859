package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"messaging-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `m.id, m.conversation_id, m.sender_id, m.content, m.image, m.client_message_id, m.created_at,
        u.name AS sender_name, u.image AS sender_image,
        COALESCE(ARRAY_AGG(mr.user_id ORDER BY mr.user_id) FILTER (WHERE mr.user_id IS NOT NULL), '{}') AS seen_ids`

// MessageRepository defines interactions for conversation messages.
type MessageRepository interface {
	Create(ctx context.Context, conversationID int, senderID int, content string, image *string, clientMessageID string) (models.Message, error)
	ListForConversation(ctx context.Context, conversationID int) ([]models.Message, error)
	LastMessages(ctx context.Context, conversationIDs []int) (map[int]models.Message, error)
	MarkSeen(ctx context.Context, conversationID int, userID int, messageIDs []int) (int, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Create stores a message, records the sender's implicit read, and advances
// the conversation's last_message_at in one transaction. A retried send
// with the same client message id returns the already-stored row untouched.
func (r *MessageRepo) Create(ctx context.Context, conversationID int, senderID int, content string, image *string, clientMessageID string) (models.Message, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var msg models.Message
	err = tx.QueryRowxContext(ctx, `INSERT INTO messages (conversation_id, sender_id, content, image, client_message_id)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (conversation_id, sender_id, client_message_id) DO NOTHING
        RETURNING id, conversation_id, sender_id, content, image, client_message_id, created_at`,
		conversationID, senderID, content, image, clientMessageID).
		StructScan(&msg)
	if errors.Is(err, sql.ErrNoRows) {
		tx.Rollback()
		err = nil
		return r.getByClientID(ctx, conversationID, senderID, clientMessageID)
	}
	if err != nil {
		return models.Message{}, err
	}

	if _, err = tx.ExecContext(ctx, `INSERT INTO message_reads (message_id, user_id, read_at) VALUES ($1, $2, $3)`,
		msg.ID, senderID, msg.CreatedAt); err != nil {
		return models.Message{}, err
	}

	// GREATEST keeps last_message_at monotonic under concurrent senders.
	if _, err = tx.ExecContext(ctx, `UPDATE conversations SET last_message_at = GREATEST(last_message_at, $2) WHERE id=$1`,
		conversationID, msg.CreatedAt); err != nil {
		return models.Message{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Message{}, err
	}

	msg.SeenIDs = pq.Int64Array{int64(senderID)}
	return msg, nil
}

func (r *MessageRepo) getByClientID(ctx context.Context, conversationID int, senderID int, clientMessageID string) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+`
        FROM messages m
        INNER JOIN users u ON u.id = m.sender_id
        LEFT JOIN message_reads mr ON mr.message_id = m.id
        WHERE m.conversation_id=$1 AND m.sender_id=$2 AND m.client_message_id=$3
        GROUP BY m.id, u.name, u.image`, conversationID, senderID, clientMessageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, ErrMessageNotFound
	}
	return msg, err
}

// ListForConversation returns messages with sender fields and seen sets,
// ordered by (created_at, id) so retrieval stays total under clock skew.
func (r *MessageRepo) ListForConversation(ctx context.Context, conversationID int) ([]models.Message, error) {
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+`
        FROM messages m
        INNER JOIN users u ON u.id = m.sender_id
        LEFT JOIN message_reads mr ON mr.message_id = m.id
        WHERE m.conversation_id=$1
        GROUP BY m.id, u.name, u.image
        ORDER BY m.created_at ASC, m.id ASC`, conversationID)
	return msgs, err
}

// LastMessages returns the newest message per conversation.
func (r *MessageRepo) LastMessages(ctx context.Context, conversationIDs []int) (map[int]models.Message, error) {
	if len(conversationIDs) == 0 {
		return map[int]models.Message{}, nil
	}
	ids := make([]int64, 0, len(conversationIDs))
	for _, id := range conversationIDs {
		ids = append(ids, int64(id))
	}

	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+`
        FROM messages m
        INNER JOIN users u ON u.id = m.sender_id
        LEFT JOIN message_reads mr ON mr.message_id = m.id
        WHERE m.id IN (
            SELECT DISTINCT ON (conversation_id) id FROM messages
            WHERE conversation_id = ANY($1)
            ORDER BY conversation_id, created_at DESC, id DESC
        )
        GROUP BY m.id, u.name, u.image`, pq.Int64Array(ids))
	if err != nil {
		return nil, err
	}

	result := make(map[int]models.Message, len(msgs))
	for _, m := range msgs {
		result[m.ConversationID] = m
	}
	return result, nil
}

// MarkSeen adds the user to the seen set of every listed message that
// belongs to the conversation. Re-marking is a no-op, so the returned count
// is the number of messages actually changed.
func (r *MessageRepo) MarkSeen(ctx context.Context, conversationID int, userID int, messageIDs []int) (int, error) {
	ids := make([]int64, 0, len(messageIDs))
	for _, id := range messageIDs {
		ids = append(ids, int64(id))
	}

	res, err := r.db.ExecContext(ctx, `INSERT INTO message_reads (message_id, user_id)
        SELECT m.id, $2 FROM messages m WHERE m.conversation_id=$1 AND m.id = ANY($3)
        ON CONFLICT DO NOTHING`, conversationID, userID, pq.Int64Array(ids))
	if err != nil {
		return 0, err
	}

	count, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(count), nil
}
