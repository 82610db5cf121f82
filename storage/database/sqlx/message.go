package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/elimuconnect/elimu/core/message"
)

type messageRepository struct {
	db *sqlx.DB
}

var _ message.Repository = (*messageRepository)(nil) // interface compliance check

func NewMessageRepository(db *sql.DB) *messageRepository {
	return &messageRepository{db: sqlx.NewDb(db, "postgres")}
}

// messageRow mirrors the messages table; sender/receiver names join in from users.
type messageRow struct {
	ID           string      `db:"id"`
	SenderID     string      `db:"sender_id"`
	SenderName   null.String `db:"sender_name"`
	ReceiverID   string      `db:"receiver_id"`
	ReceiverName null.String `db:"receiver_name"`
	Content      string      `db:"content"`
	Read         bool        `db:"read"`
	CreatedAt    null.Time   `db:"created_at"`
}

const selectMessage = `
	SELECT m.id, m.sender_id, s.name AS sender_name, m.receiver_id, r.name AS receiver_name,
	       m.content, m.read, m.created_at
	FROM messages m
	         JOIN users s ON s.id = m.sender_id
	         JOIN users r ON r.id = m.receiver_id`

func (repo messageRepository) unrow(row messageRow) message.Message {
	return message.Message{
		ID:           row.ID,
		SenderID:     row.SenderID,
		SenderName:   row.SenderName.String,
		ReceiverID:   row.ReceiverID,
		ReceiverName: row.ReceiverName.String,
		Content:      row.Content,
		Read:         row.Read,
		CreatedAt:    row.CreatedAt.Time,
	}
}

func (repo messageRepository) unrowSlice(rows []messageRow) []message.Message {
	msgs := make([]message.Message, 0, len(rows))
	for _, row := range rows {
		msgs = append(msgs, repo.unrow(row))
	}
	return msgs
}

func (repo *messageRepository) CreateMessage(ctx context.Context, msg message.Message) (message.Message, error) {
	_, err := repo.db.ExecContext(ctx, `
		INSERT INTO messages (id, sender_id, receiver_id, content, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.SenderID, msg.ReceiverID, msg.Content, msg.Read, msg.CreatedAt.UTC(),
	)
	if err != nil {
		return message.Message{}, errors.Wrap(err, "inserting message")
	}
	return msg, nil
}

func (repo *messageRepository) ConversationMessages(ctx context.Context, userID, partnerID string, page, size int) ([]message.Message, int, error) {
	threadCond := ` WHERE (m.sender_id = $1 AND m.receiver_id = $2) OR (m.sender_id = $2 AND m.receiver_id = $1)`

	var total int
	if err := repo.db.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM messages m"+threadCond, userID, partnerID,
	); err != nil {
		return nil, 0, errors.Wrap(err, "counting conversation messages")
	}

	var rows []messageRow
	if err := repo.db.SelectContext(ctx, &rows,
		selectMessage+threadCond+" ORDER BY m.created_at DESC, m.id DESC LIMIT $3 OFFSET $4",
		userID, partnerID, size, page*size,
	); err != nil {
		return nil, 0, errors.Wrap(err, "querying conversation messages")
	}
	return repo.unrowSlice(rows), total, nil
}

func (repo *messageRepository) UserMessages(ctx context.Context, userID string) ([]message.Message, error) {
	var rows []messageRow
	if err := repo.db.SelectContext(ctx, &rows,
		selectMessage+" WHERE m.sender_id = $1 OR m.receiver_id = $1 ORDER BY m.created_at DESC, m.id DESC",
		userID,
	); err != nil {
		return nil, errors.Wrap(err, "querying user messages")
	}
	return repo.unrowSlice(rows), nil
}

func (repo *messageRepository) MarkConversationRead(ctx context.Context, userID, partnerID string) error {
	if _, err := repo.db.ExecContext(ctx,
		"UPDATE messages SET read = TRUE WHERE receiver_id = $1 AND sender_id = $2 AND NOT read",
		userID, partnerID,
	); err != nil {
		return errors.Wrap(err, "marking conversation read")
	}
	return nil
}

func (repo *messageRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	if err := repo.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM messages WHERE receiver_id = $1 AND NOT read", userID,
	); err != nil {
		return 0, errors.Wrap(err, "counting unread messages")
	}
	return count, nil
}
