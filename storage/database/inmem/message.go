package inmemdb

import (
	"context"
	"sort"

	"github.com/elimuconnect/elimu/core/message"
)

type messageRepository struct {
	db *messageTable
}

var _ message.Repository = (*messageRepository)(nil) // interface compliance check

func NewMessageRepository(db *DB) *messageRepository {
	return &messageRepository{db: db.message}
}

func (repo *messageRepository) query() []message.Message {
	msgs := make([]message.Message, 0, len(repo.db.table))
	for _, m := range repo.db.table {
		msgs = append(msgs, *m)
	}
	return msgs
}

func (repo *messageRepository) CreateMessage(_ context.Context, msg message.Message) (message.Message, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.table[msg.ID] = &msg
	return msg, nil
}

func (repo *messageRepository) ConversationMessages(_ context.Context, userID, partnerID string, page, size int) ([]message.Message, int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	thread := make([]message.Message, 0)
	for _, msg := range repo.query() {
		if (msg.SenderID == userID && msg.ReceiverID == partnerID) ||
			(msg.SenderID == partnerID && msg.ReceiverID == userID) {
			thread = append(thread, msg)
		}
	}

	// newest first; id breaks creation-time ties
	sort.Slice(thread, func(i, j int) bool {
		if thread[i].CreatedAt.Equal(thread[j].CreatedAt) {
			return thread[i].ID > thread[j].ID
		}
		return thread[i].CreatedAt.After(thread[j].CreatedAt)
	})

	total := len(thread)
	start := page * size
	if start >= total {
		return []message.Message{}, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}
	return thread[start:end], total, nil
}

func (repo *messageRepository) UserMessages(_ context.Context, userID string) ([]message.Message, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	msgs := make([]message.Message, 0)
	for _, msg := range repo.query() {
		if msg.SenderID == userID || msg.ReceiverID == userID {
			msgs = append(msgs, msg)
		}
	}
	return msgs, nil
}

func (repo *messageRepository) MarkConversationRead(_ context.Context, userID, partnerID string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for id, msg := range repo.db.table {
		if msg.ReceiverID == userID && msg.SenderID == partnerID && !msg.Read {
			msg.Read = true
			repo.db.table[id] = msg
		}
	}
	return nil
}

func (repo *messageRepository) CountUnread(_ context.Context, userID string) (int, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var count int
	for _, msg := range repo.query() {
		if msg.ReceiverID == userID && !msg.Read {
			count++
		}
	}
	return count, nil
}
