package message

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/elimuconnect/elimu/core"
	"github.com/elimuconnect/elimu/core/user"
)

// DefaultPageSize is the thread page size when the caller does not specify one.
const DefaultPageSize = 50

var ErrNotFound = errors.New("message not found")

type (
	Repository interface {
		CreateMessage(ctx context.Context, msg Message) (Message, error)
		// ConversationMessages returns one newest-first page of the two-party
		// thread plus the total message count in that thread.
		ConversationMessages(ctx context.Context, userID, partnerID string, page, size int) ([]Message, int, error)
		UserMessages(ctx context.Context, userID string) ([]Message, error)
		MarkConversationRead(ctx context.Context, userID, partnerID string) error
		CountUnread(ctx context.Context, userID string) (int, error)
	}

	// Broadcaster pushes a Message to a user's inbox over the low-latency
	// channel; delivery is advisory, polling remains the backstop.
	Broadcaster interface {
		BroadcastMessage(userID string, msg Message)
	}

	Service interface {
		Send(ctx context.Context, senderID string, nm NewMessage) (Message, error)
		Conversation(ctx context.Context, userID, partnerID string, page, size int) (Page, error)
		ConversationList(ctx context.Context, userID string) (Inbox, error)
		MarkRead(ctx context.Context, userID, partnerID string) error
		UnreadCount(ctx context.Context, userID string) (int, error)
	}

	service struct {
		repo        Repository
		usrRepo     user.Repository
		broadcaster Broadcaster // optional
		log         core.Logger
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, usrRepo user.Repository, broadcaster Broadcaster, log core.Logger) Service {
	return &service{
		repo:        repo,
		usrRepo:     usrRepo,
		broadcaster: broadcaster,
		log:         log,
	}
}

func (svc *service) Send(ctx context.Context, senderID string, nm NewMessage) (Message, error) {
	sender, err := svc.usrRepo.GetUser(ctx, user.GetFilter{ID: senderID})
	if err != nil {
		return Message{}, errors.Wrap(err, "finding sender")
	}
	receiver, err := svc.usrRepo.GetUser(ctx, user.GetFilter{ID: nm.ReceiverID})
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return Message{}, core.NewValidationError(err, core.FieldError{Field: "receiver_id", Error: "receiver not found"})
		}
		return Message{}, errors.Wrap(err, "finding receiver")
	}

	msg := Message{
		ID:           uuid.New().String(),
		SenderID:     sender.ID,
		SenderName:   sender.Name,
		ReceiverID:   receiver.ID,
		ReceiverName: receiver.Name,
		Content:      nm.Content,
		CreatedAt:    time.Now().UTC(),
	}
	msg, err = svc.repo.CreateMessage(ctx, msg)
	if err != nil {
		return Message{}, errors.Wrap(err, "creating message")
	}

	// push-channel fan-out; the message id stays stable across push and poll
	if svc.broadcaster != nil {
		svc.broadcaster.BroadcastMessage(receiver.ID, msg)
		svc.broadcaster.BroadcastMessage(sender.ID, msg)
	}
	return msg, nil
}

func (svc *service) Conversation(ctx context.Context, userID, partnerID string, page, size int) (Page, error) {
	if size <= 0 {
		size = DefaultPageSize
	}
	if page < 0 {
		page = 0
	}
	msgs, total, err := svc.repo.ConversationMessages(ctx, userID, partnerID, page, size)
	if err != nil {
		return Page{}, errors.Wrap(err, "querying conversation")
	}
	if msgs == nil {
		msgs = []Message{}
	}
	return Page{Content: msgs, Page: page, Size: size, Total: total}, nil
}

// ConversationList groups the user's message stream by partner and summarizes
// each thread, most recent activity first.
func (svc *service) ConversationList(ctx context.Context, userID string) (Inbox, error) {
	msgs, err := svc.repo.UserMessages(ctx, userID)
	if err != nil {
		return Inbox{}, errors.Wrap(err, "querying user messages")
	}

	grouped := make(map[string][]Message)
	for _, msg := range msgs {
		partnerID := msg.SenderID
		if msg.SenderID == userID {
			partnerID = msg.ReceiverID
		}
		grouped[partnerID] = append(grouped[partnerID], msg)
	}

	convs := make([]Conversation, 0, len(grouped))
	var totalUnread int
	for partnerID, thread := range grouped {
		latest := thread[0]
		var unread int
		for _, msg := range thread {
			if msg.CreatedAt.After(latest.CreatedAt) {
				latest = msg
			}
			if msg.ReceiverID == userID && !msg.Read {
				unread++
			}
		}

		partnerName := latest.SenderName
		if latest.SenderID == userID {
			partnerName = latest.ReceiverName
		}
		convs = append(convs, Conversation{
			PartnerID:       partnerID,
			PartnerName:     partnerName,
			LastMessage:     latest.Content,
			LastMessageTime: latest.CreatedAt,
			UnreadCount:     unread,
		})
		totalUnread += unread
	}

	sort.Slice(convs, func(i, j int) bool {
		return convs[i].LastMessageTime.After(convs[j].LastMessageTime)
	})
	return Inbox{Conversations: convs, TotalUnread: totalUnread}, nil
}

func (svc *service) MarkRead(ctx context.Context, userID, partnerID string) error {
	return svc.repo.MarkConversationRead(ctx, userID, partnerID)
}

func (svc *service) UnreadCount(ctx context.Context, userID string) (int, error) {
	return svc.repo.CountUnread(ctx, userID)
}
