package client

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/elimuconnect/elimu/core/message"
)

// defaultPollInterval is how often a watched thread refreshes; the push
// channel only shortens the wait, polling stays on.
const defaultPollInterval = 3 * time.Second

// ListConversations returns the caller's inbox, one entry per partner, most
// recent activity first. Every call is a fresh fetch; the server owns the
// list state, callers re-poll it on their own cadence.
func (c *Client) ListConversations() (message.Inbox, error) {
	var inbox message.Inbox
	if err := c.do(http.MethodGet, "/v1/messages/conversations", nil, &inbox); err != nil {
		return message.Inbox{}, err
	}
	return inbox, nil
}

// Thread fetches one page of the conversation with partnerID and returns it
// in chronological order, oldest first, ready to render.
func (c *Client) Thread(partnerID string, page int) ([]message.Message, error) {
	var pg message.Page
	path := fmt.Sprintf("/v1/messages/conversations/%s?page=%d&size=%d", partnerID, page, message.DefaultPageSize)
	if err := c.do(http.MethodGet, path, nil, &pg); err != nil {
		return nil, err
	}

	// the server pages newest first
	msgs := make([]message.Message, 0, len(pg.Content))
	for i := len(pg.Content) - 1; i >= 0; i-- {
		msgs = append(msgs, pg.Content[i])
	}
	return msgs, nil
}

// Send delivers content to receiverID.
func (c *Client) Send(receiverID, content string) (message.Message, error) {
	var msg message.Message
	err := c.do(http.MethodPost, "/v1/messages", message.NewMessage{
		ReceiverID: receiverID,
		Content:    content,
	}, &msg)
	if err != nil {
		return message.Message{}, err
	}
	return msg, nil
}

// MarkRead marks the conversation with partnerID as read. It is best-effort;
// a failure is logged and the unread badge catches up on the next poll.
func (c *Client) MarkRead(partnerID string) {
	if err := c.do(http.MethodPost, "/v1/messages/conversations/"+partnerID+"/read", nil, nil); err != nil {
		c.log.Warn(fmt.Sprintf("marking conversation read: %v", err))
	}
}

// UnreadCount returns the caller's total unread message count.
func (c *Client) UnreadCount() (int, error) {
	var data struct {
		UnreadCount int `json:"unread_count"`
	}
	err := c.do(http.MethodGet, "/v1/messages/unread-count", nil, &data)
	return data.UnreadCount, err
}

// ThreadWatcher follows one conversation. It polls on a fixed interval and,
// when the push channel is up, also merges pushed messages; both paths feed
// one deduplicated sink, so a message seen twice renders once.
type ThreadWatcher struct {
	c         *Client
	partnerID string
	sink      *threadSink
	updates   chan []message.Message
	done      chan struct{}
	closeOnce sync.Once

	mu sync.Mutex
	ws *websocket.Conn
}

// WatchThread loads the latest page of the conversation with partnerID and
// keeps following it until Close. Snapshots arrive on Updates in
// chronological order.
func (c *Client) WatchThread(partnerID string) (*ThreadWatcher, error) {
	w := &ThreadWatcher{
		c:         c,
		partnerID: partnerID,
		sink:      newThreadSink(),
		updates:   make(chan []message.Message, 1),
		done:      make(chan struct{}),
	}

	msgs, err := c.Thread(partnerID, 0)
	if err != nil {
		return nil, err
	}
	w.sink.addAll(msgs)
	w.emit()

	go w.poll()
	go w.subscribe()
	return w, nil
}

// Updates delivers thread snapshots; only the latest unseen snapshot is kept.
func (w *ThreadWatcher) Updates() <-chan []message.Message {
	return w.updates
}

// Messages returns the current snapshot.
func (w *ThreadWatcher) Messages() []message.Message {
	return w.sink.messages()
}

func (w *ThreadWatcher) Close() {
	w.closeOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.ws != nil {
			_ = w.ws.Close()
			w.ws = nil
		}
		w.mu.Unlock()
	})
}

func (w *ThreadWatcher) emit() {
	snapshot := w.sink.messages()
	// latest wins; an unread stale snapshot is replaced
	select {
	case w.updates <- snapshot:
	default:
		select {
		case <-w.updates:
		default:
		}
		select {
		case w.updates <- snapshot:
		default:
		}
	}
}

func (w *ThreadWatcher) poll() {
	ticker := time.NewTicker(defaultPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			msgs, err := w.c.Thread(w.partnerID, 0)
			if err != nil {
				w.c.log.Warn(fmt.Sprintf("polling thread: %v", err))
				continue
			}
			if w.sink.addAll(msgs) {
				w.emit()
			}
		}
	}
}

// subscribe joins the inbox push channel. The channel is advisory; any
// failure here just leaves the watcher on polling alone.
func (w *ThreadWatcher) subscribe() {
	wsURL, err := inboxURL(w.c.baseURL)
	if err != nil {
		w.c.log.Warn(fmt.Sprintf("building inbox URL: %v", err))
		return
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+w.c.session.Token())
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		w.c.log.Warn(fmt.Sprintf("joining push channel: %v", err))
		return
	}

	// the watcher may have been closed while the dial was in flight
	w.mu.Lock()
	select {
	case <-w.done:
		w.mu.Unlock()
		_ = conn.Close()
		return
	default:
	}
	w.ws = conn
	w.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
			default:
				w.c.log.Warn(fmt.Sprintf("push channel closed: %v", err))
			}
			return
		}

		var msg message.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			w.c.log.Warn(fmt.Sprintf("decoding pushed message: %v", err))
			continue
		}
		if msg.SenderID != w.partnerID && msg.ReceiverID != w.partnerID {
			continue
		}
		if w.sink.add(msg) {
			w.emit()
		}
	}
}

func inboxURL(baseURL string) (string, error) {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://") + "/v1/messages/inbox", nil
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://") + "/v1/messages/inbox", nil
	}
	return "", errors.New("unsupported base URL scheme")
}
