package client

import (
	"sort"
	"sync"

	"github.com/elimuconnect/elimu/core/message"
)

// threadSink merges messages arriving from polling and the push channel.
// Messages are deduplicated by id, so the same message delivered over both
// channels renders exactly once.
type threadSink struct {
	mu   sync.Mutex
	byID map[string]message.Message
}

func newThreadSink() *threadSink {
	return &threadSink{byID: make(map[string]message.Message)}
}

// add merges msg in; it reports whether the message was new.
func (s *threadSink) add(msg message.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[msg.ID]; ok {
		return false
	}
	s.byID[msg.ID] = msg
	return true
}

func (s *threadSink) addAll(msgs []message.Message) bool {
	var changed bool
	for _, msg := range msgs {
		if s.add(msg) {
			changed = true
		}
	}
	return changed
}

// messages returns the thread in chronological order, oldest first; id breaks
// creation-time ties so the order is stable.
func (s *threadSink) messages() []message.Message {
	s.mu.Lock()
	msgs := make([]message.Message, 0, len(s.byID))
	for _, msg := range s.byID {
		msgs = append(msgs, msg)
	}
	s.mu.Unlock()

	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt.Equal(msgs[j].CreatedAt) {
			return msgs[i].ID < msgs[j].ID
		}
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs
}
