package client

import (
	"testing"
	"time"

	"github.com/elimuconnect/elimu/core/message"
)

func TestThreadSink_dedupe(t *testing.T) {
	sink := newThreadSink()
	now := time.Now().UTC()

	msg := message.Message{ID: "m1", Content: "hello", CreatedAt: now}
	if !sink.add(msg) {
		t.Error("first add should report new")
	}
	// same message arriving over the push channel and a poll
	if sink.add(msg) {
		t.Error("duplicate add should report not-new")
	}
	if sink.addAll([]message.Message{msg}) {
		t.Error("duplicate addAll should report no change")
	}

	msgs := sink.messages()
	if len(msgs) != 1 {
		t.Fatalf("messages = %d; want 1", len(msgs))
	}
	if msgs[0].Content != "hello" {
		t.Errorf("content = %q", msgs[0].Content)
	}
}

func TestThreadSink_ordering(t *testing.T) {
	sink := newThreadSink()
	now := time.Now().UTC()

	sink.addAll([]message.Message{
		{ID: "m3", Content: "third", CreatedAt: now.Add(2 * time.Second)},
		{ID: "m1", Content: "first", CreatedAt: now},
		{ID: "m2", Content: "second", CreatedAt: now.Add(time.Second)},
	})

	msgs := sink.messages()
	want := []string{"first", "second", "third"}
	for i, content := range want {
		if msgs[i].Content != content {
			t.Errorf("msgs[%d] = %q; want %q", i, msgs[i].Content, content)
		}
	}
}

func TestThreadSink_orderingTieBreak(t *testing.T) {
	sink := newThreadSink()
	now := time.Now().UTC()

	// equal timestamps fall back to id order so snapshots stay stable
	sink.add(message.Message{ID: "b", CreatedAt: now})
	sink.add(message.Message{ID: "a", CreatedAt: now})
	sink.add(message.Message{ID: "c", CreatedAt: now})

	msgs := sink.messages()
	for i, id := range []string{"a", "b", "c"} {
		if msgs[i].ID != id {
			t.Errorf("msgs[%d].ID = %q; want %q", i, msgs[i].ID, id)
		}
	}
}
