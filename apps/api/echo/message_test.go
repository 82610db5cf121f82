package echoapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"

	"github.com/elimuconnect/elimu/core/message"
	"github.com/elimuconnect/elimu/core/user"
)

func TestMessageAPI_send(t *testing.T) {
	app := setup(t)
	alice := app.seedUser(t, "Alice Admin", "alice@example.com", user.RoleAdmin, "S3cret!pass", true)
	bob := app.seedUser(t, "Bob Teacher", "bob@example.com", user.RoleTeacher, "S3cret!pass", true)

	body := map[string]string{"receiver_id": bob.ID, "content": "hello"}
	rec, env := app.request(t, http.MethodPost, "/v1/messages", getToken(t, alice), body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("code = %d; want 201; body: %s", rec.Code, rec.Body)
	}
	assert.Equal(t, "message sent", env.Message)

	var msg message.Message
	if err := json.Unmarshal(env.Data, &msg); err != nil {
		t.Fatalf("decoding data: %v", err)
	}
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "hello", msg.Content)
	assert.Equal(t, "Alice Admin", msg.SenderName)
	assert.Equal(t, "Bob Teacher", msg.ReceiverName)
	assert.False(t, msg.Read)
}

func TestMessageAPI_send_invalid(t *testing.T) {
	app := setup(t)
	alice := app.seedUser(t, "Alice Admin", "alice@example.com", user.RoleAdmin, "S3cret!pass", true)
	token := getToken(t, alice)

	tests := []struct {
		name string
		body map[string]string
	}{
		{name: "missing content", body: map[string]string{"receiver_id": "some-id"}},
		{name: "missing receiver", body: map[string]string{"content": "hello"}},
		{name: "unknown receiver", body: map[string]string{"receiver_id": "ghost", "content": "hello"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := app.request(t, http.MethodPost, "/v1/messages", token, tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("code = %d; want 400; body: %s", rec.Code, rec.Body)
			}
			if env.Success {
				t.Error("envelope success should be false")
			}
		})
	}
}

func TestMessageAPI_conversation(t *testing.T) {
	app := setup(t)
	alice := app.seedUser(t, "Alice Admin", "alice@example.com", user.RoleAdmin, "S3cret!pass", true)
	bob := app.seedUser(t, "Bob Teacher", "bob@example.com", user.RoleTeacher, "S3cret!pass", true)
	aliceToken, bobToken := getToken(t, alice), getToken(t, bob)

	for i, content := range []string{"first", "second", "third"} {
		token, receiver := aliceToken, bob.ID
		if i%2 == 1 {
			token, receiver = bobToken, alice.ID
		}
		body := map[string]string{"receiver_id": receiver, "content": content}
		rec, _ := app.request(t, http.MethodPost, "/v1/messages", token, body)
		if rec.Code != http.StatusCreated {
			t.Fatalf("send %q: code = %d; want 201", content, rec.Code)
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec, env := app.request(t, http.MethodGet, "/v1/messages/conversations/"+bob.ID, aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d; want 200; body: %s", rec.Code, rec.Body)
	}
	var pg message.Page
	if err := json.Unmarshal(env.Data, &pg); err != nil {
		t.Fatalf("decoding data: %v", err)
	}
	if pg.Total != 3 || len(pg.Content) != 3 {
		t.Fatalf("total = %d, len = %d; want 3, 3", pg.Total, len(pg.Content))
	}
	// newest first
	assert.Equal(t, "third", pg.Content[0].Content)
	assert.Equal(t, "first", pg.Content[2].Content)

	// paging
	rec, env = app.request(t, http.MethodGet, "/v1/messages/conversations/"+bob.ID+"?page=1&size=2", aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("page 1: code = %d; want 200", rec.Code)
	}
	if err := json.Unmarshal(env.Data, &pg); err != nil {
		t.Fatalf("decoding data: %v", err)
	}
	if len(pg.Content) != 1 || pg.Content[0].Content != "first" {
		t.Errorf("page 1 = %+v; want the oldest message", pg.Content)
	}
}

func TestMessageAPI_conversationsAndRead(t *testing.T) {
	app := setup(t)
	alice := app.seedUser(t, "Alice Admin", "alice@example.com", user.RoleAdmin, "S3cret!pass", true)
	bob := app.seedUser(t, "Bob Teacher", "bob@example.com", user.RoleTeacher, "S3cret!pass", true)
	aliceToken, bobToken := getToken(t, alice), getToken(t, bob)

	for _, content := range []string{"hi alice", "you there?"} {
		body := map[string]string{"receiver_id": alice.ID, "content": content}
		rec, _ := app.request(t, http.MethodPost, "/v1/messages", bobToken, body)
		if rec.Code != http.StatusCreated {
			t.Fatalf("send: code = %d; want 201", rec.Code)
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec, env := app.request(t, http.MethodGet, "/v1/messages/conversations", aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("conversations: code = %d; want 200; body: %s", rec.Code, rec.Body)
	}
	var inbox message.Inbox
	if err := json.Unmarshal(env.Data, &inbox); err != nil {
		t.Fatalf("decoding data: %v", err)
	}
	if len(inbox.Conversations) != 1 {
		t.Fatalf("conversations = %d; want 1", len(inbox.Conversations))
	}
	conv := inbox.Conversations[0]
	assert.Equal(t, bob.ID, conv.PartnerID)
	assert.Equal(t, "Bob Teacher", conv.PartnerName)
	assert.Equal(t, "you there?", conv.LastMessage)
	assert.Equal(t, 2, conv.UnreadCount)
	assert.Equal(t, 2, inbox.TotalUnread)

	rec, env = app.request(t, http.MethodGet, "/v1/messages/unread-count", aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unread-count: code = %d; want 200", rec.Code)
	}
	var count map[string]int
	if err := json.Unmarshal(env.Data, &count); err != nil {
		t.Fatalf("decoding data: %v", err)
	}
	assert.Equal(t, 2, count["unread_count"])

	rec, _ = app.request(t, http.MethodPost, "/v1/messages/conversations/"+bob.ID+"/read", aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("mark read: code = %d; want 200", rec.Code)
	}
	rec, env = app.request(t, http.MethodGet, "/v1/messages/unread-count", aliceToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unread-count: code = %d; want 200", rec.Code)
	}
	if err := json.Unmarshal(env.Data, &count); err != nil {
		t.Fatalf("decoding data: %v", err)
	}
	assert.Equal(t, 0, count["unread_count"])
}

func TestMessageAPI_inboxPush(t *testing.T) {
	app := setup(t)
	alice := app.seedUser(t, "Alice Admin", "alice@example.com", user.RoleAdmin, "S3cret!pass", true)
	bob := app.seedUser(t, "Bob Teacher", "bob@example.com", user.RoleTeacher, "S3cret!pass", true)

	srv := httptest.NewServer(app.server)
	defer srv.Close()

	wsURL := strings.Replace(srv.URL, "http", "ws", 1) + "/v1/messages/inbox"
	header := http.Header{"Authorization": []string{"Bearer " + getToken(t, bob)}}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dialing inbox: %v", err)
	}
	defer conn.Close()

	// wait for the hub to register the connection
	deadline := time.Now().Add(time.Second)
	for app.hub.ConnectionCount(bob.ID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("connection never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	body := map[string]string{"receiver_id": bob.ID, "content": "hello"}
	rec, env := app.request(t, http.MethodPost, "/v1/messages", getToken(t, alice), body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("send: code = %d; want 201; body: %s", rec.Code, rec.Body)
	}
	var sent message.Message
	if err := json.Unmarshal(env.Data, &sent); err != nil {
		t.Fatalf("decoding data: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var pushed message.Message
	if err := conn.ReadJSON(&pushed); err != nil {
		t.Fatalf("reading pushed message: %v", err)
	}
	assert.Equal(t, sent.ID, pushed.ID, "push carries the id the REST response returned")
	assert.Equal(t, "hello", pushed.Content)
}

func TestMessageAPI_requiresAuth(t *testing.T) {
	app := setup(t)

	for _, path := range []string{
		"/v1/messages/conversations",
		"/v1/messages/unread-count",
	} {
		rec, _ := app.request(t, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: code = %d; want 401", path, rec.Code)
		}
	}
	rec, _ := app.request(t, http.MethodPost, "/v1/messages", "", map[string]string{"receiver_id": "x", "content": "hi"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("send: code = %d; want 401", rec.Code)
	}
}
