package client

import (
	"context"
	"io/ioutil"
	"log"
	"net/http/httptest"
	"net/mail"
	"testing"
	"time"

	echoapi "github.com/elimuconnect/elimu/apps/api/echo"
	"github.com/elimuconnect/elimu/core"
	"github.com/elimuconnect/elimu/core/message"
	"github.com/elimuconnect/elimu/core/user"
	emailsvc "github.com/elimuconnect/elimu/services/email"
	logsvc "github.com/elimuconnect/elimu/services/logger"
	inmemdb "github.com/elimuconnect/elimu/storage/database/inmem"
)

// startServer brings up the full API over an in-memory store and returns a
// seeder for test accounts.
func startServer(t *testing.T) (*httptest.Server, func(name, email, role, pwd string) user.User) {
	t.Helper()

	conf := &core.Config{
		TestMode:         true,
		AppName:          "ElimuConnect",
		SecretKey:        []byte("test-secret-key"),
		AdminCode:        "OnlyMe@2025",
		FrontendBaseURL:  "http://localhost:3000",
		DefaultFromEmail: mail.Address{Name: "ElimuConnect", Address: "noreply@localhost"},
		Server: core.ServerConfig{
			JWTExpirationDelta:        24 * time.Hour,
			JWTRefreshExpirationDelta: 7 * 24 * time.Hour,
		},
	}
	logger := logsvc.NewConsoleLogger(log.New(ioutil.Discard, "", 0))

	db := inmemdb.NewDB()
	usrRepo := inmemdb.NewUserRepository(db)
	usrSvc := user.NewServiceMock(usrRepo, emailsvc.NewConsoleServiceMock(conf), logger, conf)
	hub := echoapi.NewHub(logger)
	msgSvc := message.NewService(inmemdb.NewMessageRepository(db), usrRepo, hub, logger)

	validate, translator := core.NewValidator()
	user.RegisterValidators(validate, translator)

	server := echoapi.NewServer(&echoapi.Options{
		DisableReqLogs: true,
		Conf:           conf,
		Logger:         logger,
		UserSvc:        usrSvc,
		MessageSvc:     msgSvc,
		Hub:            hub,
		Validate:       validate,
		Translator:     translator,
	})
	srv := httptest.NewServer(server)
	t.Cleanup(srv.Close)

	seed := func(name, email, role, pwd string) user.User {
		usr := user.User{Name: name, Email: email, Role: role}
		usr.SetActive(true)
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("SetPassword(): %v", err)
		}
		usr, err := usrRepo.CreateUser(context.Background(), usr)
		if err != nil {
			t.Fatalf("seeding user: %v", err)
		}
		return usr
	}
	return srv, seed
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	logger := logsvc.NewConsoleLogger(log.New(ioutil.Discard, "", 0))
	return New(baseURL, NewSession(NewMemStorage()), logger)
}

func TestClient_loginAndGuard(t *testing.T) {
	srv, seed := startServer(t)
	seed("Jane Admin", "jane@example.com", user.RoleAdmin, "S3cret!pass")

	c := newTestClient(t, srv.URL)

	// wrong password surfaces as an APIError, session stays signed out
	_, err := c.Login("jane@example.com", "nope")
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("want *APIError; got %v", err)
	}
	if apiErr.StatusCode != 400 {
		t.Errorf("StatusCode = %d; want 400", apiErr.StatusCode)
	}
	if c.Session().Authenticated() {
		t.Error("failed login must not authenticate")
	}

	ident, err := c.Login("jane@example.com", "S3cret!pass")
	if err != nil {
		t.Fatalf("Login(): %v", err)
	}
	// the ROLE_ADMIN claim is kept in canonical form
	if ident.Role != "ADMIN" {
		t.Errorf("Role = %q; want ADMIN", ident.Role)
	}
	if ident.Email != "jane@example.com" {
		t.Errorf("Email = %q", ident.Email)
	}

	if v := CheckAccess(c.Session(), "ADMIN"); v.Decision != Granted {
		t.Errorf("ADMIN allow-list: Decision = %v; want Granted", v.Decision)
	}
	v := CheckAccess(c.Session(), "TEACHER")
	if v.Decision != Denied {
		t.Errorf("TEACHER allow-list: Decision = %v; want Denied", v.Decision)
	}
	if v.Role != "ADMIN" {
		t.Errorf("denied verdict Role = %q; want ADMIN", v.Role)
	}

	me, err := c.Me()
	if err != nil {
		t.Fatalf("Me(): %v", err)
	}
	if me.Email != "jane@example.com" {
		t.Errorf("Me().Email = %q", me.Email)
	}

	c.Logout()
	if c.Session().Authenticated() {
		t.Error("want signed out after Logout")
	}
	if v := CheckAccess(c.Session(), "ADMIN"); v.Decision != Redirect {
		t.Errorf("after logout: Decision = %v; want Redirect", v.Decision)
	}
}

func TestClient_messaging(t *testing.T) {
	srv, seed := startServer(t)
	seed("Alice Admin", "alice@example.com", user.RoleAdmin, "S3cret!pass")
	bob := seed("Bob Teacher", "bob@example.com", user.RoleTeacher, "S3cret!pass")

	alice := newTestClient(t, srv.URL)
	if _, err := alice.Login("alice@example.com", "S3cret!pass"); err != nil {
		t.Fatalf("Login(): %v", err)
	}

	sent, err := alice.Send(bob.ID, "hello")
	if err != nil {
		t.Fatalf("Send(): %v", err)
	}
	if sent.ID == "" || sent.Content != "hello" {
		t.Fatalf("sent = %+v", sent)
	}

	// the thread renders oldest first; the new message is last
	msgs, err := alice.Thread(bob.ID, 0)
	if err != nil {
		t.Fatalf("Thread(): %v", err)
	}
	if len(msgs) != 1 || msgs[len(msgs)-1].ID != sent.ID {
		t.Fatalf("thread = %+v; want the sent message last", msgs)
	}

	inbox, err := alice.ListConversations()
	if err != nil {
		t.Fatalf("ListConversations(): %v", err)
	}
	if len(inbox.Conversations) != 1 || inbox.Conversations[0].PartnerID != bob.ID {
		t.Fatalf("inbox = %+v", inbox)
	}
	if inbox.Conversations[0].LastMessage != "hello" {
		t.Errorf("LastMessage = %q", inbox.Conversations[0].LastMessage)
	}

	// the receiver sees one unread until they mark the conversation read
	bobc := newTestClient(t, srv.URL)
	if _, err := bobc.Login("bob@example.com", "S3cret!pass"); err != nil {
		t.Fatalf("Login(): %v", err)
	}
	count, err := bobc.UnreadCount()
	if err != nil {
		t.Fatalf("UnreadCount(): %v", err)
	}
	if count != 1 {
		t.Fatalf("unread = %d; want 1", count)
	}
	bobc.MarkRead(msgs[0].SenderID)
	if count, _ = bobc.UnreadCount(); count != 0 {
		t.Errorf("unread after MarkRead = %d; want 0", count)
	}
}

func TestClient_conversationListRefresh(t *testing.T) {
	srv, seed := startServer(t)
	aliceUsr := seed("Alice Admin", "alice@example.com", user.RoleAdmin, "S3cret!pass")
	seed("Bob Teacher", "bob@example.com", user.RoleTeacher, "S3cret!pass")

	alice := newTestClient(t, srv.URL)
	if _, err := alice.Login("alice@example.com", "S3cret!pass"); err != nil {
		t.Fatalf("Login(): %v", err)
	}
	bob := newTestClient(t, srv.URL)
	if _, err := bob.Login("bob@example.com", "S3cret!pass"); err != nil {
		t.Fatalf("Login(): %v", err)
	}

	inbox, err := alice.ListConversations()
	if err != nil {
		t.Fatalf("ListConversations(): %v", err)
	}
	if len(inbox.Conversations) != 0 {
		t.Fatalf("inbox = %+v; want empty", inbox)
	}

	// a partner's send shows up on the very next list call
	if _, err := bob.Send(aliceUsr.ID, "hello"); err != nil {
		t.Fatalf("Send(): %v", err)
	}
	inbox, err = alice.ListConversations()
	if err != nil {
		t.Fatalf("ListConversations(): %v", err)
	}
	if len(inbox.Conversations) != 1 {
		t.Fatalf("conversations = %d; want 1 after partner's send", len(inbox.Conversations))
	}
	if inbox.Conversations[0].LastMessage != "hello" || inbox.TotalUnread != 1 {
		t.Errorf("inbox = %+v; want the new message and one unread", inbox)
	}

	// further sends keep refreshing the preview and the unread count
	if _, err := bob.Send(aliceUsr.ID, "you there?"); err != nil {
		t.Fatalf("Send(): %v", err)
	}
	inbox, err = alice.ListConversations()
	if err != nil {
		t.Fatalf("ListConversations(): %v", err)
	}
	if inbox.Conversations[0].LastMessage != "you there?" || inbox.TotalUnread != 2 {
		t.Errorf("inbox = %+v; want the latest preview and two unread", inbox)
	}
}

func TestClient_watchThreadCloseDuringSubscribe(t *testing.T) {
	srv, seed := startServer(t)
	seed("Alice Admin", "alice@example.com", user.RoleAdmin, "S3cret!pass")
	bobUsr := seed("Bob Teacher", "bob@example.com", user.RoleTeacher, "S3cret!pass")

	alice := newTestClient(t, srv.URL)
	if _, err := alice.Login("alice@example.com", "S3cret!pass"); err != nil {
		t.Fatalf("Login(): %v", err)
	}

	// closing right away races the websocket dial; the late connection must be
	// dropped instead of lingering until the server ping timeout
	watcher, err := alice.WatchThread(bobUsr.ID)
	if err != nil {
		t.Fatalf("WatchThread(): %v", err)
	}
	watcher.Close()

	time.Sleep(300 * time.Millisecond)
	watcher.mu.Lock()
	ws := watcher.ws
	watcher.mu.Unlock()
	if ws != nil {
		t.Error("connection stored after Close; want it dropped")
	}
}

func TestClient_watchThreadPush(t *testing.T) {
	srv, seed := startServer(t)
	seed("Alice Admin", "alice@example.com", user.RoleAdmin, "S3cret!pass")
	bobUsr := seed("Bob Teacher", "bob@example.com", user.RoleTeacher, "S3cret!pass")

	alice := newTestClient(t, srv.URL)
	aliceIdent, err := alice.Login("alice@example.com", "S3cret!pass")
	if err != nil {
		t.Fatalf("Login(): %v", err)
	}
	bob := newTestClient(t, srv.URL)
	if _, err := bob.Login("bob@example.com", "S3cret!pass"); err != nil {
		t.Fatalf("Login(): %v", err)
	}

	watcher, err := alice.WatchThread(bobUsr.ID)
	if err != nil {
		t.Fatalf("WatchThread(): %v", err)
	}
	defer watcher.Close()

	// drain the initial (empty) snapshot
	select {
	case <-watcher.Updates():
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}

	// give the push subscription a moment to connect
	time.Sleep(200 * time.Millisecond)

	sent, err := bob.Send(aliceIdent.ID, "hello")
	if err != nil {
		t.Fatalf("Send(): %v", err)
	}

	// the pushed message lands well before the next poll tick
	var snapshot []message.Message
	select {
	case snapshot = <-watcher.Updates():
	case <-time.After(2 * time.Second):
		t.Fatal("no pushed update")
	}
	if len(snapshot) != 1 || snapshot[0].ID != sent.ID {
		t.Fatalf("snapshot = %+v; want the pushed message once", snapshot)
	}

	// a later poll of the same message must not duplicate it
	if got := watcher.Messages(); len(got) != 1 {
		t.Errorf("messages = %d; want 1 after dedupe", len(got))
	}
}
