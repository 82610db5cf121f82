package echoapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io/ioutil"
	"log"
	"net/http"
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

type testApp struct {
	server  echoapi.Server
	hub     *echoapi.Hub
	usrRepo user.Repository
	usrSvc  user.Service
	msgSvc  message.Service
	conf    *core.Config
}

func setup(t *testing.T) *testApp {
	t.Helper()
	emailsvc.ClearSentMessages()

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
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	usrSvc := user.NewServiceMock(usrRepo, mailSvc, logger, conf)

	hub := echoapi.NewHub(logger)
	msgSvc := message.NewService(inmemdb.NewMessageRepository(db), usrRepo, hub, logger)

	validate, translator := core.NewValidator()
	user.RegisterValidators(validate, translator)

	server := echoapi.NewServer(
		&echoapi.Options{
			DisableReqLogs: true,
			Conf:           conf,
			Logger:         logger,
			UserSvc:        usrSvc,
			MessageSvc:     msgSvc,
			Hub:            hub,
			Validate:       validate,
			Translator:     translator,
		},
	)
	return &testApp{
		server:  server,
		hub:     hub,
		usrRepo: usrRepo,
		usrSvc:  usrSvc,
		msgSvc:  msgSvc,
		conf:    conf,
	}
}

// envelope mirrors the response wrapper with raw data for per-test decoding.
type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (app *testApp) request(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	app.server.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 && rec.Code != http.StatusNoContent {
		_ = json.Unmarshal(rec.Body.Bytes(), &env)
	}
	return rec, env
}

// seedUser writes an active (or not) account straight to the repository.
func (app *testApp) seedUser(t *testing.T, name, email, role, pwd string, active bool) user.User {
	t.Helper()

	usr := user.User{Name: name, Email: email, Role: role}
	usr.SetActive(active)
	if err := usr.SetPassword(pwd); err != nil {
		t.Fatalf("SetPassword(): %v", err)
	}
	usr, err := app.usrRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	return usr
}

func getToken(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(echoapi.GetUserClaims(usr))
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}
