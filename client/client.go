package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/elimuconnect/elimu/core"
	"github.com/elimuconnect/elimu/core/user"
)

// APIError is a non-2xx response decoded from the envelope.
type APIError struct {
	StatusCode int
	Message    string
	Fields     map[string]string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.StatusCode, e.Message)
}

// apiResponse is the server's JSON envelope.
type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type Client struct {
	baseURL string
	http    *http.Client
	session *Session
	log     core.Logger
}

func New(baseURL string, session *Session, log core.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
		session: session,
		log:     log,
	}
}

func (c *Client) Session() *Session {
	return c.session
}

// do issues a request and decodes the envelope's data into out (when non-nil).
func (c *Client) do(method, path string, body, out interface{}) error {
	var reqBody *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshaling request body")
		}
		reqBody = bytes.NewBuffer(data)
	} else {
		reqBody = new(bytes.Buffer)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.session.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "sending request")
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode == http.StatusNoContent {
		return nil
	}

	var envelope apiResponse
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return errors.Wrap(err, "decoding response")
	}

	if res.StatusCode >= http.StatusBadRequest || !envelope.Success {
		apiErr := &APIError{StatusCode: res.StatusCode, Message: envelope.Message}
		if len(envelope.Data) > 0 {
			_ = json.Unmarshal(envelope.Data, &apiErr.Fields)
		}
		return apiErr
	}

	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return errors.Wrap(err, "decoding response data")
		}
	}
	return nil
}

// tokenClaims mirrors the server token payload.
type tokenClaims struct {
	jwt.StandardClaims
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Login authenticates, decodes the token claims locally and stores the
// session. The role claim arrives in authority form and is normalized before
// it is kept.
func (c *Client) Login(email, password string) (Identity, error) {
	var data struct {
		Token string `json:"token"`
	}
	err := c.do(http.MethodPost, "/v1/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &data)
	if err != nil {
		return Identity{}, err
	}

	claims := new(tokenClaims)
	if _, _, err := new(jwt.Parser).ParseUnverified(data.Token, claims); err != nil {
		return Identity{}, errors.Wrap(err, "decoding token claims")
	}

	ident := Identity{
		ID:    claims.Subject,
		Name:  claims.Name,
		Email: claims.Email,
		Role:  user.NormalizeRole(claims.Role),
	}
	if err := c.session.Set(data.Token, ident); err != nil {
		return Identity{}, errors.Wrap(err, "storing session")
	}
	return ident, nil
}

// Logout clears the local session; no server call is needed.
func (c *Client) Logout() {
	c.session.Clear()
}

// Me fetches the caller's profile from the server.
func (c *Client) Me() (user.User, error) {
	var usr user.User
	err := c.do(http.MethodGet, "/v1/auth/me", nil, &usr)
	return usr, err
}
