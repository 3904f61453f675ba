package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/vovakirdan/messenger/internal/proto"
)

const defaultTimeout = 15 * time.Second

var (
	// ErrTransient wraps failures where the request never got an answer.
	ErrTransient = errors.New("transient network error")
	// ErrUnauthenticated is returned for 401 responses.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// IsForbidden reports whether err is a 403 from the server.
func IsForbidden(err error) bool { return hasStatus(err, http.StatusForbidden) }

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool { return hasStatus(err, http.StatusNotFound) }

func hasStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// API is a typed client for the REST surface.
type API struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
}

type APIOption func(*API)

func WithHTTPClient(c *http.Client) APIOption {
	return func(a *API) { a.httpClient = c }
}

func WithToken(token string) APIOption {
	return func(a *API) { a.token = token }
}

// NewAPI creates a client for the server at baseURL.
func NewAPI(baseURL string, opts ...APIOption) *API {
	a := &API{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BaseURL returns the server address the client talks to.
func (a *API) BaseURL() string { return a.baseURL }

// SetToken replaces the bearer token.
func (a *API) SetToken(token string) {
	a.mu.Lock()
	a.token = token
	a.mu.Unlock()
}

// Token returns the current bearer token.
func (a *API) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

// Register creates an account and stores the returned token.
func (a *API) Register(ctx context.Context, username, password string) (*proto.AuthResponse, error) {
	return a.authenticate(ctx, "/api/register", username, password)
}

// Login signs in and stores the returned token.
func (a *API) Login(ctx context.Context, username, password string) (*proto.AuthResponse, error) {
	return a.authenticate(ctx, "/api/login", username, password)
}

func (a *API) authenticate(ctx context.Context, path, username, password string) (*proto.AuthResponse, error) {
	var resp proto.AuthResponse
	creds := proto.Credentials{Username: username, Password: password}
	if err := a.do(ctx, http.MethodPost, path, nil, creds, &resp); err != nil {
		return nil, err
	}
	a.SetToken(resp.Token)
	return &resp, nil
}

// Conversations lists every conversation of the signed-in user.
func (a *API) Conversations(ctx context.Context) ([]proto.Conversation, error) {
	var out []proto.Conversation
	if err := a.do(ctx, http.MethodGet, "/api/conversations", nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchUsers finds users by name.
func (a *API) SearchUsers(ctx context.Context, query string) ([]proto.User, error) {
	var out []proto.User
	q := url.Values{"q": {query}}
	if err := a.do(ctx, http.MethodGet, "/api/users/search", q, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Send posts a message. A nil conversationID lets the server resolve it.
func (a *API) Send(ctx context.Context, req proto.SendMessageRequest) (*proto.SendMessageResponse, error) {
	var out proto.SendMessageResponse
	if err := a.do(ctx, http.MethodPost, "/api/messages", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkRead marks senderID's messages read, bounded by upTo when set.
func (a *API) MarkRead(ctx context.Context, conversationID, senderID int64, upTo *time.Time) error {
	req := proto.MarkReadRequest{ConversationID: conversationID, SenderID: senderID, UpTo: upTo}
	return a.do(ctx, http.MethodPut, "/api/messages", nil, req, nil)
}

// HasUnread reports whether senderID has unread messages in the conversation.
func (a *API) HasUnread(ctx context.Context, conversationID, senderID int64) (bool, error) {
	var out bool
	q := url.Values{
		"conversationId": {strconv.FormatInt(conversationID, 10)},
		"senderId":       {strconv.FormatInt(senderID, 10)},
	}
	if err := a.do(ctx, http.MethodGet, "/api/messages", q, nil, &out); err != nil {
		return false, err
	}
	return out, nil
}

func (a *API) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := a.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := a.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s %s: %v", ErrTransient, method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", ErrTransient, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", ErrUnauthenticated, errorMessage(data, resp.Status))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(data, resp.Status)}
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func errorMessage(data []byte, fallback string) string {
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return body.Error
	}
	return fallback
}
