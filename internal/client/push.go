package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/messenger/internal/proto"
)

// ErrNotConnected is returned by Send while no push connection is up.
var ErrNotConnected = errors.New("push channel not connected")

// PushState is the connection state of the push channel.
type PushState string

const (
	StateDisconnected PushState = "disconnected"
	StateConnecting   PushState = "connecting"
	StateConnected    PushState = "connected"
	StateReconnecting PushState = "reconnecting"
)

// PushConfig tunes reconnects. Zero values take defaults.
type PushConfig struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int // 0 retries forever
	ReadLimit   int64
}

func (c *PushConfig) defaults() {
	if c.BaseDelay == 0 {
		c.BaseDelay = 500 * time.Millisecond
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.ReadLimit == 0 {
		c.ReadLimit = 1 << 20
	}
}

// PushHandler receives what the push channel produces. Calls come from the
// read goroutine, one at a time.
type PushHandler struct {
	OnEvent   func(proto.Outbound)
	OnConnect func()
}

// Push keeps one WebSocket open to /ws and reconnects when it drops.
type Push struct {
	baseURL string
	token   func() string
	cfg     PushConfig
	handler PushHandler
	log     *zerolog.Logger

	mu    sync.Mutex
	conn  *websocket.Conn
	state PushState
}

// NewPush prepares a push channel against baseURL. token is read on every dial.
func NewPush(baseURL string, token func() string, cfg PushConfig, handler PushHandler, logger *zerolog.Logger) *Push {
	cfg.defaults()
	return &Push{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		cfg:     cfg,
		handler: handler,
		log:     logger,
		state:   StateDisconnected,
	}
}

// State returns the current connection state.
func (p *Push) State() PushState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Push) setState(s PushState) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Run connects and keeps reconnecting until ctx is done, the server rejects
// the token, or MaxAttempts consecutive dials fail.
func (p *Push) Run(ctx context.Context) error {
	defer p.setState(StateDisconnected)

	backoff := reconnector{base: p.cfg.BaseDelay, max: p.cfg.MaxDelay, maxAttempts: p.cfg.MaxAttempts}
	p.setState(StateConnecting)
	for {
		conn, err := p.dial(ctx)
		switch {
		case err == nil:
			backoff.reset()
			err = p.serve(ctx, conn)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.log.Warn().Err(err).Msg("push connection lost")
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, ErrUnauthenticated):
			return err
		default:
			p.log.Warn().Err(err).Msg("push dial failed")
		}

		if !backoff.shouldRetry() {
			return fmt.Errorf("push: giving up after %d attempts", backoff.attempt)
		}
		delay := backoff.next()
		p.setState(StateReconnecting)
		p.log.Debug().Dur("delay", delay).Int("attempt", backoff.attempt).Msg("push reconnecting")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}

func (p *Push) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := p.wsURL()
	if err != nil {
		return nil, err
	}
	conn, resp, err := websocket.Dial(ctx, u, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("%w: dial: %v", ErrTransient, err)
	}
	conn.SetReadLimit(p.cfg.ReadLimit)
	return conn, nil
}

func (p *Push) wsURL() (string, error) {
	u, err := url.Parse(p.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"token": {p.token()}}.Encode()
	return u.String(), nil
}

func (p *Push) serve(ctx context.Context, conn *websocket.Conn) error {
	p.mu.Lock()
	p.conn = conn
	p.state = StateConnected
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.conn = nil
		p.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "")
	}()

	p.log.Info().Msg("push connected")
	if p.handler.OnConnect != nil {
		p.handler.OnConnect()
	}

	for {
		var out proto.Outbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			return err
		}
		if out.Type == proto.OutboundTypeError && out.Error != nil {
			p.log.Warn().Str("code", out.Error.Code).Str("msg", out.Error.Msg).Msg("push error from server")
		}
		if p.handler.OnEvent != nil {
			p.handler.OnEvent(out)
		}
	}
}

// Send writes one inbound envelope.
func (p *Push) Send(ctx context.Context, typ string, payload any) error {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	in := proto.Inbound{Type: typ}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		in.Data = raw
	}
	return wsjson.Write(ctx, conn, in)
}

// SendChatOpened tells senderID we have read their messages.
func (p *Push) SendChatOpened(ctx context.Context, conversationID, senderID int64) error {
	return p.Send(ctx, proto.InboundTypeChatOpened, proto.ChatOpenedEvent{
		ConversationID: conversationID,
		SenderID:       senderID,
	})
}

// Ping asks the server for a pong event.
func (p *Push) Ping(ctx context.Context) error {
	return p.Send(ctx, proto.InboundTypePing, nil)
}

type reconnector struct {
	base        time.Duration
	max         time.Duration
	maxAttempts int
	attempt     int
}

func (r *reconnector) shouldRetry() bool {
	return r.maxAttempts == 0 || r.attempt < r.maxAttempts
}

func (r *reconnector) next() time.Duration {
	jitter := time.Duration(rand.Float64() * float64(r.base) * 0.5)
	delay := time.Duration(math.Min(
		float64(r.base)*math.Pow(2, float64(r.attempt))+float64(jitter),
		float64(r.max),
	))
	r.attempt++
	return delay
}

func (r *reconnector) reset() {
	r.attempt = 0
}
