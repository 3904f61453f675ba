package client

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/messenger/internal/chatsync"
	"github.com/vovakirdan/messenger/internal/proto"
)

// ErrSessionClosed is returned by calls made after Close.
var ErrSessionClosed = errors.New("session closed")

const inputBuffer = 64

// pulled is the completion of a Refresh effect.
type pulled struct {
	conversations []chatsync.Persisted
	presenceSeq   uint64
	err           error
}

// refreshRequest asks the loop for a pull outside of a reducer effect.
type refreshRequest struct{}

// Session owns the conversation cache of one signed-in user. All state
// changes happen on a single goroutine; network results and push events are
// posted to it and applied one at a time.
type Session struct {
	api  *API
	push *Push
	log  *zerolog.Logger

	inputs  chan any
	updates chan struct{}

	mu    sync.RWMutex
	state chatsync.State

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	// owned by the loop
	refreshing   bool
	refreshAgain bool
}

// SessionOption configures a Session.
type SessionOption func(*sessionOptions)

type sessionOptions struct {
	push     bool
	pushConf PushConfig
}

// WithoutPush runs the session on pulls only.
func WithoutPush() SessionOption {
	return func(o *sessionOptions) { o.push = false }
}

// WithPushConfig overrides reconnect tuning.
func WithPushConfig(cfg PushConfig) SessionOption {
	return func(o *sessionOptions) { o.pushConf = cfg }
}

// NewSession builds a session for self. api must already carry a token.
func NewSession(api *API, self chatsync.User, logger *zerolog.Logger, opts ...SessionOption) *Session {
	o := sessionOptions{push: true}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Session{
		api:     api,
		log:     logger,
		inputs:  make(chan any, inputBuffer),
		updates: make(chan struct{}, 1),
		state:   chatsync.New(self),
	}
	if o.push {
		s.push = NewPush(api.BaseURL(), api.Token, o.pushConf, PushHandler{
			OnEvent:   s.onPush,
			OnConnect: func() { s.post(refreshRequest{}) },
		}, logger)
	}
	return s
}

// Start launches the session. The first pull is issued immediately; every
// push (re)connect triggers another one.
func (s *Session) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()

	if s.push != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.push.Run(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Error().Err(err).Msg("push channel stopped")
			}
		}()
	}

	s.post(refreshRequest{})
}

// Close stops the session. Results still in flight are dropped.
func (s *Session) Close() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}

// State returns the latest state. The value is immutable and safe to keep.
func (s *Session) State() chatsync.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Updates signals after every applied event. Signals coalesce.
func (s *Session) Updates() <-chan struct{} { return s.updates }

// PushState reports the push connection state.
func (s *Session) PushState() PushState {
	if s.push == nil {
		return StateDisconnected
	}
	return s.push.State()
}

// Open makes the conversation with peerID the active one.
func (s *Session) Open(peerID int64) {
	s.post(chatsync.ConversationOpened{PeerID: peerID})
}

// CloseConversation leaves the active conversation.
func (s *Session) CloseConversation() {
	s.post(chatsync.ConversationClosed{})
}

// Search looks users up and adds placeholders for new contacts.
func (s *Session) Search(ctx context.Context, query string) ([]chatsync.User, error) {
	users, err := s.api.SearchUsers(ctx, strings.TrimSpace(query))
	if err != nil {
		return nil, err
	}
	found := usersFromProto(users)
	s.post(chatsync.SearchResults{Users: found})
	return found, nil
}

// ClearSearch drops placeholders.
func (s *Session) ClearSearch() {
	s.post(chatsync.SearchCleared{})
}

// Send posts text to recipientID, reusing the known conversation id if any.
func (s *Session) Send(ctx context.Context, recipientID int64, text string) (chatsync.Message, error) {
	if s.ctx != nil && s.ctx.Err() != nil {
		return chatsync.Message{}, ErrSessionClosed
	}
	req := proto.SendMessageRequest{RecipientID: recipientID, Text: text}
	recipient := chatsync.User{ID: recipientID}
	if e, ok := s.State().EntryFor(recipientID); ok {
		recipient = e.Peer()
		if p, ok := e.(chatsync.Persisted); ok {
			id := p.ID
			req.ConversationID = &id
		}
	}

	resp, err := s.api.Send(ctx, req)
	if err != nil {
		return chatsync.Message{}, err
	}
	m := messageFromProto(resp.Message)
	s.post(chatsync.MessageSent{Message: m, Recipient: recipient})
	return m, nil
}

// Refresh requests a pull.
func (s *Session) Refresh() {
	s.post(refreshRequest{})
}

func (s *Session) post(in any) {
	if s.ctx == nil {
		return
	}
	select {
	case s.inputs <- in:
	case <-s.ctx.Done():
	}
}

func (s *Session) loop() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case in := <-s.inputs:
			s.handle(in)
		}
	}
}

func (s *Session) handle(in any) {
	switch in := in.(type) {
	case refreshRequest:
		s.refresh()
	case pulled:
		s.refreshing = false
		if in.err != nil {
			s.log.Warn().Err(in.err).Msg("pull failed; keeping cached conversations")
		} else {
			s.apply(chatsync.PullCompleted{Conversations: in.conversations, PresenceSeq: in.presenceSeq})
		}
		if s.refreshAgain {
			s.refreshAgain = false
			s.refresh()
		}
	case chatsync.Event:
		s.apply(in)
	}
}

func (s *Session) apply(ev chatsync.Event) {
	s.mu.Lock()
	next, effects := chatsync.Reduce(s.state, ev)
	s.state = next
	s.mu.Unlock()

	select {
	case s.updates <- struct{}{}:
	default:
	}
	for _, eff := range effects {
		s.run(eff)
	}
}

func (s *Session) run(eff chatsync.Effect) {
	switch eff := eff.(type) {
	case chatsync.Refresh:
		s.refresh()
	case chatsync.CheckUnread:
		s.async(func(ctx context.Context) {
			unread, err := s.api.HasUnread(ctx, eff.ConversationID, eff.SenderID)
			if err != nil {
				s.log.Warn().Err(err).Int64("conversation_id", eff.ConversationID).Msg("unread check failed")
			}
			s.post(chatsync.UnreadChecked{
				ConversationID: eff.ConversationID,
				Token:          eff.Token,
				HasUnread:      unread,
				Err:            err,
			})
		})
	case chatsync.MarkRead:
		s.async(func(ctx context.Context) {
			if err := s.api.MarkRead(ctx, eff.ConversationID, eff.SenderID, eff.UpTo); err != nil {
				s.log.Warn().Err(err).Int64("conversation_id", eff.ConversationID).Msg("mark read failed")
			}
		})
	case chatsync.EmitChatOpened:
		if s.push == nil {
			return
		}
		s.async(func(ctx context.Context) {
			if err := s.push.SendChatOpened(ctx, eff.ConversationID, eff.SenderID); err != nil {
				s.log.Warn().Err(err).Int64("conversation_id", eff.ConversationID).Msg("chat-opened not sent")
			}
		})
	}
}

// refresh starts a pull unless one is running, in which case one more
// runs after it.
func (s *Session) refresh() {
	if s.refreshing {
		s.refreshAgain = true
		return
	}
	s.refreshing = true
	seq := s.State().PresenceSeq
	s.async(func(ctx context.Context) {
		convs, err := s.api.Conversations(ctx)
		s.post(pulled{conversations: conversationsFromProto(convs), presenceSeq: seq, err: err})
	})
}

func (s *Session) async(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn(s.ctx)
	}()
}

func (s *Session) onPush(out proto.Outbound) {
	if out.Type != proto.OutboundTypeEvent {
		return
	}
	ev, err := pushEvent(out)
	if err != nil {
		s.log.Warn().Err(err).Str("event", out.Event).Msg("bad push payload")
		return
	}
	if ev != nil {
		s.post(ev)
	}
}

func pushEvent(out proto.Outbound) (chatsync.Event, error) {
	switch out.Event {
	case proto.EventNewMessage:
		var p proto.NewMessageEvent
		if err := json.Unmarshal(out.Data, &p); err != nil {
			return nil, err
		}
		ev := chatsync.MessageReceived{Message: messageFromProto(p.Message)}
		if p.Sender != nil {
			u := userFromProto(*p.Sender)
			ev.Sender = &u
		}
		return ev, nil
	case proto.EventChatOpened:
		var p proto.ChatOpenedEvent
		if err := json.Unmarshal(out.Data, &p); err != nil {
			return nil, err
		}
		return chatsync.PeerOpened{ConversationID: p.ConversationID, SenderID: p.SenderID}, nil
	case proto.EventAddOnlineUser, proto.EventRemoveOfflineUser:
		var p proto.PresenceEvent
		if err := json.Unmarshal(out.Data, &p); err != nil {
			return nil, err
		}
		return chatsync.PresenceChanged{UserID: p.UserID, Online: out.Event == proto.EventAddOnlineUser}, nil
	default:
		return nil, nil
	}
}
