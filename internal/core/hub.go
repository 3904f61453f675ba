package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/messenger/internal/presence"
)

const presenceTimeout = 3 * time.Second

// delivery is an event addressed to one client, to every client of a user,
// or, when broadcast is set, to everyone except userID.
type delivery struct {
	client    *Client
	userID    int64
	event     *Event
	broadcast bool
}

// presenceOp is one connect or disconnect waiting for the tracker.
// conns is the user's local connection count right after the change.
type presenceOp struct {
	userID  int64
	connect bool
	conns   int
	// announce is false for disconnects issued while the hub shuts down.
	announce bool
}

// Hub routes push events between connected clients.
// All registry state is owned by the Run goroutine.
type Hub struct {
	register   chan *Client
	unregister chan *Client
	outbox     chan delivery

	users    map[int64]connSet
	presence presence.Tracker
	ops      chan presenceOp
	auth     Authorizer
	logger   *zerolog.Logger

	stopped chan struct{}
}

// NewHub creates a new chat hub instance. tracker and auth may be nil.
func NewHub(tracker presence.Tracker, auth Authorizer, logger *zerolog.Logger) *Hub {
	if tracker == nil {
		tracker = presence.NewMemory()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		outbox:     make(chan delivery, 256),
		users:      make(map[int64]connSet),
		presence:   tracker,
		ops:        make(chan presenceOp, 1024),
		auth:       auth,
		logger:     logger,
		stopped:    make(chan struct{}),
	}
}

// Run processes registrations and deliveries until ctx is done. Tracker
// calls happen on a separate goroutine so a slow backend never stalls
// delivery; Run returns once every connection has been reported gone.
func (h *Hub) Run(ctx context.Context) {
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		h.trackPresence()
	}()
	defer func() {
		h.shutdown()
		close(h.ops)
		<-workerDone
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.handleRegister(c)
		case c := <-h.unregister:
			h.handleUnregister(c)
		case d := <-h.outbox:
			h.handleDelivery(d)
		}
	}
}

func (h *Hub) shutdown() {
	close(h.stopped)
	for userID, set := range h.users {
		for c := range set {
			c.release()
			delete(set, c)
			h.ops <- presenceOp{userID: userID, conns: len(set)}
		}
	}
	h.users = make(map[int64]connSet)
}

// RegisterClient attaches c to the hub and starts consuming its commands.
func (h *Hub) RegisterClient(ctx context.Context, c *Client) error {
	select {
	case h.register <- c:
		go h.consume(ctx, c)
		return nil
	case <-h.stopped:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// UnregisterClient detaches c. Its Events channel is closed afterwards.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

// Deliver queues event for every connection of userID. If the user is
// offline the event is dropped; pull is the recovery path.
func (h *Hub) Deliver(ctx context.Context, userID int64, event *Event) error {
	return h.enqueue(ctx, delivery{userID: userID, event: event})
}

func (h *Hub) enqueue(ctx context.Context, d delivery) error {
	select {
	case <-h.stopped:
		return ErrHubClosed
	default:
	}
	select {
	case h.outbox <- d:
		return nil
	case <-h.stopped:
		return ErrHubClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) handleRegister(c *Client) {
	set, ok := h.users[c.UserID]
	if !ok {
		set = make(connSet)
		h.users[c.UserID] = set
	}
	if !set.add(c) {
		return
	}

	h.logger.Debug().
		Str("client_id", c.ID).
		Int64("user_id", c.UserID).
		Int("user_conns", len(set)).
		Msg("client registered")

	h.ops <- presenceOp{userID: c.UserID, connect: true, conns: len(set), announce: true}
}

func (h *Hub) handleUnregister(c *Client) {
	set, ok := h.users[c.UserID]
	if !ok || !set.remove(c) {
		return
	}
	if len(set) == 0 {
		delete(h.users, c.UserID)
	}
	c.release()

	h.logger.Debug().Str("client_id", c.ID).Int64("user_id", c.UserID).Msg("client unregistered")

	h.ops <- presenceOp{userID: c.UserID, conns: len(set), announce: true}
}

// trackPresence applies ops to the tracker in order and posts the
// online/offline edges back to the Run loop.
func (h *Hub) trackPresence() {
	for op := range h.ops {
		pctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
		var edge bool
		var err error
		if op.connect {
			edge, err = h.presence.Connect(pctx, op.userID)
		} else {
			edge, err = h.presence.Disconnect(pctx, op.userID)
		}
		cancel()

		if err != nil {
			h.logger.Warn().Err(err).Int64("user_id", op.userID).Bool("connect", op.connect).Msg("presence update failed")
			// Fall back to the local view so the edge is still announced once.
			edge = (op.connect && op.conns == 1) || (!op.connect && op.conns == 0)
		}
		if !edge || !op.announce {
			continue
		}

		kind := EventUserOffline
		if op.connect {
			kind = EventUserOnline
		}
		d := delivery{userID: op.userID, event: &Event{Kind: kind, UserID: op.userID}, broadcast: true}
		ectx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
		err = h.enqueue(ectx, d)
		cancel()
		if err != nil {
			h.logger.Debug().Err(err).Int64("user_id", op.userID).Msg("presence edge not broadcast")
		}
	}
}

// broadcastPresence notifies every connection except the subject's own.
func (h *Hub) broadcastPresence(event *Event, subject int64) {
	for userID, set := range h.users {
		if userID == subject {
			continue
		}
		set.send(event)
	}
}

func (h *Hub) handleDelivery(d delivery) {
	if d.broadcast {
		h.broadcastPresence(d.event, d.userID)
		return
	}
	if d.client != nil {
		if set, ok := h.users[d.client.UserID]; ok {
			if _, live := set[d.client]; live && !offer(d.client, d.event) {
				h.logger.Warn().Str("client_id", d.client.ID).Stringer("event", d.event.Kind).Msg("slow consumer, event dropped")
			}
		}
		return
	}

	set, ok := h.users[d.userID]
	if !ok {
		h.logger.Debug().Int64("user_id", d.userID).Stringer("event", d.event.Kind).Msg("recipient offline, event dropped")
		return
	}
	if n := set.send(d.event); n < len(set) {
		h.logger.Warn().Int64("user_id", d.userID).Int("dropped", len(set)-n).Stringer("event", d.event.Kind).Msg("slow consumer, event dropped")
	}
}

// consume reads c's commands until the client is released or ctx ends.
// Membership checks run here so a slow store never stalls the Run loop.
func (h *Hub) consume(ctx context.Context, c *Client) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case cmd := <-c.Commands:
			if cmd == nil {
				continue
			}
			h.handleCommand(ctx, c, cmd)
		}
	}
}

func (h *Hub) handleCommand(ctx context.Context, c *Client, cmd *Command) {
	switch cmd.Kind {
	case CommandPing:
		h.reply(ctx, c, &Event{Kind: EventPong})
	case CommandChatOpened:
		h.handleChatOpened(ctx, c, cmd.ChatOpened)
	default:
		h.reply(ctx, c, &Event{Kind: EventError, Error: coreError(ErrCodeBadRequest, "unknown command")})
	}
}

func (h *Hub) handleChatOpened(ctx context.Context, c *Client, opened ChatOpened) {
	if opened.ConversationID == 0 || opened.SenderID == 0 {
		h.reply(ctx, c, &Event{Kind: EventError, Error: coreError(ErrCodeBadRequest, "conversationId and senderId are required")})
		return
	}
	if h.auth == nil {
		h.reply(ctx, c, &Event{Kind: EventError, Error: coreError(ErrCodeInternal, "chat-opened is not available")})
		return
	}

	peer, err := h.auth.Participants(ctx, c.UserID, opened.ConversationID)
	if err != nil {
		h.logger.Debug().Err(err).Int64("user_id", c.UserID).Int64("conversation_id", opened.ConversationID).Msg("chat-opened rejected")
		h.reply(ctx, c, &Event{Kind: EventError, Error: coreError(ErrCodeForbidden, err.Error())})
		return
	}
	if peer != opened.SenderID {
		h.reply(ctx, c, &Event{Kind: EventError, Error: coreError(ErrCodeForbidden, ErrNotPeer.Error())})
		return
	}

	if err := h.Deliver(ctx, peer, ChatOpenedEvent(opened.ConversationID, opened.SenderID)); err != nil {
		h.logger.Debug().Err(err).Msg("chat-opened not delivered")
	}
}

func (h *Hub) reply(ctx context.Context, c *Client, event *Event) {
	if err := h.enqueue(ctx, delivery{client: c, event: event}); err != nil {
		h.logger.Debug().Err(err).Str("client_id", c.ID).Msg("reply not delivered")
	}
}
