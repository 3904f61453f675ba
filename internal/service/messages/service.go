package messages

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/messenger/internal/presence"
	"github.com/vovakirdan/messenger/internal/store"
)

// MaxTextBytes caps the length of a message body.
const MaxTextBytes = 4096

// Common errors for message operations.
var (
	ErrNotFound         = errors.New("conversation not found")
	ErrForbidden        = errors.New("not a participant of this conversation")
	ErrInvalidMessage   = errors.New("invalid message")
	ErrSelfConversation = errors.New("cannot start a conversation with yourself")
	ErrUserNotFound     = errors.New("user not found")
)

// Service implements message and conversation operations on top of a store.
type Service struct {
	store    store.Store
	presence presence.Tracker
	logger   *zerolog.Logger
}

// New creates a new message Service.
func New(st store.Store, tracker presence.Tracker, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{store: st, presence: tracker, logger: logger}
}

// SendInput is the payload of a send request.
type SendInput struct {
	RecipientID    int64
	Text           string
	ConversationID *int64
}

// SendResult is what the sender gets back. Sender is only set when this send
// created the conversation, so the recipient can materialize it.
type SendResult struct {
	Message     *store.Message
	Sender      *UserView
	RecipientID int64
}

// Resolve returns the conversation for the unordered pair, creating it once.
func (s *Service) Resolve(ctx context.Context, a, b int64) (*store.Conversation, bool, error) {
	if a == b {
		return nil, false, ErrSelfConversation
	}
	if conv, err := s.store.FindConversation(ctx, a, b); err == nil {
		return conv, false, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	if _, err := s.store.GetUserByID(ctx, b); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, ErrUserNotFound
		}
		return nil, false, err
	}

	conv, created, err := s.store.CreateConversation(ctx, a, b)
	if err != nil {
		return nil, false, fmt.Errorf("resolve conversation: %w", err)
	}
	if created {
		s.logger.Debug().Int64("conversation_id", conv.ID).Int64("user1", a).Int64("user2", b).Msg("conversation created")
	}
	return conv, created, nil
}

// Send stores a message from senderID, resolving the conversation if the caller did not name one.
func (s *Service) Send(ctx context.Context, senderID int64, in SendInput) (*SendResult, error) {
	text, err := normalizeText(in.Text)
	if err != nil {
		return nil, err
	}

	var (
		conv    *store.Conversation
		created bool
	)
	if in.ConversationID != nil {
		conv, err = s.participantConversation(ctx, senderID, *in.ConversationID)
		if err != nil {
			return nil, err
		}
		if in.RecipientID != 0 && in.RecipientID != conv.Peer(senderID) {
			return nil, fmt.Errorf("%w: recipient is not the peer", ErrInvalidMessage)
		}
	} else {
		if in.RecipientID == 0 {
			return nil, fmt.Errorf("%w: recipient required", ErrInvalidMessage)
		}
		conv, created, err = s.Resolve(ctx, senderID, in.RecipientID)
		if err != nil {
			return nil, err
		}
	}

	msg, err := s.save(ctx, senderID, conv.ID, text)
	if err != nil {
		return nil, err
	}

	res := &SendResult{Message: msg, RecipientID: conv.Peer(senderID)}
	if created {
		sender, err := s.store.GetUserByID(ctx, senderID)
		if err != nil {
			return nil, fmt.Errorf("load sender: %w", err)
		}
		view := s.userView(ctx, sender)
		res.Sender = &view
	}
	return res, nil
}

// CreateMessage appends a message to an existing conversation.
func (s *Service) CreateMessage(ctx context.Context, senderID, conversationID int64, text string) (*store.Message, error) {
	text, err := normalizeText(text)
	if err != nil {
		return nil, err
	}
	if _, err := s.participantConversation(ctx, senderID, conversationID); err != nil {
		return nil, err
	}
	return s.save(ctx, senderID, conversationID, text)
}

func (s *Service) save(ctx context.Context, senderID, conversationID int64, text string) (*store.Message, error) {
	msg := &store.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Text:           text,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("save message: %w", err)
	}
	return msg, nil
}

// MarkRead marks senderID's messages as read on behalf of callerID.
func (s *Service) MarkRead(ctx context.Context, callerID, conversationID, senderID int64, upTo *time.Time) (int64, error) {
	conv, err := s.participantConversation(ctx, callerID, conversationID)
	if err != nil {
		return 0, err
	}
	if !conv.HasParticipant(senderID) {
		return 0, ErrForbidden
	}
	return s.store.MarkRead(ctx, conversationID, senderID, upTo)
}

// HasUnread reports whether senderID has unread messages in the conversation.
func (s *Service) HasUnread(ctx context.Context, callerID, conversationID, senderID int64) (bool, error) {
	conv, err := s.participantConversation(ctx, callerID, conversationID)
	if err != nil {
		return false, err
	}
	if !conv.HasParticipant(senderID) {
		return false, ErrForbidden
	}
	return s.store.HasUnread(ctx, conversationID, senderID)
}

// Participants returns the peer of callerID in the conversation.
func (s *Service) Participants(ctx context.Context, callerID, conversationID int64) (int64, error) {
	conv, err := s.participantConversation(ctx, callerID, conversationID)
	if err != nil {
		return 0, err
	}
	return conv.Peer(callerID), nil
}

// ListConversations builds the caller's conversation list with messages and peer presence.
func (s *Service) ListConversations(ctx context.Context, userID int64) ([]ConversationView, error) {
	convs, err := s.store.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}

	views := make([]ConversationView, 0, len(convs))
	for _, c := range convs {
		other, err := s.store.GetUserByID(ctx, c.Peer(userID))
		if err != nil {
			return nil, fmt.Errorf("load peer %d: %w", c.Peer(userID), err)
		}
		msgs, err := s.store.ListMessages(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		views = append(views, s.conversationView(ctx, userID, c, other, msgs))
	}
	return views, nil
}

// SearchUsers finds users by name, excluding the caller.
func (s *Service) SearchUsers(ctx context.Context, callerID int64, query string) ([]UserView, error) {
	users, err := s.store.SearchUsers(ctx, strings.TrimSpace(query))
	if err != nil {
		return nil, err
	}
	out := make([]UserView, 0, len(users))
	for _, u := range users {
		if u.ID == callerID {
			continue
		}
		out = append(out, s.userView(ctx, u))
	}
	return out, nil
}

func (s *Service) participantConversation(ctx context.Context, callerID, conversationID int64) (*store.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !conv.HasParticipant(callerID) {
		return nil, ErrForbidden
	}
	return conv, nil
}

func (s *Service) online(ctx context.Context, userID int64) bool {
	if s.presence == nil {
		return false
	}
	ok, err := s.presence.IsOnline(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("user_id", userID).Msg("presence lookup failed")
		return false
	}
	return ok
}

func normalizeText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty text", ErrInvalidMessage)
	}
	if len(text) > MaxTextBytes {
		return "", fmt.Errorf("%w: text exceeds %d bytes", ErrInvalidMessage, MaxTextBytes)
	}
	return text, nil
}
