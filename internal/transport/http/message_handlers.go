package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/messenger/internal/core"
	"github.com/vovakirdan/messenger/internal/proto"
	"github.com/vovakirdan/messenger/internal/service/messages"
)

// MessageHandlers serves conversations and messages.
type MessageHandlers struct {
	service *messages.Service
	hub     *core.Hub
	log     *zerolog.Logger
}

// NewMessageHandlers creates a new message handlers instance.
func NewMessageHandlers(svc *messages.Service, hub *core.Hub, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{
		service: svc,
		hub:     hub,
		log:     logger,
	}
}

// ListConversations returns every conversation of the caller with its messages.
// GET /api/conversations
func (h *MessageHandlers) ListConversations(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	views, err := h.service.ListConversations(c.Request.Context(), uid)
	if err != nil {
		h.writeError(c, err, "failed to list conversations")
		return
	}

	response := make([]proto.Conversation, 0, len(views))
	for _, v := range views {
		response = append(response, conversationToProto(v))
	}
	c.JSON(http.StatusOK, response)
}

// SendMessage stores a message and pushes it to the recipient.
// POST /api/messages
func (h *MessageHandlers) SendMessage(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	var req proto.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	res, err := h.service.Send(c.Request.Context(), uid, messages.SendInput{
		RecipientID:    req.RecipientID,
		Text:           req.Text,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		h.writeError(c, err, "failed to send message")
		return
	}

	event := core.NewMessageEvent(messageToCore(res.Message), res.RecipientID, userInfoToCore(res.Sender))
	if err := h.hub.Deliver(c.Request.Context(), res.RecipientID, event); err != nil {
		h.log.Warn().Err(err).Int64("recipient_id", res.RecipientID).Msg("push delivery skipped")
	}

	h.log.Debug().
		Int64("message_id", res.Message.ID).
		Int64("conversation_id", res.Message.ConversationID).
		Bool("new_conversation", res.Sender != nil).
		Msg("message sent")

	c.JSON(http.StatusOK, proto.SendMessageResponse{
		Message: messageToProto(res.Message),
		Sender:  userViewToProto(res.Sender),
	})
}

// MarkRead marks the peer's messages as read.
// PUT /api/messages
func (h *MessageHandlers) MarkRead(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	var req proto.MarkReadRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ConversationID == 0 || req.SenderID == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "conversationId and senderId are required"})
		return
	}

	n, err := h.service.MarkRead(c.Request.Context(), uid, req.ConversationID, req.SenderID, req.UpTo)
	if err != nil {
		h.writeError(c, err, "failed to mark messages read")
		return
	}

	h.log.Debug().Int64("conversation_id", req.ConversationID).Int64("marked", n).Msg("messages marked read")
	c.Status(http.StatusNoContent)
}

// HasUnread answers whether the sender has unread messages for the caller.
// GET /api/messages?senderId=&conversationId=
func (h *MessageHandlers) HasUnread(c *gin.Context) {
	uid, ok := currentUserID(c, h.log)
	if !ok {
		return
	}

	senderID, err1 := strconv.ParseInt(c.Query("senderId"), 10, 64)
	conversationID, err2 := strconv.ParseInt(c.Query("conversationId"), 10, 64)
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "senderId and conversationId must be integers"})
		return
	}

	unread, err := h.service.HasUnread(c.Request.Context(), uid, conversationID, senderID)
	if err != nil {
		h.writeError(c, err, "failed to check unread messages")
		return
	}
	c.JSON(http.StatusOK, unread)
}

func (h *MessageHandlers) writeError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, messages.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: err.Error()})
	case errors.Is(err, messages.ErrNotFound), errors.Is(err, messages.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, messages.ErrInvalidMessage), errors.Is(err, messages.ErrSelfConversation):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	default:
		h.log.Error().Err(err).Msg(msg)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
