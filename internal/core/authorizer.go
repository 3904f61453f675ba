package core

import "context"

// Authorizer resolves conversation membership for the hub.
// It lets the hub check chat-opened commands without depending on the service layer.
type Authorizer interface {
	// Participants returns callerID's peer in the conversation, or an error when
	// the conversation is missing or callerID is not part of it.
	Participants(ctx context.Context, callerID, conversationID int64) (peerID int64, err error)
}
