// Package presence tracks which users currently hold at least one live push connection.
package presence

import "context"

// Tracker counts live connections per user. Transitions are reported so the
// caller broadcasts exactly once per online/offline edge.
type Tracker interface {
	// Connect records a new connection. cameOnline is true when it is the user's first.
	Connect(ctx context.Context, userID int64) (cameOnline bool, err error)
	// Disconnect drops a connection. wentOffline is true when it was the user's last.
	Disconnect(ctx context.Context, userID int64) (wentOffline bool, err error)
	// IsOnline reports whether the user has any live connection.
	IsOnline(ctx context.Context, userID int64) (bool, error)
}
