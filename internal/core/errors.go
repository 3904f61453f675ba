package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeBadRequest = "bad_request"
	ErrCodeForbidden  = "forbidden"
	ErrCodeNotFound   = "not_found"
	ErrCodeInternal   = "internal"
)

var (
	// ErrHubClosed is returned once Run has exited.
	ErrHubClosed = errors.New("hub closed")
	// ErrNotPeer is returned when chat-opened names someone other than the peer.
	ErrNotPeer = errors.New("sender is not the peer")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
