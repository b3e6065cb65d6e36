package core

import "errors"

// Error codes for domain errors.
const (
	ErrCodeBadRequest    = "bad_request"
	ErrCodeAlreadyJoined = "already_joined"
	ErrCodeNotInRoom     = "not_in_room"
	ErrCodeNameMismatch  = "name_mismatch"
)

var (
	ErrHubStopped        = errors.New("hub stopped")
	ErrUnknownConnection = errors.New("unknown connection")
	ErrNameMismatch      = errors.New("display name already bound")
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
