package chat

import "errors"

var (
	ErrMissingChannel = errors.New("channel is required")
	ErrInvalidMessage = errors.New("invalid chat message")
)
