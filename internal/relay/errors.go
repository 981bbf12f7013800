package relay

import "errors"

// Error taxonomy for relay operations. Structural errors (ErrNotMember,
// ErrRoomEnded) are returned synchronously and never terminate the
// connection; ErrPersistenceUnavailable is fatal to the single operation that
// raised it and is surfaced to the client as retryable.
var (
	ErrAlreadyConnected       = errors.New("relay: identity already connected")
	ErrAlreadyWaiting         = errors.New("relay: already in matching queue")
	ErrIneligible             = errors.New("relay: ineligible")
	ErrNotMember              = errors.New("relay: not a member of this room")
	ErrRoomEnded              = errors.New("relay: room has ended")
	ErrContentInvalid         = errors.New("relay: invalid message content")
	ErrRateLimited            = errors.New("relay: rate limited")
	ErrPersistenceUnavailable = errors.New("relay: durable store unavailable")
)
