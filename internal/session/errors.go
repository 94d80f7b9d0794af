package session

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is the parent of every token failure. Callers should
	// match on it and never tell the client which child occurred.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrMalformed: a token part is missing or is not valid base64url.
	ErrMalformed = fmt.Errorf("%w: malformed token", ErrUnauthorized)
	// ErrInvalidSignature: the tag does not match the payload.
	ErrInvalidSignature = fmt.Errorf("%w: invalid signature", ErrUnauthorized)
	// ErrCorrupt: the tag is valid but the payload is not a user state.
	ErrCorrupt = fmt.Errorf("%w: corrupt state", ErrUnauthorized)

	// ErrInvalidKey is returned when a configured secret key is unusable.
	ErrInvalidKey = errors.New("invalid secret key")
)
