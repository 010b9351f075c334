package ledger

import "errors"

var (
	// ErrUnknownTarget is returned when a decision names an id that exists nowhere
	// in the current run.
	ErrUnknownTarget = errors.New("unknown decision target")
	// ErrInvalidDecision is returned for malformed decisions and impossible merges.
	ErrInvalidDecision = errors.New("invalid decision")
)
