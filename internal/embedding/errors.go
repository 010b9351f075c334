package embedding

import (
	"errors"
	"fmt"
)

// ErrUnembedded marks an entity that has no vector in this run.
var ErrUnembedded = errors.New("entity is unembedded")

// FailureError reports an entity whose embedding could not be produced.
type FailureError struct {
	EntityID    string
	ContentHash string
	Attempts    int
	Err         error
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("embedding failed for %s after %d attempts: %v", e.EntityID, e.Attempts, e.Err)
}

func (e *FailureError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrUnembedded) hold for every FailureError.
func (e *FailureError) Is(target error) bool { return target == ErrUnembedded }
