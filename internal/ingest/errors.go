package ingest

import (
	"errors"
	"fmt"
)

// SchemaError is an input-schema violation. It is fatal: the run aborts before
// any processing.
type SchemaError struct {
	File   string
	Row    int // 1-based data row; 0 for header problems
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Row == 0 {
		return fmt.Sprintf("%s: column %q: %s", e.File, e.Column, e.Reason)
	}
	return fmt.Sprintf("%s: row %d: column %q: %s", e.File, e.Row, e.Column, e.Reason)
}

// IsSchemaError reports whether err is, or wraps, a SchemaError.
func IsSchemaError(err error) bool {
	var se *SchemaError
	return errors.As(err, &se)
}
