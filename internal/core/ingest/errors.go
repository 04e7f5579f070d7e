package ingest

import (
	"errors"
	"fmt"
)

var ErrSourceRead = errors.New("source document unreadable")

// SourceReadError isolates one unreadable or malformed input file.
type SourceReadError struct {
	Path string
	Err  error
}

func (e *SourceReadError) Error() string {
	return fmt.Sprintf("read %s: %v", e.Path, e.Err)
}

func (e *SourceReadError) Unwrap() []error {
	return []error{ErrSourceRead, e.Err}
}
