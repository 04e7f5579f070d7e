package driver

import (
	"errors"
	"fmt"

	"github.com/agenthands/scigraph/internal/core/model"
)

var (
	ErrMissingEndpoint   = errors.New("relationship endpoint not found")
	ErrWriteTransaction  = errors.New("write transaction failed")
	ErrInvalidIdentifier = errors.New("invalid cypher identifier")

	// ErrBarrierViolation is raised by a strict MemoryStore when an edge is
	// merged before both of its endpoints exist.
	ErrBarrierViolation = errors.New("edge merged before its endpoints exist")
)

// WriteTransactionError reports a failed batch. Target is the label or
// relationship type the batch was writing.
type WriteTransactionError struct {
	Target string
	Size   int
	Err    error
}

func (e *WriteTransactionError) Error() string {
	return fmt.Sprintf("write %d %s records: %v", e.Size, e.Target, e.Err)
}

func (e *WriteTransactionError) Unwrap() []error {
	return []error{ErrWriteTransaction, e.Err}
}

// MissingEndpointError describes one edge candidate that matched no nodes.
type MissingEndpointError struct {
	Edge model.Edge
}

func (e *MissingEndpointError) Error() string {
	return fmt.Sprintf("%v: %s", ErrMissingEndpoint, e.Edge)
}

func (e *MissingEndpointError) Unwrap() error { return ErrMissingEndpoint }
