package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
)

// IntegrityError reports an edge that references a node the store does not
// hold. It is surfaced to the ingestion caller with the offending edge
// identified, never silently dropped.
type IntegrityError struct {
	EdgeID      string
	MissingNode string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("edge %s references missing node %s", e.EdgeID, e.MissingNode)
}

// ParseError marks one connector's source document as unreadable. It is
// fatal to that connector's run only; other connectors in the same pass
// continue independently.
type ParseError struct {
	Connector string
	Err       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("connector %s: parse: %v", e.Connector, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
