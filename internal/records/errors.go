package records

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingEndpoint is returned by from/to lookups that name neither side.
	ErrMissingEndpoint   = errors.New("from or to participant id must be provided")
	ErrContentMisaligned = errors.New("content response does not align with record ids")
	ErrNoEndpoint        = errors.New("no endpoint configured for channel")
)

// UpstreamError reports a non-200 status or a non-success envelope from the
// record API.
type UpstreamError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 && e.StatusCode != 200 {
		return fmt.Sprintf("%s failed: status %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s failed: %s", e.Op, e.Message)
}
