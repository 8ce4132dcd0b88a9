// Package remote defines the boundary to the remote backend: one logical
// call per mutation kind per collection. The queue does not define the wire
// format; it only requires that each call resolves to success or failure,
// and that failures can be classified as retryable or terminal.
package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Client is the remote backend as seen by the dispatcher and the syncer.
// Patch and Remove address their target record through the id embedded in
// the payload under the "id" key.
type Client interface {
	Insert(ctx context.Context, collection string, payload map[string]any) (map[string]any, error)
	Patch(ctx context.Context, collection string, payload map[string]any) (map[string]any, error)
	Remove(ctx context.Context, collection string, payload map[string]any) error

	// Ping probes backend reachability. It backs the connectivity checker
	// and is never used to decide individual call outcomes.
	Ping(ctx context.Context) error
}

// StatusError is a response the backend actually produced, carrying its
// status code. Transport-level failures (dial errors, timeouts) are returned
// as plain errors, not StatusErrors, and are always retryable.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote status %d", e.Code)
	}
	return fmt.Sprintf("remote status %d: %s", e.Code, e.Body)
}

// IsTerminal reports whether err is a definitive rejection of the request
// (validation or business-rule failure) that retrying will not fix. The
// backend said no; replaying the same payload again would loop forever.
//
// 408 and 429 are excluded: the request itself was acceptable, the moment
// was not.
func IsTerminal(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return se.Code >= 400 && se.Code < 500
}
