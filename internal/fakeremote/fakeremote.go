// Package fakeremote provides a scriptable in-memory remote backend for
// tests. It records every call in order, keeps per-collection documents, and
// can be told to fail upcoming calls with a given error.
package fakeremote

import (
	"context"
	"fmt"
	"sync"

	"github.com/fieldsync/fieldsync.go/pkg/remote"
)

// Call is one recorded remote invocation.
type Call struct {
	Op         string // "insert", "patch", "remove"
	Collection string
	Payload    map[string]any

	// IdempotencyKey is whatever key the caller attached to the context.
	IdempotencyKey string
}

// Client implements remote.Client against process memory.
type Client struct {
	mu sync.Mutex

	calls     []Call
	documents map[string]map[string]map[string]any // collection -> id -> doc

	// failures is a queue of errors: each non-nil entry fails the next
	// mutating call. Ping is controlled separately.
	failures []error
	pingErr  error

	nextID int
}

var _ remote.Client = (*Client)(nil)

func New() *Client {
	return &Client{documents: make(map[string]map[string]map[string]any)}
}

// FailNext queues err to be returned by the next n mutating calls.
func (c *Client) FailNext(n int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := 0; i < n; i++ {
		c.failures = append(c.failures, err)
	}
}

// SetPingError controls Ping; nil restores reachability.
func (c *Client) SetPingError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pingErr = err
}

// Calls returns a copy of all recorded calls in invocation order.
func (c *Client) Calls() []Call {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Call, len(c.calls))
	copy(out, c.calls)
	return out
}

// Document returns the stored document, if any.
func (c *Client) Document(collection, id string) (map[string]any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	doc, ok := c.documents[collection][id]
	return doc, ok
}

func (c *Client) Insert(ctx context.Context, collection string, payload map[string]any) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record(ctx, "insert", collection, payload)
	if err := c.popFailure(); err != nil {
		return nil, err
	}

	id, _ := payload["id"].(string)
	if id == "" {
		c.nextID++
		id = fmt.Sprintf("gen-%d", c.nextID)
	}
	doc := clone(payload)
	doc["id"] = id
	c.put(collection, id, doc)
	return clone(doc), nil
}

func (c *Client) Patch(ctx context.Context, collection string, payload map[string]any) (map[string]any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record(ctx, "patch", collection, payload)
	if err := c.popFailure(); err != nil {
		return nil, err
	}

	id, _ := payload["id"].(string)
	if id == "" {
		return nil, &remote.StatusError{Code: 400, Body: "missing id"}
	}
	doc, ok := c.documents[collection][id]
	if !ok {
		doc = map[string]any{"id": id}
	}
	for k, v := range payload {
		doc[k] = v
	}
	c.put(collection, id, doc)
	return clone(doc), nil
}

func (c *Client) Remove(ctx context.Context, collection string, payload map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.record(ctx, "remove", collection, payload)
	if err := c.popFailure(); err != nil {
		return err
	}

	id, _ := payload["id"].(string)
	delete(c.documents[collection], id)
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pingErr
}

func (c *Client) record(ctx context.Context, op, collection string, payload map[string]any) {
	key, _ := remote.IdempotencyKey(ctx)
	c.calls = append(c.calls, Call{
		Op:             op,
		Collection:     collection,
		Payload:        clone(payload),
		IdempotencyKey: key,
	})
}

func (c *Client) popFailure() error {
	if len(c.failures) == 0 {
		return nil
	}
	err := c.failures[0]
	c.failures = c.failures[1:]
	return err
}

func (c *Client) put(collection, id string, doc map[string]any) {
	if c.documents[collection] == nil {
		c.documents[collection] = make(map[string]map[string]any)
	}
	c.documents[collection][id] = doc
}

func clone(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
