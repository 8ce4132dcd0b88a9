// Package fieldsync is an offline-first mutation queue and synchronization
// engine for applications backed by a remote document store.
//
// Writes enter through the Dispatcher: when the backend is reachable they
// are applied directly; when it is not, they are persisted to a durable
// local queue and replayed in submission order once connectivity returns.
// The Syncer drains the queue one mutation at a time, never reordering
// around failures, so a create-then-update pair can never be applied as
// update-then-create. A Detector watches live record updates and flags
// records that changed remotely while being edited locally; resolution is
// always an explicit user choice, never an automatic merge.
//
// The package is schema-agnostic: payloads are opaque maps tagged with a
// collection name, and their contents are never inspected.
package fieldsync
