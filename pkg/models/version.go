package models

// Version is a monotonic version marker: any value that only increases when
// a record changes, such as a last-modified timestamp in unix nanoseconds or
// a per-record revision counter. The conflict detector only ever compares
// versions, so the unit does not matter as long as it is consistent for a
// given record.
type Version int64

// After reports whether v is strictly newer than other.
func (v Version) After(other Version) bool { return v > other }

// Compare returns -1 if v is older than other, 0 if equal, 1 if newer.
func (v Version) Compare(other Version) int {
	switch {
	case v < other:
		return -1
	case v > other:
		return 1
	}
	return 0
}

// UpdateAction describes what a live record update did to the record.
type UpdateAction string

const (
	ActionCreated UpdateAction = "created"
	ActionUpdated UpdateAction = "updated"
	ActionDeleted UpdateAction = "deleted"
)

// RecordUpdate is a live-feed notification that a record changed on the
// remote backend. The conflict detector consumes these to catch concurrent
// edits to a record that is open locally.
type RecordUpdate struct {
	Collection string       `json:"collection"`
	RecordID   string       `json:"recordId"`
	Version    Version      `json:"version"`
	Action     UpdateAction `json:"action"`
}
