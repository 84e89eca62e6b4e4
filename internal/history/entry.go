// Package history implements the history index (C3) and the quota
// controller (C4): the append-only, quota-bounded global log of file
// events, persisted as JSON at .ftm/index.json.
//
// Grounded on original_source/src/storage.rs (Index, IndexView,
// trim_history_and_quota) for the algorithms, and on witnessd's
// internal/checkpoint.Chain.Save/Load for the Go idiom of a JSON-persisted
// append-only log with a derived lookup rebuilt on load.
package history

import "time"

// Op is the closed three-element operation variant. It is modeled as a
// distinct string type with named constants rather than a bare string, per
// the specification's guidance against a stringly-typed enum, while still
// serializing as the literal strings create|modify|delete.
type Op string

const (
	OpCreate Op = "create"
	OpModify Op = "modify"
	OpDelete Op = "delete"
)

// Entry is one append-only history record. MtimeNanos is populated and
// persisted to index.json for the scanner's fast-skip optimization but is
// never part of the public wire format — the HTTP layer builds its own
// slimmer DTO when serializing entries.
type Entry struct {
	Timestamp  time.Time `json:"timestamp"`
	File       string    `json:"file"`
	Op         Op        `json:"op"`
	Checksum   string    `json:"checksum,omitempty"`
	Size       *int64    `json:"size,omitempty"`
	MtimeNanos *int64    `json:"mtime_nanos,omitempty"`
}

// Live reports whether this entry's op keeps the file alive (i.e. it is not
// a delete).
func (e Entry) Live() bool { return e.Op != OpDelete }
