// Package store provides durable persistence for machine checkpoints and
// decision recording sessions.
//
// Stores hold opaque serialized payloads: the machine package owns the
// checkpoint encoding, the decide package owns the record encoding. Three
// implementations are provided: MemStore for tests and single-process use,
// SQLiteStore for zero-setup local persistence, and MySQLStore for shared
// deployments.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a requested checkpoint or session does not
// exist.
var ErrNotFound = errors.New("not found")

// SessionRecord is one persisted decision record within a session, ordered
// by sequence number.
type SessionRecord struct {
	Seq  int
	Data []byte
}

// Store persists serialized checkpoints and decision recording sessions.
//
// Implementations must be safe for concurrent use. Payloads are opaque
// bytes; callers own the encoding.
type Store interface {
	// SaveCheckpoint persists a serialized checkpoint under its id,
	// overwriting any previous payload for the same id.
	SaveCheckpoint(ctx context.Context, id string, data []byte) error

	// LoadCheckpoint returns the payload saved under id, or ErrNotFound.
	LoadCheckpoint(ctx context.Context, id string) ([]byte, error)

	// DeleteCheckpoint removes a checkpoint. Deleting a missing id returns
	// ErrNotFound.
	DeleteCheckpoint(ctx context.Context, id string) error

	// ListCheckpoints returns all stored checkpoint ids in unspecified
	// order.
	ListCheckpoints(ctx context.Context) ([]string, error)

	// AppendRecord adds a decision record to a session at the given
	// sequence number.
	AppendRecord(ctx context.Context, session string, seq int, data []byte) error

	// Session returns a session's records ordered by sequence number, or
	// ErrNotFound when the session has no records.
	Session(ctx context.Context, session string) ([]SessionRecord, error)

	// Close releases underlying resources.
	Close() error
}
