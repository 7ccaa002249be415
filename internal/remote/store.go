// Package remote defines the contract every remote file store backend
// satisfies and ships an in-memory implementation of it.
//
// A remote store is a single account's flat namespace of files. Each file is
// addressed by an opaque, store-assigned id and carries a human-readable name
// plus a small string property bag. Names are not unique as far as the store
// is concerned; callers decide what a name means.
package remote

import (
	"context"
	"errors"

	"github.com/dharsanguruparan/Waypoint/internal/model"
)

// ErrNotFound is returned when an id does not address any file.
var ErrNotFound = errors.New("remote file not found")

// Store is the remote file store client.
type Store interface {
	// List returns every file in the account in a stable order: earliest
	// created first.
	List(ctx context.Context) ([]model.RemoteFile, error)

	// Create stores a new file and returns its metadata, including the id the
	// store assigned.
	Create(ctx context.Context, meta model.FileMetadata, content []byte) (model.RemoteFile, error)

	// Update replaces the content of an existing file. A nil props keeps the
	// file's current properties; a non-nil one replaces them.
	Update(ctx context.Context, file model.RemoteFile, content []byte, props model.Properties) (model.RemoteFile, error)

	// Download returns the content of the file with the given id.
	Download(ctx context.Context, id string) ([]byte, error)
}
