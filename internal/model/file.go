// Package model contains the struct definitions shared across packages: the
// collection records kept on the device, the options singleton, the backup
// snapshot and the remote file metadata.
package model

import "time"

// Properties is the small key/value bag a remote file carries next to its name.
type Properties map[string]string

// Clone returns an independent copy; a nil bag stays nil.
func (p Properties) Clone() Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// RemoteFile describes one object in the remote account's flat namespace.
// ID is assigned by the remote store and is opaque to the client; Name is the
// join key against local asset basenames.
type RemoteFile struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Properties Properties `json:"properties,omitempty"`
	Size       int64      `json:"size"`
	Modified   time.Time  `json:"modified"`
}

// FileMetadata is what a caller supplies when creating a remote file.
type FileMetadata struct {
	Name       string
	Properties Properties
}
