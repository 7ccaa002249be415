package backup

import "errors"

var (
	// ErrRemoteUnavailable wraps any failure talking to the remote store.
	ErrRemoteUnavailable = errors.New("remote store unavailable")
	// ErrBackupNotFound means the listing holds no database file.
	ErrBackupNotFound = errors.New("backup not found")
	// ErrBackupCorrupt means the database file is not a well-formed snapshot.
	ErrBackupCorrupt = errors.New("backup corrupt")
	// ErrAssetMissingRemotely means a record references an asset the
	// backup does not contain.
	ErrAssetMissingRemotely = errors.New("asset missing remotely")
	// ErrBusy is returned when an upload or download is already running.
	ErrBusy = errors.New("backup operation already running")
)
