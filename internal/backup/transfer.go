package backup

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/dharsanguruparan/Waypoint/internal/assets"
	"github.com/dharsanguruparan/Waypoint/internal/logging"
	"github.com/dharsanguruparan/Waypoint/internal/model"
	"github.com/dharsanguruparan/Waypoint/internal/remote"
)

// DatabaseName is the remote name of the snapshot file. Assets are named
// <uuid><ext>, so no asset can take it.
const DatabaseName = "__waypoint_database__.json"

// RecordsProperty is the database file property holding the record count.
const RecordsProperty = "records"

// AssetStore reads and writes local asset files.
type AssetStore interface {
	Read(path string) ([]byte, error)
	Save(path string, data []byte) error
	// Contains reports whether path lies inside the asset directory.
	Contains(path string) bool
}

// Transfer moves single assets and the database file between the device
// and the remote store, keeping an Index up to date as it goes.
type Transfer struct {
	remote remote.Store
	assets AssetStore
	log    logging.Logger
}

// NewTransfer constructs a Transfer.
func NewTransfer(store remote.Store, as AssetStore, log logging.Logger) *Transfer {
	return &Transfer{remote: store, assets: as, log: log}
}

// UploadAsset sends the file at localPath under its basename, updating the
// remote file of that name if the index has one and creating it otherwise.
func (t *Transfer) UploadAsset(ctx context.Context, localPath string, ix *Index) error {
	data, err := t.assets.Read(localPath)
	if err != nil {
		return err
	}
	name := assets.Basename(localPath)

	var f model.RemoteFile
	if existing, ok := ix.FindByName(name); ok {
		f, err = t.remote.Update(ctx, existing, data, nil)
	} else {
		f, err = t.remote.Create(ctx, model.FileMetadata{Name: name}, data)
	}
	if err != nil {
		return fmt.Errorf("%w: upload %s: %w", ErrRemoteUnavailable, name, err)
	}
	ix.Put(f)
	t.log.Debug(ctx, "asset uploaded", "op", "upload", "name", name, "path", localPath, "id", f.ID)
	return nil
}

// DownloadAsset fetches the remote file named after localPath's basename and
// writes it to localPath, replacing whatever is there.
func (t *Transfer) DownloadAsset(ctx context.Context, localPath string, ix *Index) error {
	name := assets.Basename(localPath)
	f, ok := ix.FindByName(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAssetMissingRemotely, name)
	}
	data, err := t.remote.Download(ctx, f.ID)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			return fmt.Errorf("%w: %s: %w", ErrAssetMissingRemotely, name, err)
		}
		return fmt.Errorf("%w: download %s: %w", ErrRemoteUnavailable, name, err)
	}
	if err := t.assets.Save(localPath, data); err != nil {
		return err
	}
	t.log.Debug(ctx, "asset downloaded", "op", "download", "name", name, "path", localPath, "id", f.ID)
	return nil
}

// UploadDatabase serializes snap and upserts it as the database file with
// the snapshot's record count in its properties.
func (t *Transfer) UploadDatabase(ctx context.Context, ix *Index, snap *model.Snapshot) error {
	data, err := model.EncodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("serialize database: %w", err)
	}
	recordCount := len(snap.Collection.Records)
	props := model.Properties{RecordsProperty: strconv.Itoa(recordCount)}

	var f model.RemoteFile
	if existing, ok := ix.FindByName(DatabaseName); ok {
		f, err = t.remote.Update(ctx, existing, data, props)
	} else {
		f, err = t.remote.Create(ctx, model.FileMetadata{Name: DatabaseName, Properties: props}, data)
	}
	if err != nil {
		return fmt.Errorf("%w: upload database: %w", ErrRemoteUnavailable, err)
	}
	ix.Put(f)
	t.log.Info(ctx, "database uploaded", "op", "upload", "name", DatabaseName, "id", f.ID, "records", recordCount)
	return nil
}

// DownloadDatabase fetches and decodes the database file.
func (t *Transfer) DownloadDatabase(ctx context.Context, ix *Index) (*model.Snapshot, error) {
	f, ok := ix.FindByName(DatabaseName)
	if !ok {
		return nil, ErrBackupNotFound
	}
	data, err := t.remote.Download(ctx, f.ID)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrBackupNotFound, err)
		}
		return nil, fmt.Errorf("%w: download database: %w", ErrRemoteUnavailable, err)
	}
	snap, err := model.DecodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBackupCorrupt, err)
	}
	for _, r := range snap.Collection.Records {
		for _, p := range r.Images {
			if !t.assets.Contains(p) {
				return nil, fmt.Errorf("%w: record %s image %q is outside the asset directory", ErrBackupCorrupt, r.ID, p)
			}
		}
	}
	t.log.Info(ctx, "database downloaded", "op", "download", "name", DatabaseName, "id", f.ID,
		"records", len(snap.Collection.Records))
	return snap, nil
}
