// Package pgstore implements remote.Store over a Postgres table, for
// deployments that would rather keep backups in a database they already run.
package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/Waypoint/internal/dbx"
	"github.com/dharsanguruparan/Waypoint/internal/model"
	"github.com/dharsanguruparan/Waypoint/internal/remote"
)

// Store keeps each remote file as one row of remote_files.
type Store struct {
	db  dbx.DBTX
	now func() time.Time
}

var _ remote.Store = (*Store)(nil)

// New constructs a Store bound to db (*sql.DB or *sql.Tx).
func New(db dbx.DBTX) *Store {
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// List returns every row in insertion order.
func (s *Store) List(ctx context.Context) ([]model.RemoteFile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, properties, size, modified_at
		FROM remote_files
		ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("select remote files: %w", err)
	}
	defer rows.Close()

	var files []model.RemoteFile
	for rows.Next() {
		var (
			f     model.RemoteFile
			props []byte
		)
		if err := rows.Scan(&f.ID, &f.Name, &props, &f.Size, &f.Modified); err != nil {
			return nil, fmt.Errorf("scan remote file: %w", err)
		}
		if f.Properties, err = decodeProperties(props); err != nil {
			return nil, fmt.Errorf("remote file %s: %w", f.ID, err)
		}
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate remote files: %w", err)
	}
	return files, nil
}

// Create inserts a new row.
func (s *Store) Create(ctx context.Context, meta model.FileMetadata, content []byte) (model.RemoteFile, error) {
	props, err := encodeProperties(meta.Properties)
	if err != nil {
		return model.RemoteFile{}, err
	}
	f := model.RemoteFile{
		ID:         uuid.NewString(),
		Name:       meta.Name,
		Properties: meta.Properties.Clone(),
		Size:       int64(len(content)),
		Modified:   s.now(),
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO remote_files (id, name, properties, content, size, modified_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, f.ID, f.Name, props, content, f.Size, f.Modified)
	if err != nil {
		return model.RemoteFile{}, fmt.Errorf("insert remote file: %w", err)
	}
	return f, nil
}

// Update replaces a row's content. A nil props leaves the stored properties.
func (s *Store) Update(ctx context.Context, file model.RemoteFile, content []byte, props model.Properties) (model.RemoteFile, error) {
	var propsArg any
	if props != nil {
		encoded, err := encodeProperties(props)
		if err != nil {
			return model.RemoteFile{}, err
		}
		propsArg = encoded
	}
	out := model.RemoteFile{ID: file.ID, Size: int64(len(content)), Modified: s.now()}
	var stored []byte
	row := s.db.QueryRowContext(ctx, `
		UPDATE remote_files
		SET content = $1,
			size = $2,
			modified_at = $3,
			properties = COALESCE($4, properties)
		WHERE id = $5
		RETURNING name, properties
	`, content, out.Size, out.Modified, propsArg, file.ID)
	if err := row.Scan(&out.Name, &stored); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.RemoteFile{}, fmt.Errorf("update %s: %w", file.ID, remote.ErrNotFound)
		}
		return model.RemoteFile{}, fmt.Errorf("update remote file: %w", err)
	}
	var err error
	if out.Properties, err = decodeProperties(stored); err != nil {
		return model.RemoteFile{}, fmt.Errorf("remote file %s: %w", file.ID, err)
	}
	return out, nil
}

// Download returns a row's content.
func (s *Store) Download(ctx context.Context, id string) ([]byte, error) {
	var content []byte
	err := s.db.QueryRowContext(ctx, `SELECT content FROM remote_files WHERE id = $1`, id).Scan(&content)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("download %s: %w", id, remote.ErrNotFound)
		}
		return nil, fmt.Errorf("select content: %w", err)
	}
	return content, nil
}

func encodeProperties(p model.Properties) (string, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode properties: %w", err)
	}
	return string(b), nil
}

func decodeProperties(b []byte) (model.Properties, error) {
	if len(b) == 0 {
		return nil, nil
	}
	var p model.Properties
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("decode properties: %w", err)
	}
	if len(p) == 0 {
		return nil, nil
	}
	return p, nil
}
