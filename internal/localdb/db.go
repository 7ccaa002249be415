// Package localdb is the on-device database: the ordered record collection
// and the options singleton, kept in SQLite. It can render itself as a
// snapshot and be replaced wholesale from one.
package localdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/dharsanguruparan/Waypoint/internal/dbx"
	"github.com/dharsanguruparan/Waypoint/internal/localdb/migrations"
	"github.com/dharsanguruparan/Waypoint/internal/model"
)

// ErrRecordNotFound is returned when no record has the requested id.
var ErrRecordNotFound = errors.New("record not found")

// MemoryPath opens a throwaway in-memory database.
const MemoryPath = ":memory:"

// DB is the local database handle.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and migrates
// it.
func Open(ctx context.Context, path string) (*DB, error) {
	dsn := path
	if path != MemoryPath {
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open local database: %w", err)
	}
	// In-memory databases are per connection.
	db.SetMaxOpenConns(1)

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{db: db}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations.Migrations)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("migrate local database: %w", err)
	}
	return nil
}

// Close releases the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Records returns the whole collection in order.
func (d *DB) Records(ctx context.Context) ([]model.Record, error) {
	return queries{d.db}.records(ctx)
}

// Record returns one record.
func (d *DB) Record(ctx context.Context, id string) (model.Record, error) {
	return queries{d.db}.record(ctx, id)
}

// Count returns the number of records.
func (d *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Insert appends r to the end of the collection.
func (d *DB) Insert(ctx context.Context, r model.Record) error {
	return queries{d.db}.insert(ctx, r)
}

// Update replaces the stored record with the same id.
func (d *DB) Update(ctx context.Context, r model.Record) error {
	images, category, err := encodeLists(r)
	if err != nil {
		return err
	}
	res, err := d.db.ExecContext(ctx, `
		UPDATE records
		SET name = ?, city = ?, lat = ?, long = ?, images = ?, visited = ?, notes = ?, rating = ?, category = ?
		WHERE id = ?
	`, r.Name, r.City, r.Coordinates.Lat, r.Coordinates.Long, images, r.Visited, r.Notes, r.Rating, category, r.ID)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	return expectOne(res, r.ID)
}

// Delete removes the record with the given id.
func (d *DB) Delete(ctx context.Context, id string) error {
	res, err := d.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	return expectOne(res, id)
}

// Options returns the options singleton.
func (d *DB) Options(ctx context.Context) (model.Options, error) {
	return queries{d.db}.options(ctx)
}

// SetOptions replaces the options singleton.
func (d *DB) SetOptions(ctx context.Context, o model.Options) error {
	return queries{d.db}.setOptions(ctx, o)
}

// Snapshot reads options and records as one consistent snapshot.
func (d *DB) Snapshot(ctx context.Context) (*model.Snapshot, error) {
	var snap model.Snapshot
	err := dbx.WithTx(ctx, d.db, func(ctx context.Context, tx dbx.DBTX) error {
		q := queries{tx}
		var err error
		if snap.Options, err = q.options(ctx); err != nil {
			return err
		}
		snap.Collection.Records, err = q.records(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// Load replaces every record and the options with the snapshot's content in
// one transaction.
func (d *DB) Load(ctx context.Context, snap *model.Snapshot) error {
	return dbx.WithTx(ctx, d.db, func(ctx context.Context, tx dbx.DBTX) error {
		q := queries{tx}
		if _, err := tx.ExecContext(ctx, `DELETE FROM records`); err != nil {
			return fmt.Errorf("clear records: %w", err)
		}
		for _, r := range snap.Collection.Records {
			if err := q.insert(ctx, r); err != nil {
				return err
			}
		}
		return q.setOptions(ctx, snap.Options)
	})
}

// queries holds the statements shared between plain and transactional use.
type queries struct {
	db dbx.DBTX
}

const recordColumns = `id, name, city, lat, long, images, visited, notes, rating, category`

func (q queries) records(ctx context.Context) ([]model.Record, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM records ORDER BY position, rowid`)
	if err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func (q queries) record(ctx context.Context, id string) (model.Record, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE id = ?`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Record{}, fmt.Errorf("%s: %w", id, ErrRecordNotFound)
	}
	return r, err
}

func (q queries) insert(ctx context.Context, r model.Record) error {
	images, category, err := encodeLists(r)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO records (id, position, name, city, lat, long, images, visited, notes, rating, category)
		VALUES (?, (SELECT COALESCE(MAX(position), 0) + 1 FROM records), ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Name, r.City, r.Coordinates.Lat, r.Coordinates.Long, images, r.Visited, r.Notes, r.Rating, category)
	if err != nil {
		return fmt.Errorf("insert record %s: %w", r.ID, err)
	}
	return nil
}

func (q queries) options(ctx context.Context) (model.Options, error) {
	var category, mandatory string
	err := q.db.QueryRowContext(ctx, `SELECT category, mandatory FROM options WHERE id = 1`).Scan(&category, &mandatory)
	if err != nil {
		return model.Options{}, fmt.Errorf("select options: %w", err)
	}
	var o model.Options
	if err := json.Unmarshal([]byte(category), &o.Category); err != nil {
		return model.Options{}, fmt.Errorf("decode option categories: %w", err)
	}
	if err := json.Unmarshal([]byte(mandatory), &o.Mandatory); err != nil {
		return model.Options{}, fmt.Errorf("decode mandatory fields: %w", err)
	}
	return o, nil
}

func (q queries) setOptions(ctx context.Context, o model.Options) error {
	category, err := encodeList(o.Category)
	if err != nil {
		return err
	}
	mandatory, err := encodeList(o.Mandatory)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO options (id, category, mandatory) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET category = excluded.category, mandatory = excluded.mandatory
	`, category, mandatory)
	if err != nil {
		return fmt.Errorf("save options: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (model.Record, error) {
	var (
		r                model.Record
		images, category string
	)
	err := s.Scan(&r.ID, &r.Name, &r.City, &r.Coordinates.Lat, &r.Coordinates.Long,
		&images, &r.Visited, &r.Notes, &r.Rating, &category)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Record{}, err
		}
		return model.Record{}, fmt.Errorf("scan record: %w", err)
	}
	if err := json.Unmarshal([]byte(images), &r.Images); err != nil {
		return model.Record{}, fmt.Errorf("record %s images: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(category), &r.Category); err != nil {
		return model.Record{}, fmt.Errorf("record %s category: %w", r.ID, err)
	}
	return r, nil
}

func encodeLists(r model.Record) (string, string, error) {
	images, err := encodeList(r.Images)
	if err != nil {
		return "", "", err
	}
	category, err := encodeList(r.Category)
	if err != nil {
		return "", "", err
	}
	return images, category, nil
}

func encodeList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return "", fmt.Errorf("encode list: %w", err)
	}
	return string(b), nil
}

func expectOne(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, ErrRecordNotFound)
	}
	return nil
}
