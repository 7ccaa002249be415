package localdb

import (
	"context"
	"fmt"
	"time"
)

// Lock is a single row lease in the local database. Every process that opens
// the same database file contends for the same row, so at most one of them
// holds it at a time. A lease older than the stale timeout is treated as
// abandoned and may be taken over.
type Lock struct {
	db         *DB
	staleAfter time.Duration
	now        func() time.Time
}

// BackupLock returns the lease that guards backup operations.
func (d *DB) BackupLock(staleAfter time.Duration) *Lock {
	return &Lock{db: d, staleAfter: staleAfter, now: time.Now}
}

// TryAcquire takes the lease for owner, renewing it if owner already holds
// it. It reports false without waiting when another owner holds a lease that
// is not yet stale.
func (l *Lock) TryAcquire(ctx context.Context, owner, op string) (bool, error) {
	now := l.now()
	res, err := l.db.db.ExecContext(ctx, `
		INSERT INTO backup_lock (id, owner, op, acquired_at) VALUES (1, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE
		SET owner = excluded.owner, op = excluded.op, acquired_at = excluded.acquired_at
		WHERE backup_lock.acquired_at < ? OR backup_lock.owner = excluded.owner
	`, owner, op, now.UnixMilli(), now.Add(-l.staleAfter).UnixMilli())
	if err != nil {
		return false, fmt.Errorf("acquire backup lock: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire backup lock: %w", err)
	}
	return n == 1, nil
}

// Release drops the lease if owner still holds it.
func (l *Lock) Release(ctx context.Context, owner string) error {
	if _, err := l.db.db.ExecContext(ctx, `DELETE FROM backup_lock WHERE owner = ?`, owner); err != nil {
		return fmt.Errorf("release backup lock: %w", err)
	}
	return nil
}
