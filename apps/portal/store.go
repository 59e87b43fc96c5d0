package main

import (
	"context"
	"database/sql"
	"time"
)

const (
	uploadStateStaged    = "staged"
	uploadStateCommitted = "committed"
	uploadStateOrphaned  = "orphaned"
)

// StatusChange is one admin status update as recorded in the audit table.
type StatusChange struct {
	ComplaintID    string
	AdminEmail     string
	PreviousStatus string
	NewStatus      string
	Notes          string
}

type StatusChangeRecord struct {
	StatusChange
	ChangedAt time.Time
}

// uploadEntry is one forum image object tracked by the upload ledger.
type uploadEntry struct {
	Bucket string
	Path   string
	State  string
}

// pgStore holds the portal's own tables. The grievance data itself lives
// behind the backend API.
type pgStore struct {
	db *sql.DB
}

func newPGStore(db *sql.DB) *pgStore {
	return &pgStore{db: db}
}

func (s *pgStore) RecordStatusChange(ctx context.Context, change StatusChange) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admin_status_changes (complaint_id, admin_email, previous_status, new_status, notes)
		VALUES ($1, $2, $3, $4, $5)
	`, change.ComplaintID, change.AdminEmail, change.PreviousStatus, change.NewStatus, change.Notes)
	return err
}

func (s *pgStore) ListRecentStatusChanges(ctx context.Context, limit int) ([]StatusChangeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT complaint_id, admin_email, previous_status, new_status, notes, changed_at
		FROM admin_status_changes
		ORDER BY changed_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []StatusChangeRecord
	for rows.Next() {
		var record StatusChangeRecord
		if err := rows.Scan(
			&record.ComplaintID,
			&record.AdminEmail,
			&record.PreviousStatus,
			&record.NewStatus,
			&record.Notes,
			&record.ChangedAt,
		); err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *pgStore) RecordStaged(ctx context.Context, bucket, complaintID string, paths []string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, path := range paths {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO forum_upload_ledger (bucket, object_path, complaint_id, state)
				VALUES ($1, $2, $3, $4)
				ON CONFLICT (bucket, object_path)
				DO UPDATE SET state = EXCLUDED.state, updated_at = NOW()
			`, bucket, path, complaintID, uploadStateStaged); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *pgStore) MarkCommitted(ctx context.Context, bucket string, paths []string) error {
	return s.setState(ctx, bucket, paths, uploadStateCommitted)
}

func (s *pgStore) MarkOrphaned(ctx context.Context, bucket string, paths []string) error {
	return s.setState(ctx, bucket, paths, uploadStateOrphaned)
}

func (s *pgStore) Forget(ctx context.Context, bucket string, paths []string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, path := range paths {
			if _, err := tx.ExecContext(ctx, `
				DELETE FROM forum_upload_ledger WHERE bucket = $1 AND object_path = $2
			`, bucket, path); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListCleanupCandidates returns orphaned objects plus staged objects that
// were never committed before stagedBefore.
func (s *pgStore) ListCleanupCandidates(ctx context.Context, stagedBefore time.Time, limit int) ([]uploadEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bucket, object_path, state
		FROM forum_upload_ledger
		WHERE state = $1 OR (state = $2 AND updated_at < $3)
		ORDER BY updated_at ASC
		LIMIT $4
	`, uploadStateOrphaned, uploadStateStaged, stagedBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []uploadEntry
	for rows.Next() {
		var entry uploadEntry
		if err := rows.Scan(&entry.Bucket, &entry.Path, &entry.State); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *pgStore) setState(ctx context.Context, bucket string, paths []string, state string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, path := range paths {
			if _, err := tx.ExecContext(ctx, `
				UPDATE forum_upload_ledger
				SET state = $3, updated_at = NOW()
				WHERE bucket = $1 AND object_path = $2
			`, bucket, path, state); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *pgStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// recordStatusChange writes to the audit table when one is configured.
func (a *App) recordStatusChange(ctx context.Context, change StatusChange) error {
	if a.recordStatusChangeHook != nil {
		return a.recordStatusChangeHook(ctx, change)
	}
	if a.store == nil {
		return nil
	}
	return a.store.RecordStatusChange(ctx, change)
}

func (a *App) recentStatusChanges(ctx context.Context, limit int) ([]StatusChangeRecord, error) {
	if a.recentStatusChangesHook != nil {
		return a.recentStatusChangesHook(ctx, limit)
	}
	if a.store == nil {
		return nil, nil
	}
	return a.store.ListRecentStatusChanges(ctx, limit)
}
