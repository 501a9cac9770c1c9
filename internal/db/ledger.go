package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Guizzs26/ctms-sync/internal/models"
	"github.com/google/uuid"
)

const pendingColumns = "email_id, retry, create_timestamp, update_timestamp"

// dbTime keeps both backends at the same (microsecond, UTC) precision so
// timestamps round-trip and compare identically.
func dbTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Enqueue upserts the pending record of a contact. An existing record, dormant
// or not, is reset to retry 0 and its enqueue timestamp moved to now, so there
// is never more than one record per contact.
func (t *Tx) Enqueue(ctx context.Context, emailID uuid.UUID, now time.Time) error {
	now = dbTime(now)
	query := `
		INSERT INTO pending_acoustic (email_id, retry, create_timestamp, update_timestamp)
		VALUES (?, 0, ?, ?)
		ON CONFLICT (email_id) DO UPDATE
		SET retry = 0, update_timestamp = excluded.update_timestamp
	`
	if _, err := t.exec(ctx, query, emailID, now, now); err != nil {
		return fmt.Errorf("failed to enqueue %s: %w", emailID, err)
	}
	return nil
}

// DueBefore returns up to batchSize records enqueued at or before cutoff that
// still have retries left, oldest first.
func (t *Tx) DueBefore(ctx context.Context, cutoff time.Time, retryLimit, batchSize int) ([]models.PendingRecord, error) {
	query := `
		SELECT ` + pendingColumns + `
		FROM pending_acoustic
		WHERE update_timestamp <= ? AND retry < ?
		ORDER BY update_timestamp ASC, email_id ASC
		LIMIT ?
	`
	rows, err := t.query(ctx, query, dbTime(cutoff), retryLimit, batchSize)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch due records: %w", err)
	}
	defer rows.Close()

	var records []models.PendingRecord
	for rows.Next() {
		rec, err := scanPending(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate due records: %w", err)
	}
	return records, nil
}

// MarkSuccess removes the record.
func (t *Tx) MarkSuccess(ctx context.Context, rec models.PendingRecord) error {
	if _, err := t.exec(ctx, `DELETE FROM pending_acoustic WHERE email_id = ?`, rec.EmailID); err != nil {
		return fmt.Errorf("failed to delete pending record %s: %w", rec.EmailID, err)
	}
	return nil
}

// MarkFailure spends one retry. The record stays in place.
func (t *Tx) MarkFailure(ctx context.Context, rec models.PendingRecord) error {
	if _, err := t.exec(ctx, `UPDATE pending_acoustic SET retry = retry + 1 WHERE email_id = ?`, rec.EmailID); err != nil {
		return fmt.Errorf("failed to increment retry of %s: %w", rec.EmailID, err)
	}
	return nil
}

func (t *Tx) CountDue(ctx context.Context, cutoff time.Time, retryLimit int) (int, error) {
	var n int
	err := t.queryRow(ctx,
		`SELECT COUNT(*) FROM pending_acoustic WHERE update_timestamp <= ? AND retry < ?`,
		dbTime(cutoff), retryLimit,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count due records: %w", err)
	}
	return n, nil
}

func (t *Tx) CountDormant(ctx context.Context, retryLimit int) (int, error) {
	var n int
	if err := t.queryRow(ctx, `SELECT COUNT(*) FROM pending_acoustic WHERE retry >= ?`, retryLimit).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count dormant records: %w", err)
	}
	return n, nil
}

// ResetDormant gives every exhausted record a fresh retry budget.
func (t *Tx) ResetDormant(ctx context.Context, retryLimit int, now time.Time) (int64, error) {
	res, err := t.exec(ctx,
		`UPDATE pending_acoustic SET retry = 0, update_timestamp = ? WHERE retry >= ?`,
		dbTime(now), retryLimit,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset dormant records: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected, nil
}

func (t *Tx) GetPending(ctx context.Context, emailID uuid.UUID) (models.PendingRecord, error) {
	row := t.queryRow(ctx, `SELECT `+pendingColumns+` FROM pending_acoustic WHERE email_id = ?`, emailID)
	rec, err := scanPending(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PendingRecord{}, models.ErrPendingNotFound
	}
	return rec, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPending(s scanner) (models.PendingRecord, error) {
	var rec models.PendingRecord
	if err := s.Scan(&rec.EmailID, &rec.Retry, &rec.CreateTimestamp, &rec.UpdateTimestamp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("failed to scan pending record: %w", err)
	}
	return rec, nil
}
