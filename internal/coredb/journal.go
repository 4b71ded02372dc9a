// SPDX-License-Identifier: AGPL-3.0-or-later

package coredb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// JournalEntry represents a persisted preparation event.
type JournalEntry struct {
	Seq       int64
	RunID     string
	EventType string
	Payload   []byte
	Timestamp time.Time
}

// RunSummary aggregates the journal entries of one preparation run.
type RunSummary struct {
	RunID     string
	Events    int64
	FirstSeen time.Time
	LastSeen  time.Time
	LastEvent string
}

// Journal provides append-only persistence backed by the Core DB.
type Journal struct {
	db       *sql.DB
	maxBytes int64
	nowFn    func() time.Time
}

// NewJournal returns a Journal over db. maxBytes <= 0 uses the budget the DB
// was opened with.
func NewJournal(db *DB, maxBytes int64) *Journal {
	if db == nil {
		return nil
	}
	if maxBytes <= 0 {
		maxBytes = db.journalMaxBytes
	}
	return &Journal{
		db:       db.sql,
		maxBytes: maxBytes,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Append stores an event for the provided run. Oldest entries are evicted
// until the payload fits; eviction and insertion share one transaction.
func (j *Journal) Append(ctx context.Context, runID, eventType string, payload []byte, ts time.Time) (entry JournalEntry, err error) {
	if j == nil {
		return entry, nil
	}
	if runID == "" {
		return entry, fmt.Errorf("append journal: run id required")
	}
	if len(payload) == 0 {
		return entry, fmt.Errorf("append journal: payload required")
	}
	payloadBytes := int64(len(payload))
	if payloadBytes > j.maxBytes {
		return entry, ErrJournalQuotaExceeded
	}

	now := ts
	if now.IsZero() {
		now = j.nowFn()
	}

	var tx *sql.Tx
	tx, err = j.db.BeginTx(ctx, nil)
	if err != nil {
		return entry, fmt.Errorf("begin journal tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var existingBytes int64
	if err = tx.QueryRowContext(ctx, `SELECT COALESCE(SUM(length(payload)), 0) FROM core_run_journal`).Scan(&existingBytes); err != nil {
		err = fmt.Errorf("journal size lookup: %w", err)
		return entry, err
	}

	for existingBytes+payloadBytes > j.maxBytes {
		var seq, size int64
		err = tx.QueryRowContext(ctx, `SELECT seq, length(payload) FROM core_run_journal ORDER BY seq ASC LIMIT 1`).Scan(&seq, &size)
		if errors.Is(err, sql.ErrNoRows) {
			err = nil
			break
		}
		if err != nil {
			err = fmt.Errorf("journal eviction lookup: %w", err)
			return entry, err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM core_run_journal WHERE seq = ?`, seq); err != nil {
			err = fmt.Errorf("journal eviction delete seq=%d: %w", seq, err)
			return entry, err
		}
		existingBytes -= size
		if existingBytes < 0 {
			existingBytes = 0
		}
	}

	var res sql.Result
	res, err = tx.ExecContext(ctx, `
INSERT INTO core_run_journal (run_id, event_type, payload, ts)
VALUES (?, ?, ?, ?)
`, runID, eventType, payload, now.UnixMilli())
	if err != nil {
		err = fmt.Errorf("journal insert: %w", err)
		return entry, err
	}
	var seq int64
	seq, err = res.LastInsertId()
	if err != nil {
		err = fmt.Errorf("journal last insert id: %w", err)
		return entry, err
	}

	if err = tx.Commit(); err != nil {
		err = fmt.Errorf("journal commit: %w", err)
		return entry, err
	}

	return JournalEntry{
		Seq:       seq,
		RunID:     runID,
		EventType: eventType,
		Payload:   append([]byte(nil), payload...),
		Timestamp: now,
	}, nil
}

// Bounds returns the earliest and latest sequence currently retained for the
// provided run. A zero earliest indicates no events are stored.
func (j *Journal) Bounds(ctx context.Context, runID string) (earliest, latest int64, err error) {
	if j == nil {
		return 0, 0, nil
	}
	if err = j.db.QueryRowContext(ctx, `
SELECT COALESCE(MIN(seq), 0), COALESCE(MAX(seq), 0)
FROM core_run_journal WHERE run_id = ?
`, runID).Scan(&earliest, &latest); err != nil {
		return 0, 0, fmt.Errorf("journal bounds: %w", err)
	}
	return earliest, latest, nil
}

// ForEach streams events for the supplied run strictly after the provided
// sequence (i.e. seq > afterSeq) in ascending order. Iteration halts if the
// callback returns an error.
func (j *Journal) ForEach(ctx context.Context, runID string, afterSeq int64, fn func(JournalEntry) error) error {
	if j == nil || fn == nil {
		return nil
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT seq, event_type, payload, ts
FROM core_run_journal
WHERE run_id = ? AND seq > ?
ORDER BY seq ASC
`, runID, afterSeq)
	if err != nil {
		return fmt.Errorf("journal query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var seq int64
		var eventType string
		var payload []byte
		var tsMillis int64
		if err := rows.Scan(&seq, &eventType, &payload, &tsMillis); err != nil {
			return fmt.Errorf("journal scan: %w", err)
		}
		entry := JournalEntry{
			Seq:       seq,
			RunID:     runID,
			EventType: eventType,
			Payload:   append([]byte(nil), payload...),
			Timestamp: time.UnixMilli(tsMillis).UTC(),
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("journal rows: %w", err)
	}
	return nil
}

// Runs lists the most recent runs, newest first. limit <= 0 returns all.
func (j *Journal) Runs(ctx context.Context, limit int) ([]RunSummary, error) {
	if j == nil {
		return nil, nil
	}
	query := `
SELECT r.run_id, r.n, r.first_ts, r.last_ts, l.event_type
FROM (
	SELECT run_id, COUNT(*) AS n, MIN(ts) AS first_ts, MAX(ts) AS last_ts, MAX(seq) AS last_seq
	FROM core_run_journal GROUP BY run_id
) r
JOIN core_run_journal l ON l.seq = r.last_seq
ORDER BY r.last_seq DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		var first, last int64
		if err := rows.Scan(&s.RunID, &s.Events, &first, &last, &s.LastEvent); err != nil {
			return nil, fmt.Errorf("journal runs scan: %w", err)
		}
		s.FirstSeen = time.UnixMilli(first).UTC()
		s.LastSeen = time.UnixMilli(last).UTC()
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal runs rows: %w", err)
	}
	return out, nil
}

// ParseSeq converts a sequence argument into an integer. It returns zero when
// the argument is empty.
func ParseSeq(id string) (int64, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return 0, nil
	}
	seq, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid sequence %q: %w", id, err)
	}
	return seq, nil
}
