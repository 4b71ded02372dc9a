package coredb

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestJournalAppendAndIterate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	db, err := Open(ctx, Options{DataDir: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	journal := NewJournal(db, 0)

	ts := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	first, err := journal.Append(ctx, "run-1", "prep.start", []byte(`{"status":"running"}`), ts)
	if err != nil {
		t.Fatalf("append first: %v", err)
	}
	if first.Seq == 0 {
		t.Fatalf("expected sequence > 0")
	}

	second, err := journal.Append(ctx, "run-1", "step.finish", []byte(`{"message":"hello"}`), ts.Add(time.Second))
	if err != nil {
		t.Fatalf("append second: %v", err)
	}
	if second.Seq <= first.Seq {
		t.Fatalf("expected second seq greater than first (first=%d second=%d)", first.Seq, second.Seq)
	}

	var entries []JournalEntry
	if err := journal.ForEach(ctx, "run-1", 0, func(e JournalEntry) error {
		entries = append(entries, e)
		return nil
	}); err != nil {
		t.Fatalf("journal iterate: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Seq != first.Seq || entries[1].Seq != second.Seq {
		t.Fatalf("unexpected sequences: %#v", entries)
	}
	if !entries[0].Timestamp.Equal(ts) {
		t.Fatalf("expected first timestamp %v, got %v", ts, entries[0].Timestamp)
	}
	if entries[1].EventType != "step.finish" {
		t.Fatalf("expected event type step.finish, got %s", entries[1].EventType)
	}
}

func TestJournalEvictsOldestWhenOverLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	db, err := Open(ctx, Options{DataDir: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	// Limit well below two payloads to force eviction of the first.
	journal := NewJournal(db, 30)

	if _, err := journal.Append(ctx, "run-1", "step.finish", []byte(`{"message":"alpha"}`), time.Now().UTC()); err != nil {
		t.Fatalf("append alpha: %v", err)
	}
	second, err := journal.Append(ctx, "run-1", "step.finish", []byte(`{"message":"bravo"}`), time.Now().UTC())
	if err != nil {
		t.Fatalf("append bravo: %v", err)
	}

	var sequences []int64
	if err := journal.ForEach(ctx, "run-1", 0, func(e JournalEntry) error {
		sequences = append(sequences, e.Seq)
		return nil
	}); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(sequences) != 1 {
		t.Fatalf("expected single retained entry, got %d", len(sequences))
	}
	if sequences[0] != second.Seq {
		t.Fatalf("expected retained seq %d, got %d", second.Seq, sequences[0])
	}

	earliest, latest, err := journal.Bounds(ctx, "run-1")
	if err != nil {
		t.Fatalf("bounds: %v", err)
	}
	if earliest != second.Seq || latest != second.Seq {
		t.Fatalf("expected bounds to equal second seq %d, got earliest=%d latest=%d", second.Seq, earliest, latest)
	}
}

func TestJournalRejectsPayloadAboveLimit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	db, err := Open(ctx, Options{DataDir: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	journal := NewJournal(db, 8) // eight bytes max
	_, err = journal.Append(ctx, "run-1", "step.finish", []byte(`{"msg":"too big"}`), time.Now().UTC())
	if !errors.Is(err, ErrJournalQuotaExceeded) {
		t.Fatalf("expected ErrJournalQuotaExceeded, got %v", err)
	}
}

func TestParseSeq(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		input   string
		wantSeq int64
		wantErr bool
	}{
		{"empty", "", 0, false},
		{"spaces", " 42 ", 42, false},
		{"invalid", "abc", 0, true},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			seq, err := ParseSeq(tc.input)
			if tc.wantErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if seq != tc.wantSeq {
				t.Fatalf("expected %d, got %d", tc.wantSeq, seq)
			}
		})
	}
}

func TestJournalRunsNewestFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db, err := Open(ctx, Options{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	journal := NewJournal(db, 0)

	ts := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	appends := []struct{ run, event string }{
		{"run-a", "prep.start"},
		{"run-a", "prep.finish"},
		{"run-b", "prep.start"},
	}
	for i, a := range appends {
		if _, err := journal.Append(ctx, a.run, a.event, []byte(`{}`), ts.Add(time.Duration(i)*time.Second)); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	runs, err := journal.Runs(ctx, 0)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].RunID != "run-b" || runs[0].LastEvent != "prep.start" {
		t.Fatalf("unexpected newest run %#v", runs[0])
	}
	if runs[1].Events != 2 || runs[1].LastEvent != "prep.finish" {
		t.Fatalf("unexpected summary %#v", runs[1])
	}
	if !runs[1].FirstSeen.Equal(ts) {
		t.Fatalf("expected first seen %v, got %v", ts, runs[1].FirstSeen)
	}

	limited, err := journal.Runs(ctx, 1)
	if err != nil {
		t.Fatalf("runs limited: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected 1 run, got %d", len(limited))
	}
}
