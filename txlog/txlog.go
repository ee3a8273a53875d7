// Package txlog implements the per-account transaction log: a strictly
// ordered, gapless, append-only ledger consumed by downstream delta-sync
// clients via a sequence-number cursor.
package txlog

import (
	"context"
	"fmt"
	"time"

	"github.com/closeio/nylas/db"
	"github.com/closeio/nylas/mail"
)

// Proposed is a log entry before a sequence number has been assigned.
type Proposed struct {
	ObjectType mail.ObjectType
	ObjectID   mail.InternalMessageID
	Op         mail.LogOp
}

// Append assigns the next sequence numbers to the proposed entries and
// inserts them, all inside the caller's transaction. The sequence counter
// lives in the account row, so the read-and-increment is guarded by the
// transaction's row lock: numbers are gapless and never reused, and the
// entries become visible atomically with whatever mutation the caller
// performs in the same transaction.
func Append(ctx context.Context, tx db.Transaction, accountID mail.AccountID, proposed ...Proposed) ([]db.LogEntry, error) {
	now := time.Now().UTC()

	entries := make([]db.LogEntry, 0, len(proposed))

	for _, p := range proposed {
		if !p.Op.IsValid() {
			return nil, fmt.Errorf("invalid log operation %q", p.Op)
		}

		seq, err := tx.NextLogSeq(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("assigning log sequence: %w", err)
		}

		entry := db.LogEntry{
			Seq:        seq,
			AccountID:  accountID,
			ObjectType: p.ObjectType,
			ObjectID:   p.ObjectID,
			Op:         p.Op,
			Timestamp:  now,
		}

		if err := tx.InsertLogEntry(ctx, entry); err != nil {
			return nil, fmt.Errorf("appending log entry: %w", err)
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

// Reader is the outward-facing, read-only cursor API over the log. It is the
// contract downstream delta-sync layers depend on: entries come back in
// ascending sequence order, their content never changes once returned, and
// re-reading from an old cursor is always safe (at-least-once delivery).
type Reader struct {
	client db.Client
}

func NewReader(client db.Client) *Reader {
	return &Reader{client: client}
}

// ReadSince returns up to limit entries with sequence number strictly greater
// than cursor. A cursor of 0 reads from the beginning.
func (r *Reader) ReadSince(ctx context.Context, accountID mail.AccountID, cursor int64, limit int) ([]db.LogEntry, error) {
	return db.ClientReadType(ctx, r.client, func(ctx context.Context, read db.ReadOnly) ([]db.LogEntry, error) {
		return read.GetLogEntriesSince(ctx, accountID, cursor, limit)
	})
}

// Validate checks that a slice of entries read from one account is strictly
// increasing with no gaps, starting right after the given cursor. A violation
// means a reconciler bug and is never silently repaired.
func Validate(cursor int64, entries []db.LogEntry) error {
	next := cursor + 1

	for _, entry := range entries {
		if entry.Seq != next {
			return fmt.Errorf("transaction log gap: expected seq %v, got %v", next, entry.Seq)
		}

		next++
	}

	return nil
}
