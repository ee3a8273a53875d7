// Package reconcile turns a batch of remote observations into local message
// mutations plus transaction log entries. It is the only code path that
// appends to the log, and it only ever runs inside a single store
// transaction: either every mutation and every entry of a batch commits, or
// none do.
package reconcile

import (
	"context"
	"fmt"

	"github.com/closeio/nylas/db"
	"github.com/closeio/nylas/internal/hash"
	"github.com/closeio/nylas/mail"
	"github.com/closeio/nylas/txlog"
)

// Policy controls how conflicting observations of the same remote object
// within one batch collapse.
type Policy struct {
	// DeleteWins makes a gone observation beat any present observation of the
	// same object in the batch. When false, the last observation wins.
	DeleteWins bool
}

// CreatedMessage ties a newly inserted message's internal ID back to the
// remote ID it was observed under, so callers can fetch its content.
type CreatedMessage struct {
	RemoteID  mail.MessageID
	MessageID mail.InternalMessageID
}

// Result summarizes what a batch changed.
type Result struct {
	Created   int
	Updated   int
	Deleted   int
	Unchanged int

	CreatedMessages []CreatedMessage
	Entries         []db.LogEntry
}

// Apply reconciles observations against the folder's local messages.
//
// Reconciliation is idempotent: an observation matching the stored content
// hash produces no mutation and no log entry, so replaying a batch after a
// crash cannot inflate the log. Every mutation's revision is the sequence
// number of the log entry that records it.
func Apply(ctx context.Context, tx db.Transaction, folder *db.Folder, observations []mail.Observation, policy Policy) (Result, error) {
	var result Result

	for _, obs := range collapse(observations, policy) {
		if obs.Present {
			if err := applyPresent(ctx, tx, folder, obs.Snapshot, &result); err != nil {
				return Result{}, err
			}
		} else {
			if err := applyGone(ctx, tx, folder, obs.Snapshot.RemoteID, &result); err != nil {
				return Result{}, err
			}
		}
	}

	return result, nil
}

// collapse reduces the batch to at most one observation per remote ID,
// preserving first-seen order.
func collapse(observations []mail.Observation, policy Policy) []mail.Observation {
	index := make(map[mail.MessageID]int, len(observations))
	collapsed := make([]mail.Observation, 0, len(observations))

	for _, obs := range observations {
		idx, seen := index[obs.Snapshot.RemoteID]
		if !seen {
			index[obs.Snapshot.RemoteID] = len(collapsed)
			collapsed = append(collapsed, obs)

			continue
		}

		if policy.DeleteWins && !collapsed[idx].Present {
			continue
		}

		collapsed[idx] = obs
	}

	return collapsed
}

func applyPresent(ctx context.Context, tx db.Transaction, folder *db.Folder, snapshot mail.Snapshot, result *Result) error {
	contentHash := hash.Snapshot(snapshot)

	existing, err := tx.GetMessageByRemoteID(ctx, folder.ID, snapshot.RemoteID)
	if db.IsErrNotFound(err) {
		return createMessage(ctx, tx, folder, snapshot, contentHash, result)
	} else if err != nil {
		return fmt.Errorf("looking up message %q: %w", snapshot.RemoteID, err)
	}

	if !existing.Deleted && existing.Hash == contentHash {
		result.Unchanged++

		return nil
	}

	// A previously deleted message observed again is a new insert as far as
	// log consumers are concerned; a live message with a different hash is an
	// update.
	op := mail.OpUpdate
	if existing.Deleted {
		op = mail.OpInsert
	}

	entries, err := txlog.Append(ctx, tx, folder.AccountID, txlog.Proposed{
		ObjectType: snapshot.Type,
		ObjectID:   existing.ID,
		Op:         op,
	})
	if err != nil {
		return err
	}

	if err := tx.SetMessageHash(ctx, existing.ID, contentHash, entries[0].Seq); err != nil {
		return fmt.Errorf("updating message %v: %w", existing.ID, err)
	}

	if existing.Deleted {
		result.Created++
		result.CreatedMessages = append(result.CreatedMessages, CreatedMessage{RemoteID: snapshot.RemoteID, MessageID: existing.ID})
	} else {
		result.Updated++
	}

	result.Entries = append(result.Entries, entries...)

	return nil
}

func createMessage(ctx context.Context, tx db.Transaction, folder *db.Folder, snapshot mail.Snapshot, contentHash string, result *Result) error {
	messageID := mail.NewInternalMessageID()

	entries, err := txlog.Append(ctx, tx, folder.AccountID, txlog.Proposed{
		ObjectType: snapshot.Type,
		ObjectID:   messageID,
		Op:         mail.OpInsert,
	})
	if err != nil {
		return err
	}

	msg := &db.Message{
		ID:       messageID,
		FolderID: folder.ID,
		RemoteID: snapshot.RemoteID,
		Type:     snapshot.Type,
		Hash:     contentHash,
		Revision: entries[0].Seq,
	}

	if err := tx.CreateMessage(ctx, msg); err != nil {
		// A duplicate here means two writers got past the coordination lock.
		return fmt.Errorf("creating message %q: %w", snapshot.RemoteID, err)
	}

	result.Created++
	result.CreatedMessages = append(result.CreatedMessages, CreatedMessage{RemoteID: snapshot.RemoteID, MessageID: messageID})
	result.Entries = append(result.Entries, entries...)

	return nil
}

func applyGone(ctx context.Context, tx db.Transaction, folder *db.Folder, remoteID mail.MessageID, result *Result) error {
	existing, err := tx.GetMessageByRemoteID(ctx, folder.ID, remoteID)
	if db.IsErrNotFound(err) {
		// Never knew about it, nothing to record.
		result.Unchanged++

		return nil
	} else if err != nil {
		return fmt.Errorf("looking up message %q: %w", remoteID, err)
	}

	if existing.Deleted {
		result.Unchanged++

		return nil
	}

	entries, err := txlog.Append(ctx, tx, folder.AccountID, txlog.Proposed{
		ObjectType: existing.Type,
		ObjectID:   existing.ID,
		Op:         mail.OpDelete,
	})
	if err != nil {
		return err
	}

	if err := tx.SetMessageDeleted(ctx, existing.ID, entries[0].Seq); err != nil {
		return fmt.Errorf("deleting message %v: %w", existing.ID, err)
	}

	result.Deleted++
	result.Entries = append(result.Entries, entries...)

	return nil
}
