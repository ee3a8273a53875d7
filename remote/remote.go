// Package remote defines the capability a mail provider must implement for
// its accounts to be synchronized. The engine only ever observes a provider
// through this interface; provider-specific protocols live behind it.
package remote

import (
	"context"
	"errors"

	"github.com/closeio/nylas/mail"
)

var (
	// ErrCursorInvalid reports that a change cursor no longer identifies a
	// point in the folder's history and the caller must fall back to a full
	// listing.
	ErrCursorInvalid = errors.New("change cursor is no longer valid")

	// ErrFolderDeleted reports that the folder no longer exists remotely.
	ErrFolderDeleted = errors.New("folder no longer exists")

	// ErrAuthRevoked reports that the account's credentials were rejected
	// and will not recover without operator action.
	ErrAuthRevoked = errors.New("account credentials revoked")
)

// IsPermanent reports whether an error can never be fixed by retrying with
// the same inputs. Permanent errors change the engine's state machine;
// everything else is treated as transient and retried with backoff.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrCursorInvalid) ||
		errors.Is(err, ErrFolderDeleted) ||
		errors.Is(err, ErrAuthRevoked)
}

// FolderInfo describes a remote folder as the provider reports it.
type FolderInfo struct {
	RemoteID string
	Name     string
}

// Page is one batch of a full folder listing. Next resumes the listing after
// this batch; an empty Next means the listing is complete, and only then is
// Cursor set to the point in history the listing is consistent with.
type Page struct {
	Snapshots []mail.Snapshot
	Next      mail.PageToken
	Cursor    mail.Cursor
}

// ChangeSet is the result of an incremental poll: observations for every
// object that changed since the request cursor, plus the cursor to poll from
// next time. Changed and Cursor are consistent with each other.
type ChangeSet struct {
	Observations []mail.Observation
	Cursor       mail.Cursor
}

// Client is a live session against one account's provider.
//
// ListAll and Changes return observations, never deltas: the provider reports
// what exists now and the reconciler works out what to do about it.
type Client interface {
	// ListFolders enumerates the folders that currently exist on the account.
	ListFolders(ctx context.Context) ([]FolderInfo, error)

	// ListAll returns one page of the folder's full contents, resuming from
	// pageToken. An empty pageToken starts the listing from the beginning.
	ListAll(ctx context.Context, folderRemoteID string, pageToken mail.PageToken, limit int) (Page, error)

	// Changes returns everything that changed in the folder since cursor.
	// Returns ErrCursorInvalid when the cursor no longer points into the
	// folder's history.
	Changes(ctx context.Context, folderRemoteID string, cursor mail.Cursor) (ChangeSet, error)

	// FetchBody retrieves the full RFC 822 literal of one message.
	FetchBody(ctx context.Context, folderRemoteID, messageRemoteID string) ([]byte, error)

	Close(ctx context.Context) error
}

// Factory opens provider sessions. The credentials reference is resolved by
// the factory; raw secrets never pass through the engine.
type Factory interface {
	NewClient(ctx context.Context, accountID mail.AccountID, credentialsRef string) (Client, error)
}
