// Package syncer drives accounts and folders through their sync state
// machines: full enumeration for new or invalidated folders, cursor-based
// incremental polling for everything else. All local effects go through the
// reconciler, so a sync pass can die at any point and the next pass converges.
package syncer

import (
	"context"
	"errors"
	"fmt"

	"github.com/bradenaw/juniper/xslices"
	"github.com/sirupsen/logrus"

	"github.com/closeio/nylas/db"
	"github.com/closeio/nylas/events"
	"github.com/closeio/nylas/internal/reconcile"
	"github.com/closeio/nylas/mail"
	"github.com/closeio/nylas/remote"
	"github.com/closeio/nylas/store"
)

// Config carries the sync pass tunables shared by all accounts.
type Config struct {
	// BatchSize bounds how many observations commit per transaction.
	BatchSize int

	// Policy is the tie-break applied when one batch observes the same
	// object more than once.
	Policy reconcile.Policy

	// FetchBodies enables caching message literals in the body store.
	FetchBodies bool
}

// FolderSyncer advances one folder through its state machine. It is created
// per sync pass; the only state it keeps across calls is whether a folder's
// full listing started from the beginning in this process, which gates the
// deletion sweep.
type FolderSyncer struct {
	client  db.Client
	remote  remote.Client
	store   store.Store // nil disables body caching
	cfg     Config
	publish func(events.Event)
	log     *logrus.Entry
}

func NewFolderSyncer(client db.Client, remoteClient remote.Client, bodyStore store.Store, cfg Config, publish func(events.Event), log *logrus.Entry) *FolderSyncer {
	return &FolderSyncer{
		client:  client,
		remote:  remoteClient,
		store:   bodyStore,
		cfg:     cfg,
		publish: publish,
		log:     log,
	}
}

// SyncFolder runs the folder's state machine until it has performed one unit
// of forward progress: a completed enumeration followed by a poll, or a
// single incremental poll. Cursor invalidation is handled inline by falling
// back to enumeration, at most once per call.
func (s *FolderSyncer) SyncFolder(ctx context.Context, folderID mail.InternalFolderID) error {
	var invalidations int

	for {
		folder, err := db.ClientReadType(ctx, s.client, func(ctx context.Context, read db.ReadOnly) (*db.Folder, error) {
			return read.GetFolder(ctx, folderID)
		})
		if err != nil {
			return fmt.Errorf("loading folder: %w", err)
		}

		if folder.Disabled {
			return nil
		}

		switch folder.Status {
		case db.FolderUninitialized:
			if err := s.client.Write(ctx, func(ctx context.Context, tx db.Transaction) error {
				return tx.SetFolderStatus(ctx, folder.ID, db.FolderInitial)
			}); err != nil {
				return err
			}

		case db.FolderInitial:
			if err := s.syncInitial(ctx, folder); err != nil {
				return err
			}

		case db.FolderIncremental:
			stale, err := s.syncIncremental(ctx, folder)
			if err != nil {
				return err
			}

			if !stale {
				return nil
			}

		case db.FolderStale:
			invalidations++
			if invalidations > 1 {
				return fmt.Errorf("folder %v invalidated twice in one pass", folder.ID)
			}

			if err := s.client.Write(ctx, func(ctx context.Context, tx db.Transaction) error {
				if err := tx.SetFolderCursor(ctx, folder.ID, ""); err != nil {
					return err
				}

				if err := tx.SetFolderPageToken(ctx, folder.ID, ""); err != nil {
					return err
				}

				return tx.SetFolderStatus(ctx, folder.ID, db.FolderInitial)
			}); err != nil {
				return err
			}

		default:
			return fmt.Errorf("folder %v has unknown status %q", folder.ID, folder.Status)
		}
	}
}

// syncInitial pages through the folder's full remote contents, committing
// each page with its resume token in one transaction. A listing resumed from
// a persisted token first fast-forwards through the remaining pages, then
// restarts from the top so the deletion sweep sees the whole folder.
func (s *FolderSyncer) syncInitial(ctx context.Context, folder *db.Folder) error {
	s.publish(events.FolderSyncStarted{AccountID: folder.AccountID, FolderID: folder.ID})

	fresh := folder.PageToken == ""
	pageToken := folder.PageToken

	var seen map[mail.MessageID]struct{}
	if fresh {
		seen = make(map[mail.MessageID]struct{})
	}

	var created, updated, deleted int

	for {
		page, err := s.remote.ListAll(ctx, string(folder.RemoteID), pageToken, s.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("listing folder %v: %w", folder.ID, err)
		}

		if fresh {
			for _, snapshot := range page.Snapshots {
				seen[snapshot.RemoteID] = struct{}{}
			}
		}

		observations := xslices.Map(page.Snapshots, mail.Observed)

		var result reconcile.Result

		if err := s.client.Write(ctx, func(ctx context.Context, tx db.Transaction) error {
			if result, err = reconcile.Apply(ctx, tx, folder, observations, s.cfg.Policy); err != nil {
				return err
			}

			return tx.SetFolderPageToken(ctx, folder.ID, page.Next)
		}); err != nil {
			return err
		}

		s.cacheBodies(ctx, folder, result.CreatedMessages)

		created += result.Created
		updated += result.Updated
		deleted += result.Deleted

		if page.Next == "" {
			if !fresh {
				// A resumed listing never saw its earlier pages, so it can
				// neither sweep deletions nor trust a cursor taken after
				// them. Restart the listing from the top; everything already
				// applied reconciles to no-ops.
				if err := s.client.Write(ctx, func(ctx context.Context, tx db.Transaction) error {
					return tx.SetFolderPageToken(ctx, folder.ID, "")
				}); err != nil {
					return err
				}

				fresh = true
				pageToken = ""
				seen = make(map[mail.MessageID]struct{})

				continue
			}

			swept, err := s.finishListing(ctx, folder, seen, page.Cursor)
			if err != nil {
				return err
			}

			deleted += swept

			live, err := db.ClientReadType(ctx, s.client, func(ctx context.Context, read db.ReadOnly) (int, error) {
				return read.CountFolderMessages(ctx, folder.ID)
			})
			if err != nil {
				return err
			}

			s.log.WithFields(logrus.Fields{
				"folder":   folder.ID,
				"messages": live,
			}).Info("Initial folder listing complete")

			s.publish(events.FolderSyncFinished{
				AccountID: folder.AccountID,
				FolderID:  folder.ID,
				Created:   created,
				Updated:   updated,
				Deleted:   deleted,
			})

			return nil
		}

		pageToken = page.Next
	}
}

// finishListing sweeps local messages the completed listing never produced,
// records the folder's cursor and moves it to incremental, atomically.
func (s *FolderSyncer) finishListing(ctx context.Context, folder *db.Folder, seen map[mail.MessageID]struct{}, cursor mail.Cursor) (int, error) {
	var swept int

	if err := s.client.Write(ctx, func(ctx context.Context, tx db.Transaction) error {
		if seen != nil {
			local, err := tx.GetFolderMessages(ctx, folder.ID, false)
			if err != nil {
				return err
			}

			var gone []mail.Observation

			for _, msg := range local {
				if _, ok := seen[msg.RemoteID]; !ok {
					gone = append(gone, mail.ObservedGone(msg.RemoteID))
				}
			}

			result, err := reconcile.Apply(ctx, tx, folder, gone, s.cfg.Policy)
			if err != nil {
				return err
			}

			swept = result.Deleted
		}

		if err := tx.SetFolderPageToken(ctx, folder.ID, ""); err != nil {
			return err
		}

		if err := tx.SetFolderCursor(ctx, folder.ID, cursor); err != nil {
			return err
		}

		return tx.SetFolderStatus(ctx, folder.ID, db.FolderIncremental)
	}); err != nil {
		return 0, err
	}

	return swept, nil
}

// syncIncremental polls the folder's changes since its cursor. The returned
// bool reports that the cursor was rejected and the folder now needs a full
// re-enumeration.
func (s *FolderSyncer) syncIncremental(ctx context.Context, folder *db.Folder) (bool, error) {
	set, err := s.remote.Changes(ctx, string(folder.RemoteID), folder.Cursor)
	if errors.Is(err, remote.ErrCursorInvalid) {
		s.log.WithField("folder", folder.ID).Info("Change cursor invalidated, folder needs re-enumeration")

		if err := s.client.Write(ctx, func(ctx context.Context, tx db.Transaction) error {
			return tx.SetFolderStatus(ctx, folder.ID, db.FolderStale)
		}); err != nil {
			return false, err
		}

		s.publish(events.FolderInvalidated{AccountID: folder.AccountID, FolderID: folder.ID})

		return true, nil
	} else if err != nil {
		return false, fmt.Errorf("polling folder %v: %w", folder.ID, err)
	}

	if len(set.Observations) == 0 && set.Cursor == folder.Cursor {
		return false, nil
	}

	s.publish(events.FolderSyncStarted{AccountID: folder.AccountID, FolderID: folder.ID})

	var created, updated, deleted int

	// Chunks commit independently; the cursor only advances in the last one,
	// so a crash mid batch re-polls from the old cursor and reconciles the
	// leading chunks to no-ops.
	chunks := xslices.Chunk(set.Observations, s.cfg.BatchSize)
	if len(chunks) == 0 {
		chunks = [][]mail.Observation{nil}
	}

	for idx, chunk := range chunks {
		last := idx == len(chunks)-1

		var result reconcile.Result

		if err := s.client.Write(ctx, func(ctx context.Context, tx db.Transaction) error {
			if result, err = reconcile.Apply(ctx, tx, folder, chunk, s.cfg.Policy); err != nil {
				return err
			}

			if last {
				return tx.SetFolderCursor(ctx, folder.ID, set.Cursor)
			}

			return nil
		}); err != nil {
			return false, err
		}

		s.cacheBodies(ctx, folder, result.CreatedMessages)

		created += result.Created
		updated += result.Updated
		deleted += result.Deleted
	}

	s.publish(events.FolderSyncFinished{
		AccountID: folder.AccountID,
		FolderID:  folder.ID,
		Created:   created,
		Updated:   updated,
		Deleted:   deleted,
	})

	return false, nil
}

// cacheBodies best-effort fetches and stores literals for newly created
// messages. The body store is a cache keyed off the already committed message
// rows; a fetch failure costs nothing but a later re-fetch.
func (s *FolderSyncer) cacheBodies(ctx context.Context, folder *db.Folder, createdMessages []reconcile.CreatedMessage) {
	if s.store == nil || !s.cfg.FetchBodies || len(createdMessages) == 0 {
		return
	}

	if err := store.Tx(s.store, func(tx store.Transaction) error {
		for _, created := range createdMessages {
			literal, err := s.remote.FetchBody(ctx, string(folder.RemoteID), string(created.RemoteID))
			if err != nil {
				return err
			}

			if err := tx.Set(created.MessageID, literal); err != nil {
				return err
			}
		}

		return nil
	}); err != nil {
		s.log.WithError(err).WithField("folder", folder.ID).Warn("Failed to cache message bodies")
	}
}
