package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/closeio/nylas/db"
	"github.com/closeio/nylas/events"
	"github.com/closeio/nylas/mail"
	"github.com/closeio/nylas/remote"
	"github.com/closeio/nylas/store"
	"github.com/closeio/nylas/txlog"
)

// StoreOpener opens the body store of one account. A nil opener disables
// body caching for the whole engine.
type StoreOpener func(accountID mail.AccountID) (store.Store, error)

// AccountSyncer runs complete sync passes: folder discovery, then each
// enabled folder through its state machine, then the account's bookkeeping.
// It assumes the caller holds the account's coordination lock.
type AccountSyncer struct {
	client    db.Client
	factory   remote.Factory
	openStore StoreOpener
	cfg       Config
	publish   func(events.Event)
	log       *logrus.Entry
}

func NewAccountSyncer(client db.Client, factory remote.Factory, openStore StoreOpener, cfg Config, publish func(events.Event)) *AccountSyncer {
	return &AccountSyncer{
		client:    client,
		factory:   factory,
		openStore: openStore,
		cfg:       cfg,
		publish:   publish,
		log:       logrus.WithField("pkg", "syncer"),
	}
}

// Sync performs one pass over the account. A transient error aborts the pass
// and is returned for the scheduler to back off on; folder level permanent
// failures disable the folder and the pass continues.
func (s *AccountSyncer) Sync(ctx context.Context, accountID mail.AccountID) error {
	account, err := db.ClientReadType(ctx, s.client, func(ctx context.Context, read db.ReadOnly) (*db.Account, error) {
		return read.GetAccount(ctx, accountID)
	})
	if err != nil {
		return fmt.Errorf("loading account: %w", err)
	}

	remoteClient, err := s.factory.NewClient(ctx, accountID, account.CredentialsRef)
	if err != nil {
		return fmt.Errorf("opening remote session: %w", err)
	}

	defer func() {
		if err := remoteClient.Close(ctx); err != nil {
			s.log.WithError(err).Warn("Failed to close remote session")
		}
	}()

	var bodyStore store.Store

	if s.openStore != nil && s.cfg.FetchBodies {
		if bodyStore, err = s.openStore(accountID); err != nil {
			return fmt.Errorf("opening body store: %w", err)
		}

		defer func() {
			if err := bodyStore.Close(); err != nil {
				s.log.WithError(err).Warn("Failed to close body store")
			}
		}()
	}

	s.publish(events.SyncStarted{AccountID: accountID})

	if err := s.discoverFolders(ctx, remoteClient, accountID); err != nil {
		return fmt.Errorf("discovering folders: %w", err)
	}

	folders, err := db.ClientReadType(ctx, s.client, func(ctx context.Context, read db.ReadOnly) ([]*db.Folder, error) {
		return read.GetAccountFolders(ctx, accountID)
	})
	if err != nil {
		return err
	}

	log := s.log.WithField("account", accountID)
	folderSyncer := NewFolderSyncer(s.client, remoteClient, bodyStore, s.cfg, s.publish, log)

	for _, folder := range folders {
		if folder.Disabled {
			continue
		}

		err := folderSyncer.SyncFolder(ctx, folder.ID)

		switch {
		case err == nil:

		case errors.Is(err, remote.ErrFolderDeleted):
			// The folder vanished mid pass; discovery on the next pass would
			// catch it anyway, but retiring it now keeps the log timely.
			if err := s.retireFolder(ctx, folder); err != nil {
				return err
			}

		case errors.Is(err, remote.ErrAuthRevoked):
			return err

		case remote.IsPermanent(err):
			log.WithError(err).WithField("folder", folder.ID).Error("Disabling folder after permanent failure")

			if err := s.client.Write(ctx, func(ctx context.Context, tx db.Transaction) error {
				return tx.SetFolderDisabled(ctx, folder.ID, true)
			}); err != nil {
				return err
			}

			s.publish(events.FolderDisabled{AccountID: accountID, FolderID: folder.ID, Error: err})

		default:
			return err
		}
	}

	if err := s.client.Write(ctx, func(ctx context.Context, tx db.Transaction) error {
		return tx.SetAccountLastSynced(ctx, accountID, time.Now().UTC())
	}); err != nil {
		return err
	}

	lastSeq, err := db.ClientReadType(ctx, s.client, func(ctx context.Context, read db.ReadOnly) (int64, error) {
		return read.GetLastLogSeq(ctx, accountID)
	})
	if err != nil {
		return err
	}

	s.publish(events.SyncFinished{AccountID: accountID, LastLogSeq: lastSeq})

	return nil
}

// discoverFolders reconciles the local folder list against the remote one:
// unknown remote folders are created, renames are picked up, and tracked
// folders that disappeared remotely are retired with their messages
// tombstoned.
func (s *AccountSyncer) discoverFolders(ctx context.Context, remoteClient remote.Client, accountID mail.AccountID) error {
	infos, err := remoteClient.ListFolders(ctx)
	if err != nil {
		return err
	}

	local, err := db.ClientReadType(ctx, s.client, func(ctx context.Context, read db.ReadOnly) ([]*db.Folder, error) {
		return read.GetAccountFolders(ctx, accountID)
	})
	if err != nil {
		return err
	}

	byRemoteID := make(map[mail.FolderID]*db.Folder, len(local))
	for _, folder := range local {
		byRemoteID[folder.RemoteID] = folder
	}

	remoteIDs := make(map[mail.FolderID]struct{}, len(infos))

	for _, info := range infos {
		remoteID := mail.FolderID(info.RemoteID)
		remoteIDs[remoteID] = struct{}{}

		existing, ok := byRemoteID[remoteID]
		if !ok {
			var created *db.Folder

			if err := s.client.Write(ctx, func(ctx context.Context, tx db.Transaction) error {
				created, err = tx.CreateFolder(ctx, accountID, remoteID, info.Name)

				return err
			}); err != nil {
				return err
			}

			s.publish(events.FolderDiscovered{AccountID: accountID, FolderID: created.ID, Name: info.Name})

			continue
		}

		if existing.Name != info.Name {
			if err := s.client.Write(ctx, func(ctx context.Context, tx db.Transaction) error {
				return tx.SetFolderName(ctx, existing.ID, info.Name)
			}); err != nil {
				return err
			}
		}
	}

	for _, folder := range local {
		if folder.Disabled {
			continue
		}

		if _, ok := remoteIDs[folder.RemoteID]; !ok {
			if err := s.retireFolder(ctx, folder); err != nil {
				return err
			}
		}
	}

	return nil
}

// retireFolder logs a delete for every live message in the folder and flags
// the folder disabled, in one transaction. The folder and message rows stay
// behind as tombstones: hard-deleting them would orphan the log entries that
// still reference them.
func (s *AccountSyncer) retireFolder(ctx context.Context, folder *db.Folder) error {
	if err := s.client.Write(ctx, func(ctx context.Context, tx db.Transaction) error {
		messages, err := tx.GetFolderMessages(ctx, folder.ID, false)
		if err != nil {
			return err
		}

		for _, msg := range messages {
			entries, err := txlog.Append(ctx, tx, folder.AccountID, txlog.Proposed{
				ObjectType: msg.Type,
				ObjectID:   msg.ID,
				Op:         mail.OpDelete,
			})
			if err != nil {
				return err
			}

			if err := tx.SetMessageDeleted(ctx, msg.ID, entries[0].Seq); err != nil {
				return err
			}
		}

		return tx.SetFolderDisabled(ctx, folder.ID, true)
	}); err != nil {
		return fmt.Errorf("retiring folder %v: %w", folder.ID, err)
	}

	s.publish(events.FolderRemoved{AccountID: folder.AccountID, FolderID: folder.ID})

	return nil
}
