package mail

import (
	"fmt"

	"github.com/google/uuid"
)

// AccountID identifies one remote mailbox owner tracked by the system.
type AccountID string

func (a AccountID) String() string {
	return string(a)
}

// FolderID is the remote, protocol-defined identifier of a folder.
type FolderID string

// MessageID is the remote identifier of a message-like object. It is unique
// within a folder but carries no meaning across folders.
type MessageID string

// InternalFolderID identifies a folder row in the durable store. Unlike
// FolderID it survives remote renames and re-provisioning.
type InternalFolderID string

// InternalMessageID identifies a message row in the durable store. It is the
// object id recorded in the transaction log and is never reused.
type InternalMessageID string

func NewInternalFolderID() InternalFolderID {
	return InternalFolderID(uuid.NewString())
}

func NewInternalMessageID() InternalMessageID {
	return InternalMessageID(uuid.NewString())
}

func (i InternalFolderID) String() string {
	return string(i)
}

func (i InternalMessageID) String() string {
	return string(i)
}

func InternalMessageIDFromString(id string) (InternalMessageID, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("invalid message id: %w", err)
	}

	return InternalMessageID(id), nil
}

// Cursor is an opaque remote-protocol position marker used to resume
// incremental sync. It is distinct from the transaction log's sequence-number
// cursor.
type Cursor string

// PageToken is an opaque restart marker for a full folder listing.
type PageToken string
