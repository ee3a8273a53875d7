package remote

import (
	"context"
	"fmt"
	"io"
	"net/mail"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bradenaw/juniper/xslices"
	gomail "github.com/closeio/nylas/mail"
	"github.com/emersion/go-mbox"
)

type dummyMessage struct {
	snapshot gomail.Snapshot
	body     []byte
	modSeq   int64
}

type dummyTombstone struct {
	remoteID string
	modSeq   int64
}

type dummyFolder struct {
	info       FolderInfo
	generation int64
	nextUID    int64
	messages   map[string]*dummyMessage
	tombstones []dummyTombstone
}

// Dummy is an in-memory provider for tests and local development. Tests drive
// the remote side through its mutation methods and the engine observes the
// result through the regular Client interface.
//
// Change history is modelled with a per-account modification sequence: every
// mutation bumps it and stamps the touched message (or its tombstone), so an
// incremental poll is "everything stamped after the cursor".
type Dummy struct {
	lock sync.Mutex

	folders    map[string]*dummyFolder
	modSeq     int64
	nextFolder int64

	authRevoked bool
	failWith    error
}

func NewDummy() *Dummy {
	return &Dummy{folders: make(map[string]*dummyFolder)}
}

// NewClient implements Factory. Every session shares the dummy's state.
func (d *Dummy) NewClient(ctx context.Context, accountID gomail.AccountID, credentialsRef string) (Client, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if d.authRevoked {
		return nil, ErrAuthRevoked
	}

	return d, nil
}

// --- test-side mutation API ---

// CreateFolder creates a remote folder and returns its remote ID.
func (d *Dummy) CreateFolder(name string) string {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.nextFolder++
	remoteID := fmt.Sprintf("f%v", d.nextFolder)

	d.folders[remoteID] = &dummyFolder{
		info:       FolderInfo{RemoteID: remoteID, Name: name},
		generation: 1,
		messages:   make(map[string]*dummyMessage),
	}

	return remoteID
}

// SetFolderName renames a remote folder, keeping its remote ID.
func (d *Dummy) SetFolderName(folderRemoteID, name string) {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.folders[folderRemoteID].info.Name = name
}

// DeleteFolder removes a remote folder and all its contents.
func (d *Dummy) DeleteFolder(folderRemoteID string) {
	d.lock.Lock()
	defer d.lock.Unlock()

	delete(d.folders, folderRemoteID)
}

// AddMessage adds a message to a folder and returns its remote ID.
func (d *Dummy) AddMessage(folderRemoteID string, snapshot gomail.Snapshot, body []byte) string {
	d.lock.Lock()
	defer d.lock.Unlock()

	folder, ok := d.folders[folderRemoteID]
	if !ok {
		panic(fmt.Sprintf("no such folder %q", folderRemoteID))
	}

	folder.nextUID++
	d.modSeq++

	uid := strconv.FormatInt(folder.nextUID, 10)

	snapshot.RemoteID = gomail.MessageID(uid)
	if snapshot.Type == "" {
		snapshot.Type = gomail.ObjectTypeMessage
	}
	if snapshot.Size == 0 {
		snapshot.Size = len(body)
	}

	folder.messages[uid] = &dummyMessage{
		snapshot: snapshot,
		body:     body,
		modSeq:   d.modSeq,
	}

	return uid
}

// SetFlags replaces a message's flag set, registering a change.
func (d *Dummy) SetFlags(folderRemoteID, messageRemoteID string, flags []string) {
	d.lock.Lock()
	defer d.lock.Unlock()

	msg := d.folders[folderRemoteID].messages[messageRemoteID]

	d.modSeq++
	msg.snapshot.Flags = flags
	msg.modSeq = d.modSeq
}

// DeleteMessage removes a message, leaving a tombstone for incremental polls.
func (d *Dummy) DeleteMessage(folderRemoteID, messageRemoteID string) {
	d.lock.Lock()
	defer d.lock.Unlock()

	folder := d.folders[folderRemoteID]
	if _, ok := folder.messages[messageRemoteID]; !ok {
		return
	}

	d.modSeq++
	delete(folder.messages, messageRemoteID)
	folder.tombstones = append(folder.tombstones, dummyTombstone{remoteID: messageRemoteID, modSeq: d.modSeq})
}

// InvalidateFolder bumps the folder's generation, which invalidates every
// cursor handed out for it so far.
func (d *Dummy) InvalidateFolder(folderRemoteID string) {
	d.lock.Lock()
	defer d.lock.Unlock()

	folder := d.folders[folderRemoteID]
	folder.generation++
	folder.tombstones = nil
}

// RevokeAuth makes all current and future sessions fail with ErrAuthRevoked.
func (d *Dummy) RevokeAuth() {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.authRevoked = true
}

// FailWith makes every subsequent operation return the given error until
// called again with nil. Used to simulate transient provider outages.
func (d *Dummy) FailWith(err error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	d.failWith = err
}

// SeedMbox loads messages from an mbox stream into a folder. Headers that the
// snapshot carries (subject, sender, date) are parsed from each message.
func (d *Dummy) SeedMbox(folderRemoteID string, r io.Reader) (int, error) {
	mr := mbox.NewReader(r)

	var count int

	for {
		msgReader, err := mr.NextMessage()
		if err == io.EOF {
			return count, nil
		} else if err != nil {
			return count, fmt.Errorf("reading mbox message: %w", err)
		}

		body, err := io.ReadAll(msgReader)
		if err != nil {
			return count, fmt.Errorf("reading mbox message body: %w", err)
		}

		snapshot := gomail.Snapshot{Type: gomail.ObjectTypeMessage, Size: len(body)}

		if parsed, err := mail.ReadMessage(strings.NewReader(string(body))); err == nil {
			snapshot.Subject = parsed.Header.Get("Subject")
			snapshot.Sender = parsed.Header.Get("From")

			if date, err := parsed.Header.Date(); err == nil {
				snapshot.Date = date.UTC()
			}
		}

		if snapshot.Date.IsZero() {
			snapshot.Date = time.Now().UTC()
		}

		d.AddMessage(folderRemoteID, snapshot, body)

		count++
	}
}

// --- Client implementation ---

func (d *Dummy) ListFolders(ctx context.Context) ([]FolderInfo, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if err := d.checkErr(); err != nil {
		return nil, err
	}

	infos := xslices.Map(sortedKeys(d.folders), func(remoteID string) FolderInfo {
		return d.folders[remoteID].info
	})

	return infos, nil
}

func (d *Dummy) ListAll(ctx context.Context, folderRemoteID string, pageToken gomail.PageToken, limit int) (Page, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if err := d.checkErr(); err != nil {
		return Page{}, err
	}

	folder, ok := d.folders[folderRemoteID]
	if !ok {
		return Page{}, ErrFolderDeleted
	}

	remoteIDs := sortedKeys(folder.messages)

	if pageToken != "" {
		after, err := strconv.ParseInt(string(pageToken), 10, 64)
		if err != nil {
			return Page{}, fmt.Errorf("malformed page token %q", pageToken)
		}

		remoteIDs = xslices.Filter(remoteIDs, func(remoteID string) bool {
			uid, _ := strconv.ParseInt(remoteID, 10, 64)
			return uid > after
		})
	}

	var page Page

	if len(remoteIDs) > limit {
		remoteIDs = remoteIDs[:limit]
		page.Next = gomail.PageToken(remoteIDs[len(remoteIDs)-1])
	} else {
		page.Cursor = d.cursor(folder)
	}

	page.Snapshots = xslices.Map(remoteIDs, func(remoteID string) gomail.Snapshot {
		return folder.messages[remoteID].snapshot
	})

	return page, nil
}

func (d *Dummy) Changes(ctx context.Context, folderRemoteID string, cursor gomail.Cursor) (ChangeSet, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if err := d.checkErr(); err != nil {
		return ChangeSet{}, err
	}

	folder, ok := d.folders[folderRemoteID]
	if !ok {
		return ChangeSet{}, ErrFolderDeleted
	}

	generation, since, err := parseCursor(cursor)
	if err != nil || generation != folder.generation {
		return ChangeSet{}, ErrCursorInvalid
	}

	set := ChangeSet{Cursor: d.cursor(folder)}

	for _, remoteID := range sortedKeys(folder.messages) {
		if msg := folder.messages[remoteID]; msg.modSeq > since {
			set.Observations = append(set.Observations, gomail.Observed(msg.snapshot))
		}
	}

	for _, tomb := range folder.tombstones {
		if tomb.modSeq > since {
			set.Observations = append(set.Observations, gomail.ObservedGone(gomail.MessageID(tomb.remoteID)))
		}
	}

	return set, nil
}

func (d *Dummy) FetchBody(ctx context.Context, folderRemoteID, messageRemoteID string) ([]byte, error) {
	d.lock.Lock()
	defer d.lock.Unlock()

	if err := d.checkErr(); err != nil {
		return nil, err
	}

	folder, ok := d.folders[folderRemoteID]
	if !ok {
		return nil, ErrFolderDeleted
	}

	msg, ok := folder.messages[messageRemoteID]
	if !ok {
		return nil, fmt.Errorf("no such message %q", messageRemoteID)
	}

	return msg.body, nil
}

func (d *Dummy) Close(ctx context.Context) error {
	return nil
}

func (d *Dummy) checkErr() error {
	if d.authRevoked {
		return ErrAuthRevoked
	}

	return d.failWith
}

func (d *Dummy) cursor(folder *dummyFolder) gomail.Cursor {
	return gomail.Cursor(fmt.Sprintf("%v:%v", folder.generation, d.modSeq))
}

func parseCursor(cursor gomail.Cursor) (generation, since int64, err error) {
	parts := strings.SplitN(string(cursor), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed cursor %q", cursor)
	}

	if generation, err = strconv.ParseInt(parts[0], 10, 64); err != nil {
		return 0, 0, err
	}

	if since, err = strconv.ParseInt(parts[1], 10, 64); err != nil {
		return 0, 0, err
	}

	return generation, since, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))

	for key := range m {
		keys = append(keys, key)
	}

	sort.Slice(keys, func(i, j int) bool {
		left, errL := strconv.ParseInt(keys[i], 10, 64)
		right, errR := strconv.ParseInt(keys[j], 10, 64)

		if errL == nil && errR == nil {
			return left < right
		}

		return keys[i] < keys[j]
	})

	return keys
}
