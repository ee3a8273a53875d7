// Package imapclient implements the remote provider capability against plain
// IMAP servers. Generic IMAP has no change journal, so the change cursor is
// the pair (UIDVALIDITY, highest seen UID): new mail is everything above the
// UID watermark, while flag changes and expunges are found by walking the
// watermarked range. A UIDVALIDITY bump invalidates the cursor outright.
package imapclient

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"golang.org/x/exp/slices"

	"github.com/closeio/nylas/mail"
	"github.com/closeio/nylas/remote"
)

// Credentials is the resolved login material for one account.
type Credentials struct {
	Address  string
	Username string
	Password string
	Insecure bool
}

// Resolver turns a stored credentials reference into login material. Secrets
// stay inside the resolver's backing store.
type Resolver interface {
	Resolve(ctx context.Context, accountID mail.AccountID, credentialsRef string) (Credentials, error)
}

// Factory opens IMAP sessions using a credentials resolver.
type Factory struct {
	resolver Resolver
}

func NewFactory(resolver Resolver) *Factory {
	return &Factory{resolver: resolver}
}

func (f *Factory) NewClient(ctx context.Context, accountID mail.AccountID, credentialsRef string) (remote.Client, error) {
	creds, err := f.resolver.Resolve(ctx, accountID, credentialsRef)
	if err != nil {
		return nil, fmt.Errorf("resolving credentials: %w", err)
	}

	cl, err := client.DialTLS(creds.Address, &tls.Config{InsecureSkipVerify: creds.Insecure}) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("dialing %v: %w", creds.Address, err)
	}

	if err := cl.Login(creds.Username, creds.Password); err != nil {
		cl.Close()

		return nil, remote.ErrAuthRevoked
	}

	return &Client{cl: cl}, nil
}

// Client is one authenticated IMAP session.
type Client struct {
	cl *client.Client
}

func (c *Client) ListFolders(ctx context.Context) ([]remote.FolderInfo, error) {
	infoCh := make(chan *imap.MailboxInfo, 16)
	done := make(chan error, 1)

	go func() {
		done <- c.cl.List("", "*", infoCh)
	}()

	var infos []remote.FolderInfo

	for info := range infoCh {
		if hasAttr(info.Attributes, imap.NoSelectAttr) {
			continue
		}

		infos = append(infos, remote.FolderInfo{RemoteID: info.Name, Name: info.Name})
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("listing mailboxes: %w", err)
	}

	return infos, nil
}

func (c *Client) ListAll(ctx context.Context, folderRemoteID string, pageToken mail.PageToken, limit int) (remote.Page, error) {
	status, err := c.selectFolder(folderRemoteID)
	if err != nil {
		return remote.Page{}, err
	}

	var after uint32

	if pageToken != "" {
		parsed, err := strconv.ParseUint(string(pageToken), 10, 32)
		if err != nil {
			return remote.Page{}, fmt.Errorf("malformed page token %q", pageToken)
		}

		after = uint32(parsed)
	}

	uids, err := c.searchUIDs()
	if err != nil {
		return remote.Page{}, err
	}

	var pageUIDs []uint32

	for _, uid := range uids {
		if uid > after {
			pageUIDs = append(pageUIDs, uid)
		}

		if len(pageUIDs) == limit {
			break
		}
	}

	var page remote.Page

	if len(pageUIDs) == limit && pageUIDs[len(pageUIDs)-1] < maxUID(uids) {
		page.Next = mail.PageToken(strconv.FormatUint(uint64(pageUIDs[len(pageUIDs)-1]), 10))
	} else {
		page.Cursor = makeCursor(status.UidValidity, maxUID(uids))
	}

	if len(pageUIDs) == 0 {
		return page, nil
	}

	snapshots, err := c.fetchSnapshots(pageUIDs)
	if err != nil {
		return remote.Page{}, err
	}

	page.Snapshots = snapshots

	return page, nil
}

func (c *Client) Changes(ctx context.Context, folderRemoteID string, cursor mail.Cursor) (remote.ChangeSet, error) {
	status, err := c.selectFolder(folderRemoteID)
	if err != nil {
		return remote.ChangeSet{}, err
	}

	uidValidity, lastUID, err := parseCursor(cursor)
	if err != nil {
		return remote.ChangeSet{}, remote.ErrCursorInvalid
	}

	if uidValidity != status.UidValidity {
		return remote.ChangeSet{}, remote.ErrCursorInvalid
	}

	uids, err := c.searchUIDs()
	if err != nil {
		return remote.ChangeSet{}, err
	}

	set := remote.ChangeSet{Cursor: makeCursor(status.UidValidity, max32(lastUID, maxUID(uids)))}

	slices.Sort(uids)

	// UIDs inside the watermark that vanished were expunged. Walking the gaps
	// in the sorted listing keeps the scan proportional to the mailbox size
	// rather than the UID watermark. A gone report for a UID never seen
	// locally is harmless: the reconciler ignores it.
	for _, uid := range expungedUIDs(uids, lastUID) {
		set.Observations = append(set.Observations, mail.ObservedGone(formatUID(uid)))
	}

	// Without CONDSTORE there is no way to know which of the remaining
	// messages changed flags, so all of them are re-observed. Unchanged ones
	// reconcile to no-ops through the content hash.
	if len(uids) > 0 {
		snapshots, err := c.fetchSnapshots(uids)
		if err != nil {
			return remote.ChangeSet{}, err
		}

		for _, snapshot := range snapshots {
			set.Observations = append(set.Observations, mail.Observed(snapshot))
		}
	}

	return set, nil
}

func (c *Client) FetchBody(ctx context.Context, folderRemoteID, messageRemoteID string) ([]byte, error) {
	if _, err := c.selectFolder(folderRemoteID); err != nil {
		return nil, err
	}

	uid, err := strconv.ParseUint(messageRemoteID, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("malformed message remote id %q", messageRemoteID)
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uint32(uid))

	section := &imap.BodySectionName{Peek: true}

	msgCh := make(chan *imap.Message, 1)
	done := make(chan error, 1)

	go func() {
		done <- c.cl.UidFetch(seqSet, []imap.FetchItem{section.FetchItem()}, msgCh)
	}()

	var body []byte

	for msg := range msgCh {
		if literal := msg.GetBody(section); literal != nil {
			if body, err = io.ReadAll(literal); err != nil {
				return nil, fmt.Errorf("reading message literal: %w", err)
			}
		}
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetching message body: %w", err)
	}

	if body == nil {
		return nil, fmt.Errorf("message %v not found", messageRemoteID)
	}

	return body, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.cl.Logout()
}

func (c *Client) selectFolder(folderRemoteID string) (*imap.MailboxStatus, error) {
	status, err := c.cl.Select(folderRemoteID, true)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "nonexistent") {
			return nil, remote.ErrFolderDeleted
		}

		return nil, fmt.Errorf("selecting %q: %w", folderRemoteID, err)
	}

	return status, nil
}

func (c *Client) searchUIDs() ([]uint32, error) {
	criteria := imap.NewSearchCriteria()

	uids, err := c.cl.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("searching uids: %w", err)
	}

	return uids, nil
}

func (c *Client) fetchSnapshots(uids []uint32) ([]mail.Snapshot, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	items := []imap.FetchItem{imap.FetchUid, imap.FetchEnvelope, imap.FetchFlags, imap.FetchRFC822Size}

	msgCh := make(chan *imap.Message, 16)
	done := make(chan error, 1)

	go func() {
		done <- c.cl.UidFetch(seqSet, items, msgCh)
	}()

	var snapshots []mail.Snapshot

	for msg := range msgCh {
		snapshot := mail.Snapshot{
			RemoteID: formatUID(msg.Uid),
			Type:     mail.ObjectTypeMessage,
			Flags:    filterRecent(msg.Flags),
			Size:     int(msg.Size),
		}

		if msg.Envelope != nil {
			snapshot.Subject = msg.Envelope.Subject
			snapshot.Date = msg.Envelope.Date.UTC()

			if len(msg.Envelope.From) > 0 {
				snapshot.Sender = msg.Envelope.From[0].Address()
			}
		}

		snapshots = append(snapshots, snapshot)
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetching envelopes: %w", err)
	}

	return snapshots, nil
}

// filterRecent drops \Recent, which the server flips per session and would
// otherwise churn content hashes.
func filterRecent(flags []string) []string {
	filtered := make([]string, 0, len(flags))

	for _, flag := range flags {
		if !strings.EqualFold(flag, imap.RecentFlag) {
			filtered = append(filtered, flag)
		}
	}

	return filtered
}

func hasAttr(attrs []string, want string) bool {
	for _, attr := range attrs {
		if strings.EqualFold(attr, want) {
			return true
		}
	}

	return false
}

func makeCursor(uidValidity, lastUID uint32) mail.Cursor {
	return mail.Cursor(fmt.Sprintf("%v:%v", uidValidity, lastUID))
}

func parseCursor(cursor mail.Cursor) (uidValidity, lastUID uint32, err error) {
	parts := strings.SplitN(string(cursor), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("malformed cursor %q", cursor)
	}

	validity, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, err
	}

	last, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, err
	}

	return uint32(validity), uint32(last), nil
}

func formatUID(uid uint32) mail.MessageID {
	return mail.MessageID(strconv.FormatUint(uint64(uid), 10))
}

// expungedUIDs returns the UIDs missing from the sorted uid list, up to and
// including the watermark.
func expungedUIDs(uids []uint32, lastUID uint32) []uint32 {
	var gone []uint32

	next := uint32(1)

	for _, uid := range uids {
		if uid > lastUID {
			break
		}

		for ; next < uid; next++ {
			gone = append(gone, next)
		}

		next = uid + 1
	}

	for ; next != 0 && next <= lastUID; next++ {
		gone = append(gone, next)
	}

	return gone
}

func maxUID(uids []uint32) uint32 {
	var maxVal uint32

	for _, uid := range uids {
		if uid > maxVal {
			maxVal = uid
		}
	}

	return maxVal
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}

	return b
}
