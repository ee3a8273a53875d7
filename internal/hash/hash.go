package hash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/closeio/nylas/mail"
	"golang.org/x/exp/slices"
)

func SHA256(key []byte) []byte {
	hash := sha256.Sum256(key)

	return hash[:]
}

// Snapshot returns a stable content hash of a remote metadata snapshot.
// Flag order is not significant on the remote, so flags are sorted before
// hashing.
func Snapshot(snap mail.Snapshot) string {
	flags := slices.Clone(snap.Flags)
	slices.Sort(flags)

	canonical := fmt.Sprintf("%v\x00%v\x00%v\x00%v\x00%v\x00%v\x00%v",
		snap.RemoteID,
		snap.Type,
		snap.Subject,
		snap.Sender,
		snap.Date.UTC().Unix(),
		snap.Size,
		strings.Join(flags, "\x01"),
	)

	return hex.EncodeToString(SHA256([]byte(canonical)))
}
