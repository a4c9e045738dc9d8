// Package locator models a resolved-but-possibly-expiring reference to a
// single chunk stored as an attachment on the remote CDN.
package locator

import (
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// expirySkew protects against URLs that expire mid-transfer.
const expirySkew = 600 * time.Second

// Locator is a parsed signed CDN attachment reference.
type Locator struct {
	ChannelID    uint64
	MessageID    uint64
	AttachmentID uint64
	Filename     string
	Expire       uint64
	Issue        uint64
	Signature    []byte
}

// Parse builds a Locator from a signed CDN URL. message_id is supplied
// out-of-band (the upload/renew response), since it never appears in the
// URL itself.
func Parse(raw string, messageID uint64) (Locator, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Locator{}, fmt.Errorf("locator: parse url: %w", err)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 3 {
		return Locator{}, fmt.Errorf("locator: path %q too short", u.Path)
	}
	// .../attachments/<channel_id>/<attachment_id>/<filename>
	channelID, err := strconv.ParseUint(segments[len(segments)-3], 10, 64)
	if err != nil {
		return Locator{}, fmt.Errorf("locator: bad channel id: %w", err)
	}
	attachmentID, err := strconv.ParseUint(segments[len(segments)-2], 10, 64)
	if err != nil {
		return Locator{}, fmt.Errorf("locator: bad attachment id: %w", err)
	}
	filename := segments[len(segments)-1]

	q := u.Query()
	expire, err := strconv.ParseUint(q.Get("ex"), 16, 64)
	if err != nil {
		return Locator{}, fmt.Errorf("locator: bad ex: %w", err)
	}
	issue, err := strconv.ParseUint(q.Get("is"), 16, 64)
	if err != nil {
		return Locator{}, fmt.Errorf("locator: bad is: %w", err)
	}
	signature, err := hex.DecodeString(q.Get("hm"))
	if err != nil {
		return Locator{}, fmt.Errorf("locator: bad hm: %w", err)
	}

	return Locator{
		ChannelID:    channelID,
		MessageID:    messageID,
		AttachmentID: attachmentID,
		Filename:     filename,
		Expire:       expire,
		Issue:        issue,
		Signature:    signature,
	}, nil
}

// Render turns a Locator back into its full signed CDN URL. cdnHost may be
// a bare host ("cdn.discordapp.com", assumed https) or a full base
// ("http://127.0.0.1:8080", for pointing at a test double).
func (l Locator) Render(cdnHost string) string {
	scheme := "https://"
	if strings.Contains(cdnHost, "://") {
		scheme = ""
	}
	return fmt.Sprintf(
		"%s%s/attachments/%d/%d/%s?ex=%x&is=%x&hm=%x",
		scheme, cdnHost, l.ChannelID, l.AttachmentID, l.Filename, l.Expire, l.Issue, l.Signature,
	)
}

// Expired reports whether l will expire within expirySkew of now.
func (l Locator) Expired(now time.Time) bool {
	return uint64(now.Unix()) >= saturatingSub(l.Expire, uint64(expirySkew.Seconds()))
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}

// SaveFormat is the tuple persisted in the Catalog for a single chunk.
type SaveFormat struct {
	ChannelID    uint64 `bson:"channel_id"`
	MessageID    uint64 `bson:"message_id"`
	AttachmentID uint64 `bson:"attachment_id"`
	Filename     string `bson:"filename"`
	Expire       uint64 `bson:"expire"`
	Issue        uint64 `bson:"issue"`
	Signature    []byte `bson:"signature"`
}

// Save converts l to its persisted representation.
func (l Locator) Save() SaveFormat {
	return SaveFormat(l)
}

// FromSave reconstructs a Locator from its persisted representation.
func FromSave(s SaveFormat) Locator {
	return Locator(s)
}
