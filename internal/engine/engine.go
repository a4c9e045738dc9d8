// Package engine implements the Chunked Object Engine: splitting files
// into fixed-size encrypted chunks on upload, reassembling them on
// download, and keeping the Catalog's view of a file consistent with
// what actually landed on the remote.
package engine

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"hash/crc32"
	"io"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/chunkdrive/chunkdrive/internal/catalog"
	"github.com/chunkdrive/chunkdrive/internal/codec"
	"github.com/chunkdrive/chunkdrive/internal/dispatcher"
	"github.com/chunkdrive/chunkdrive/internal/locator"
	"github.com/chunkdrive/chunkdrive/internal/pathseg"
	"github.com/chunkdrive/chunkdrive/internal/renewal"
)

// ChunkSize is the plaintext size read per iteration before encryption.
const ChunkSize = 24 * 1024 * 1024

// ErrWrongKind is returned when the commit target exists and is a folder.
var ErrWrongKind = errors.New("engine: target exists and is a folder")

// ErrNotFound is returned when the source path cannot be resolved.
var ErrNotFound = errors.New("engine: path not found")

// Engine chunks, encrypts, and dispatches file content, and reverses the
// process on read, consulting the Catalog to keep the filesystem view
// consistent with what has actually been uploaded.
type Engine struct {
	catalog    *catalog.Catalog
	codec      *codec.Codec
	dispatcher *dispatcher.Dispatcher
	renewal    renewal.Policy
	log        zerolog.Logger
	cdnHost    string
}

// Option customizes an Engine at construction time.
type Option func(*Engine)

// WithCDNHost overrides the host (or full base URL) signed locators are
// rendered against. Defaults to the real attachment CDN; tests point it
// at a local double.
func WithCDNHost(host string) Option {
	return func(e *Engine) { e.cdnHost = host }
}

// New builds an Engine wiring together the Catalog, Codec, Dispatcher, and
// Renewal Policy it needs to move bytes.
func New(cat *catalog.Catalog, cod *codec.Codec, disp *dispatcher.Dispatcher, ren renewal.Policy, log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		catalog:    cat,
		codec:      cod,
		dispatcher: disp,
		renewal:    ren,
		log:        log.With().Str("component", "engine").Logger(),
		cdnHost:    defaultCDNHost,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// chunkFilename mirrors the source's md5(cipher).hex + "-" +
// crc32(cipher).big-endian.hex naming.
func chunkFilename(cipher []byte) string {
	sum := md5.Sum(cipher)
	crc := crc32.ChecksumIEEE(cipher)
	var crcBytes [4]byte
	crcBytes[0] = byte(crc >> 24)
	crcBytes[1] = byte(crc >> 16)
	crcBytes[2] = byte(crc >> 8)
	crcBytes[3] = byte(crc)
	return hex.EncodeToString(sum[:]) + "-" + hex.EncodeToString(crcBytes[:])
}

// SendFile reads source in ChunkSize plaintext slices, encrypts and
// uploads each, then commits the resulting locator list to the Catalog
// at path. logicalSize is the plaintext length recorded in
// details.size.
func (e *Engine) SendFile(ctx context.Context, path string, source Source, logicalSize int64) error {
	segments := pathseg.Split(path)
	if len(segments) == 0 {
		return errors.New("engine: cannot send to root")
	}

	parentSegments := segments[:len(segments)-1]
	leafName := segments[len(segments)-1]

	mkStatus, parentID, err := e.catalog.Makedirs(ctx, parentSegments, true, true)
	if err != nil {
		return errors.Wrap(err, "engine: resolve parent directories")
	}
	if mkStatus != catalog.StatusOK {
		return errors.New("engine: could not resolve parent directories")
	}

	var urls []locator.SaveFormat
	var chunkSizes []int64

	for {
		chunk, readErr := source.NextChunk()
		if len(chunk) > 0 {
			cipher, encErr := e.codec.Encrypt(chunk)
			if encErr != nil {
				return errors.Wrap(encErr, "engine: encrypt chunk")
			}

			filename := chunkFilename(cipher)
			resp, sendErr := e.dispatcher.Send(ctx, filename, cipher)
			if sendErr != nil {
				return errors.Wrap(sendErr, "engine: upload chunk")
			}
			if len(resp.Attachments) == 0 {
				return errors.New("engine: upload response had no attachments")
			}

			msgID, parseErr := strconv.ParseUint(resp.ID, 10, 64)
			if parseErr != nil {
				return errors.Wrap(parseErr, "engine: parse message id")
			}
			loc, parseErr := locator.Parse(resp.Attachments[0].URL, msgID)
			if parseErr != nil {
				return errors.Wrap(parseErr, "engine: parse attachment url")
			}

			urls = append(urls, loc.Save())
			chunkSizes = append(chunkSizes, int64(len(cipher)))
		}

		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return errors.Wrap(readErr, "engine: read source")
		}
	}

	status, err := e.catalog.CommitFile(ctx, parentID, leafName, urls, chunkSizes, logicalSize)
	if err != nil {
		return errors.Wrap(err, "engine: commit file")
	}
	if status == catalog.StatusWrongKind {
		return ErrWrongKind
	}
	e.log.Debug().Str("path", path).Int("chunks", len(urls)).Msg("sent file")
	return nil
}

// DownloadFile resolves path, renews its stored locators, fetches each
// chunk in order, and writes the decrypted plaintext to sink.
func (e *Engine) DownloadFile(ctx context.Context, path string, sink io.Writer) error {
	segments := pathseg.Split(path)
	status, node, err := e.catalog.Resolve(ctx, segments)
	if err != nil {
		return errors.Wrap(err, "engine: resolve path")
	}
	if status != catalog.StatusOK {
		return ErrNotFound
	}
	if node.IsFolder() {
		return ErrWrongKind
	}

	locs := make([]locator.Locator, len(node.URLs))
	for i, saved := range node.URLs {
		locs[i] = locator.FromSave(saved)
	}

	if e.renewal != nil {
		renewed, renewErr := e.renewExpired(ctx, locs)
		if renewErr != nil {
			return errors.Wrap(renewErr, "engine: renew expired chunks")
		}
		locs = renewed
	}

	for i, loc := range locs {
		body, getErr := e.dispatcher.Get(ctx, loc.Render(e.cdnHost))
		if getErr != nil {
			return errors.Wrapf(getErr, "engine: fetch chunk %d", i)
		}

		plain, decErr := e.codec.Decrypt(body)
		if decErr != nil {
			return errors.Wrapf(decErr, "engine: decrypt chunk %d", i)
		}

		if _, writeErr := sink.Write(plain); writeErr != nil {
			return errors.Wrap(writeErr, "engine: write plaintext")
		}
	}
	return nil
}

// renewExpired renews only the locators in locs that Locator.Expired
// reports as expired (including those inside its 600s skew window),
// leaving the rest untouched, and returns a slice aligned with
// locs. The renewal itself still goes out as a single batch so the policy
// can fan it out under its own pacing limit.
func (e *Engine) renewExpired(ctx context.Context, locs []locator.Locator) ([]locator.Locator, error) {
	now := time.Now()
	var idx []int
	var stale []locator.Locator
	for i, loc := range locs {
		if loc.Expired(now) {
			idx = append(idx, i)
			stale = append(stale, loc)
		}
	}
	if len(stale) == 0 {
		return locs, nil
	}

	renewed, err := e.renewal.Renew(ctx, stale)
	if err != nil {
		return nil, err
	}

	out := append([]locator.Locator(nil), locs...)
	for j, i := range idx {
		out[i] = renewed[j]
	}
	return out, nil
}

// defaultCDNHost is the production host signed CDN URLs are rendered against.
const defaultCDNHost = "cdn.discordapp.com"
