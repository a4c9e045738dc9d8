// Package vfs exposes the Catalog and Engine as a POSIX-like filesystem
// Facade: path-addressed metadata operations plus a buffered file Handle,
// mirroring the source's PyFilesystem2 DiscordFS facade.
package vfs

import (
	"bytes"
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/chunkdrive/chunkdrive/internal/catalog"
	"github.com/chunkdrive/chunkdrive/internal/engine"
	"github.com/chunkdrive/chunkdrive/internal/pathseg"
)

// FS is the Filesystem Facade: every operation resolves a virtual path
// against the Catalog and, for file content, delegates to the Engine.
type FS struct {
	catalog *catalog.Catalog
	engine  *engine.Engine
}

// New builds a Facade over an already-wired Catalog and Engine.
func New(cat *catalog.Catalog, eng *engine.Engine) *FS {
	return &FS{catalog: cat, engine: eng}
}

// Info is the basic/details/access view of a node, as returned by GetInfo
// and ListDir.
type Info struct {
	Name            string
	IsDir           bool
	Size            int64
	Accessed        time.Time
	Created         time.Time
	Modified        time.Time
	MetadataChanged time.Time
	Access          catalog.Access
}

func infoFromNode(n catalog.Node) Info {
	return Info{
		Name:            n.Name,
		IsDir:           n.IsFolder(),
		Size:            n.Details.Size,
		Accessed:        time.Unix(n.Details.Accessed, 0),
		Created:         time.Unix(n.Details.Created, 0),
		Modified:        time.Unix(n.Details.Modified, 0),
		MetadataChanged: time.Unix(n.Details.MetadataChanged, 0),
		Access:          n.Access,
	}
}

// IsReadOnly reports the filesystem's read-only metadata flag.
func (f *FS) IsReadOnly() bool { return false }

// SupportsUnicodePaths reports the filesystem's unicode-paths metadata flag.
func (f *FS) SupportsUnicodePaths() bool { return true }

// CaseSensitive reports the filesystem's case-sensitivity metadata flag.
func (f *FS) CaseSensitive() bool { return true }

// GetInfo returns the metadata view for path.
func (f *FS) GetInfo(ctx context.Context, path string) (Info, error) {
	segments := pathseg.Split(path)
	status, node, err := f.catalog.GetInfo(ctx, segments)
	if err != nil {
		return Info{}, err
	}
	if status != catalog.StatusOK {
		return Info{}, ErrResourceNotFound
	}
	return infoFromNode(node), nil
}

// ListDir returns the entries of the folder at path.
func (f *FS) ListDir(ctx context.Context, path string) ([]Info, error) {
	segments := pathseg.Split(path)
	status, node, err := f.catalog.Resolve(ctx, segments)
	if err != nil {
		return nil, err
	}
	if status != catalog.StatusOK {
		return nil, ErrResourceNotFound
	}
	if node.IsFile() {
		return nil, ErrDirectoryExpected
	}

	children, err := f.catalog.List(ctx, node.ID)
	if err != nil {
		return nil, err
	}
	infos := make([]Info, len(children))
	for i, c := range children {
		infos[i] = infoFromNode(c)
	}
	return infos, nil
}

// MakeDir creates the folder at path. If recreate is false, an existing
// folder at path is an error; callers that don't care pass recreate=true.
func (f *FS) MakeDir(ctx context.Context, path string, recreate bool) error {
	segments := pathseg.Split(path)
	status, _, err := f.catalog.Makedirs(ctx, segments, false, recreate)
	if err != nil {
		return err
	}
	switch status {
	case catalog.StatusOK:
		return nil
	case catalog.StatusNotFound:
		return ErrResourceNotFound
	case catalog.StatusWrongKind:
		return ErrFileExists
	case catalog.StatusAlreadyExists:
		return ErrDirectoryExists
	default:
		return nil
	}
}

// OpenBin opens the file at path in mode (a Python io-style mode string:
// some combination of r/w/a/x, optionally suffixed with +; b is accepted
// but not required since the handle is always binary; t is rejected since
// the Engine only moves bytes).
func (f *FS) OpenBin(ctx context.Context, path, mode string) (*Handle, error) {
	if err := validateMode(mode); err != nil {
		return nil, err
	}
	if !isPrintable(path) {
		return nil, ErrInvalidCharsInPath
	}

	segments := pathseg.Split(path)
	status, node, err := f.catalog.Resolve(ctx, segments)
	if err != nil {
		return nil, err
	}

	zeroSize := true
	switch status {
	case catalog.StatusOK:
		if node.IsFolder() {
			return nil, ErrFileExpected
		}
		if strings.Contains(mode, "x") {
			return nil, ErrFileExists
		}
		zeroSize = node.Details.Size == 0
	case catalog.StatusNotFound:
		if !strings.ContainsAny(mode, "wax") {
			return nil, ErrResourceNotFound
		}
	default: // StatusWrongKind: an intermediate ancestor isn't a folder
		return nil, ErrResourceNotFound
	}

	var data []byte
	if strings.ContainsAny(mode, "ra") && !zeroSize {
		var buf bytes.Buffer
		if err := f.engine.DownloadFile(ctx, path, &buf); err != nil {
			return nil, err
		}
		data = buf.Bytes()
	}

	return newHandle(f.engine, path, mode, data), nil
}

// Remove deletes the file at path.
func (f *FS) Remove(ctx context.Context, path string) error {
	segments := pathseg.Split(path)
	status, err := f.catalog.RemoveFile(ctx, segments)
	if err != nil {
		return err
	}
	switch status {
	case catalog.StatusOK:
		return nil
	case catalog.StatusNotFound:
		return ErrResourceNotFound
	case catalog.StatusWrongKind:
		return ErrFileExpected
	default:
		return nil
	}
}

// RemoveDir deletes the (empty) folder at path. Removing the root is
// always an error.
func (f *FS) RemoveDir(ctx context.Context, path string) error {
	segments := pathseg.Split(path)
	status, err := f.catalog.RemoveDir(ctx, segments)
	if err != nil {
		return err
	}
	switch status {
	case catalog.StatusOK:
		return nil
	case catalog.StatusNotFound:
		return ErrResourceNotFound
	case catalog.StatusWrongKind:
		return ErrDirectoryExpected
	case catalog.StatusAlreadyExists:
		return ErrDirectoryNotEmpty
	case catalog.StatusCannotRemoveRoot:
		return ErrRemoveRoot
	default:
		return nil
	}
}

// RemoveTree recursively deletes path and everything beneath it.
func (f *FS) RemoveTree(ctx context.Context, path string) error {
	segments := pathseg.Split(path)
	status, err := f.catalog.RemoveTree(ctx, segments)
	if err != nil {
		return err
	}
	switch status {
	case catalog.StatusOK:
		return nil
	case catalog.StatusNotFound:
		return ErrResourceNotFound
	case catalog.StatusCannotRemoveRoot:
		return ErrRemoveRoot
	default:
		return nil
	}
}

// Move renames the file at src to dst.
func (f *FS) Move(ctx context.Context, src, dst string, overwrite, createDirs, preserveTimestamps bool) error {
	status, err := f.catalog.Rename(ctx, pathseg.Split(src), pathseg.Split(dst), overwrite, createDirs, preserveTimestamps)
	if err != nil {
		return err
	}
	switch status {
	case catalog.StatusOK:
		return nil
	case catalog.StatusNotFound:
		return ErrResourceNotFound
	case catalog.StatusWrongKind:
		return ErrFileExpected
	case catalog.StatusAlreadyExists:
		return ErrFileExists
	default:
		return nil
	}
}

// Copy duplicates the file at src to dst.
func (f *FS) Copy(ctx context.Context, src, dst string, overwrite, createDirs, preserveTimestamps bool) error {
	status, err := f.catalog.Copy(ctx, pathseg.Split(src), pathseg.Split(dst), overwrite, createDirs, preserveTimestamps)
	if err != nil {
		return err
	}
	switch status {
	case catalog.StatusOK:
		return nil
	case catalog.StatusNotFound:
		return ErrResourceNotFound
	case catalog.StatusWrongKind:
		return ErrFileExpected
	case catalog.StatusAlreadyExists:
		return ErrFileExists
	default:
		return nil
	}
}

// SetInfo merges upd into the node at path's access/details/name/type.
func (f *FS) SetInfo(ctx context.Context, path string, upd catalog.SetInfoUpdate) error {
	segments := pathseg.Split(path)
	status, err := f.catalog.SetInfo(ctx, segments, upd)
	if err != nil {
		return err
	}
	if status != catalog.StatusOK {
		return ErrResourceNotFound
	}
	return nil
}

func validateMode(mode string) error {
	if strings.Contains(mode, "t") {
		return ErrUnsupported
	}
	if !strings.ContainsAny(mode, "rwax") {
		return ErrUnsupported
	}
	return nil
}

func isPrintable(path string) bool {
	for _, r := range path {
		if !unicode.IsPrint(r) {
			return false
		}
	}
	return true
}
