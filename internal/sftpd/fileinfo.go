package sftpd

import (
	"io"
	"os"
	"time"

	"github.com/chunkdrive/chunkdrive/internal/vfs"
)

// fileInfo adapts a vfs.Info to os.FileInfo for pkg/sftp's Stat/List
// responses.
type fileInfo struct {
	info vfs.Info
}

func (fi fileInfo) Name() string { return fi.info.Name }
func (fi fileInfo) Size() int64  { return fi.info.Size }

func (fi fileInfo) Mode() os.FileMode {
	if fi.info.IsDir {
		return os.ModeDir | 0o755
	}
	return 0o644
}

func (fi fileInfo) ModTime() time.Time { return fi.info.Modified }
func (fi fileInfo) IsDir() bool        { return fi.info.IsDir }
func (fi fileInfo) Sys() any           { return nil }

// listerAt implements sftp.ListerAt over a fixed slice of entries, the
// idiom pkg/sftp's own examples use for Filelist responses.
type listerAt []os.FileInfo

func (l listerAt) ListAt(dst []os.FileInfo, offset int64) (int, error) {
	if offset >= int64(len(l)) {
		return 0, io.EOF
	}
	n := copy(dst, l[offset:])
	if n < len(dst) {
		return n, io.EOF
	}
	return n, nil
}
