package sftpd

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/pkg/sftp"

	"github.com/chunkdrive/chunkdrive/internal/vfs"
)

// handlers adapts a vfs.FS to pkg/sftp's request-server callback
// interfaces, mirroring the command set expose_sftp.py's
// SFTPServerInterface exposes (open/list_folder/stat/remove/rename/
// mkdir/rmdir/chattr) over paramiko.
type handlers struct {
	fs *vfs.FS
}

// newHandlers builds the sftp.Handlers bundle for a single daemon's
// lifetime; every accepted session gets the same FS-backed set.
func newHandlers(fsys *vfs.FS) sftp.Handlers {
	h := &handlers{fs: fsys}
	return sftp.Handlers{
		FileGet:  h,
		FilePut:  h,
		FileCmd:  h,
		FileList: h,
	}
}

// modeFromPflags translates an SFTP open request's flags into the Facade's
// Python io-style mode string, mirroring expose_sftp.py's flags_to_mode.
func modeFromPflags(f sftp.FileOpenFlags) string {
	var mode string
	switch {
	case f.Write && !f.Read:
		switch {
		case f.Trunc:
			mode = "w"
		case f.Append:
			mode = "a"
		default:
			mode = "r+"
		}
	case f.Read && f.Write:
		switch {
		case f.Trunc:
			mode = "w+"
		case f.Append:
			mode = "a+"
		default:
			mode = "r+"
		}
	default:
		mode = "r"
	}
	if f.Excl {
		mode += "x"
	}
	return mode + "b"
}

func (h *handlers) Fileread(r *sftp.Request) (io.ReaderAt, error) {
	handle, err := h.fs.OpenBin(context.Background(), r.Filepath, modeFromPflags(r.Pflags()))
	if err != nil {
		return nil, mapError(err)
	}
	return handle, nil
}

func (h *handlers) Filewrite(r *sftp.Request) (io.WriterAt, error) {
	handle, err := h.fs.OpenBin(context.Background(), r.Filepath, modeFromPflags(r.Pflags()))
	if err != nil {
		return nil, mapError(err)
	}
	return handle, nil
}

func (h *handlers) Filecmd(r *sftp.Request) error {
	ctx := context.Background()
	switch r.Method {
	case "Mkdir":
		return mapError(h.fs.MakeDir(ctx, r.Filepath, true))
	case "Rmdir":
		return mapError(h.fs.RemoveDir(ctx, r.Filepath))
	case "Remove":
		return mapError(h.fs.Remove(ctx, r.Filepath))
	case "Rename":
		return mapError(h.fs.Move(ctx, r.Filepath, r.Target, false, true, false))
	case "Setstat":
		// Setstat applies nothing and reports success: attributes are
		// advisory, and a requested size is not applied to the stored file.
		// A file is emptied only by opening it with the truncate flag.
		return nil
	default:
		return sftp.ErrSshFxOpUnsupported
	}
}

func (h *handlers) Filelist(r *sftp.Request) (sftp.ListerAt, error) {
	ctx := context.Background()
	switch r.Method {
	case "List":
		infos, err := h.fs.ListDir(ctx, r.Filepath)
		if err != nil {
			return nil, mapError(err)
		}
		out := make([]os.FileInfo, len(infos))
		for i, info := range infos {
			out[i] = fileInfo{info}
		}
		return listerAt(out), nil
	case "Stat", "Readlink":
		info, err := h.fs.GetInfo(ctx, r.Filepath)
		if err != nil {
			return nil, mapError(err)
		}
		return listerAt([]os.FileInfo{fileInfo{info}}), nil
	default:
		return nil, sftp.ErrSshFxOpUnsupported
	}
}

// mapError translates Facade errors into the sentinels pkg/sftp's request
// server recognizes when turning a Go error into an SFTP status code,
// the same narrowing expose_sftp.py's report_sftp_errors decorator does
// for ResourceNotFound/Unsupported/FSError.
func mapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, vfs.ErrResourceNotFound):
		return os.ErrNotExist
	case errors.Is(err, vfs.ErrUnsupported):
		return sftp.ErrSshFxOpUnsupported
	default:
		return err
	}
}
