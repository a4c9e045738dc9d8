package vfs

import "errors"

// Error taxonomy exposed by the Facade, mirroring the source's
// PyFilesystem2-style error classes (fs.errors.*).
var (
	ErrResourceNotFound   = errors.New("vfs: resource not found")
	ErrDirectoryExpected  = errors.New("vfs: directory expected")
	ErrFileExpected       = errors.New("vfs: file expected")
	ErrDirectoryExists    = errors.New("vfs: directory already exists")
	ErrFileExists         = errors.New("vfs: file already exists")
	ErrDirectoryNotEmpty  = errors.New("vfs: directory not empty")
	ErrRemoveRoot         = errors.New("vfs: cannot remove the root directory")
	ErrInvalidCharsInPath = errors.New("vfs: path contains non-printable characters")
	ErrUnsupported        = errors.New("vfs: unsupported operation")

	ErrNotReadable = errors.New("vfs: handle is not readable")
	ErrNotWritable = errors.New("vfs: handle is not writable")
)
