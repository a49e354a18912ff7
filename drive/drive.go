// Package drive lists the mounted filesystems of the host and enumerates
// the files and data streams they expose.
package drive

import (
	"context"
	"errors"
	"io"
	"time"

	"iocscan/hasher"
	"iocscan/rules"
)

// ErrNoSuchStream is returned when a file has no stream of the given name.
var ErrNoSuchStream = errors.New("no such stream")

// Partition names one mounted filesystem.
type Partition struct {
	Device     string
	Mountpoint string
	Fstype     string
}

// Manager lists and opens drives.
type Manager interface {
	ListAvailable(ctx context.Context) ([]Partition, error)
	Open(device, mountpoint string) (Drive, error)
}

// PruneFunc decides whether a directory is descended into. It receives the
// native path of the directory.
type PruneFunc func(path string) bool

// Drive enumerates the files of one mounted filesystem.
type Drive interface {
	Device() string
	Mountpoint() string
	// EnumerateFiles walks roots depth first in lexical order and calls fn
	// for every entry, directories included. Empty roots mean the whole
	// drive. An error from fn stops the walk and is returned.
	EnumerateFiles(roots []string, prune PruneFunc, fn func(File) error) error
}

// Stream is one data stream of a file. The primary stream has an empty
// name.
type Stream struct {
	Name    string
	Size    int64
	Inode   uint64
	ModTime time.Time
}

// Suffix is "" for the primary stream and ":<name>" otherwise.
func (s Stream) Suffix() string {
	if s.Name == "" {
		return ""
	}
	return ":" + s.Name
}

// File is an enumerated filesystem entry.
type File interface {
	Path() string
	Name() string
	// Ext is the extension including the leading dot, as found on disk.
	Ext() string
	IsDir() bool
	IsDeleted() bool
	Streams() []Stream
	Open(stream string) (io.ReadCloser, error)
	Fingerprint(stream string) (hasher.Fingerprint, error)
	ScanRules(rs rules.RuleSet, stream string, fast bool) ([]rules.Match, error)
}
