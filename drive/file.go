package drive

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"iocscan/hasher"
	"iocscan/rules"
)

type localFile struct {
	path    string
	isDir   bool
	streams []Stream
}

func newLocalFile(path string, entry fs.DirEntry) (*localFile, error) {
	info, err := entry.Info()
	if err != nil {
		return nil, err
	}
	f := &localFile{path: path, isDir: info.IsDir()}
	if f.isDir {
		return f, nil
	}

	primary := Stream{
		Size:    info.Size(),
		Inode:   fileID(path, info),
		ModTime: modTime(path, info),
	}
	f.streams = append(f.streams, primary)
	for _, ads := range alternateStreams(path) {
		f.streams = append(f.streams, Stream{
			Name:    ads.name,
			Size:    ads.size,
			Inode:   primary.Inode,
			ModTime: primary.ModTime,
		})
	}
	return f, nil
}

func (f *localFile) Path() string      { return f.path }
func (f *localFile) Name() string      { return filepath.Base(f.path) }
func (f *localFile) Ext() string       { return filepath.Ext(f.path) }
func (f *localFile) IsDir() bool       { return f.isDir }
func (f *localFile) IsDeleted() bool   { return false }
func (f *localFile) Streams() []Stream { return f.streams }

func (f *localFile) stream(name string) (Stream, error) {
	for _, s := range f.streams {
		if s.Name == name {
			return s, nil
		}
	}
	return Stream{}, fmt.Errorf("%s:%s: %w", f.path, name, ErrNoSuchStream)
}

func (f *localFile) streamPath(name string) string {
	if name == "" {
		return f.path
	}
	return f.path + ":" + name
}

func (f *localFile) Open(name string) (io.ReadCloser, error) {
	if _, err := f.stream(name); err != nil {
		return nil, err
	}
	return os.Open(f.streamPath(name))
}

func (f *localFile) Fingerprint(name string) (hasher.Fingerprint, error) {
	if _, err := f.stream(name); err != nil {
		return hasher.Fingerprint{}, err
	}
	return hasher.ComputeFile(f.streamPath(name))
}

// ScanRules lets the engine read the primary stream itself; alternate
// streams are read into memory first.
func (f *localFile) ScanRules(rs rules.RuleSet, name string, fast bool) ([]rules.Match, error) {
	if _, err := f.stream(name); err != nil {
		return nil, err
	}
	if name == "" {
		return rs.ScanFile(f.path, fast)
	}
	data, err := os.ReadFile(f.streamPath(name))
	if err != nil {
		return nil, err
	}
	return rs.ScanMem(data, fast)
}
