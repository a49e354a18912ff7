package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"iocscan/config"
	"iocscan/drive"
	"iocscan/hasher"
	"iocscan/logger"
	"iocscan/rules"
	"iocscan/store"
	"iocscan/utils"
)

func init() {
	logger.Init("error")
}

type fakeFile struct {
	path    string
	dir     bool
	deleted bool
	streams []drive.Stream
	data    map[string][]byte

	fingerprints int
	// failHashes makes the next n Fingerprint calls fail.
	failHashes int
}

var nextInode uint64 = 100

// newFakeFile builds a file whose streams are the keys of content; "" is the
// primary stream.
func newFakeFile(p string, content map[string]string) *fakeFile {
	f := &fakeFile{path: p, data: make(map[string][]byte)}
	mtime := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	names := []string{""}
	for name := range content {
		if name != "" {
			names = append(names, name)
		}
	}
	for _, name := range names {
		data, ok := content[name]
		if !ok {
			continue
		}
		nextInode++
		f.data[name] = []byte(data)
		f.streams = append(f.streams, drive.Stream{
			Name:    name,
			Size:    int64(len(data)),
			Inode:   nextInode,
			ModTime: mtime,
		})
	}
	return f
}

func (f *fakeFile) Path() string            { return f.path }
func (f *fakeFile) Name() string            { return path.Base(utils.ToSlash(f.path)) }
func (f *fakeFile) Ext() string             { return path.Ext(f.Name()) }
func (f *fakeFile) IsDir() bool             { return f.dir }
func (f *fakeFile) IsDeleted() bool         { return f.deleted }
func (f *fakeFile) Streams() []drive.Stream { return f.streams }

func (f *fakeFile) Open(stream string) (io.ReadCloser, error) {
	data, ok := f.data[stream]
	if !ok {
		return nil, drive.ErrNoSuchStream
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeFile) Fingerprint(stream string) (hasher.Fingerprint, error) {
	f.fingerprints++
	if f.failHashes > 0 {
		f.failHashes--
		return hasher.Fingerprint{}, errors.New("sharing violation")
	}
	data, ok := f.data[stream]
	if !ok {
		return hasher.Fingerprint{}, drive.ErrNoSuchStream
	}
	return hasher.Compute(bytes.NewReader(data), int64(len(data)))
}

func (f *fakeFile) ScanRules(rs rules.RuleSet, stream string, fast bool) ([]rules.Match, error) {
	data, ok := f.data[stream]
	if !ok {
		return nil, drive.ErrNoSuchStream
	}
	return rs.ScanMem(data, fast)
}

type fakeStore struct {
	blobs map[string][]byte
	err   error
	calls int
}

func (s *fakeStore) Fetch(ctx context.Context, kind, name string) ([]byte, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	blob, ok := s.blobs[kind+"/"+name]
	if !ok {
		return nil, store.ErrNotFound
	}
	return blob, nil
}

type lengthHasher struct{}

func (lengthHasher) Name() string { return "length" }

func (lengthHasher) HashReader(r io.Reader) (string, error) {
	n, err := io.Copy(io.Discard, r)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("len:%d", n), nil
}

type failingRules struct{}

func (failingRules) ScanFile(string, bool) ([]rules.Match, error) {
	return nil, errors.New("engine failure")
}
func (failingRules) ScanMem([]byte, bool) ([]rules.Match, error) {
	return nil, errors.New("engine failure")
}
func (failingRules) Count() int   { return 1 }
func (failingRules) Close() error { return nil }

func unixConfig() config.ScanConfig {
	cfg, _ := config.Preset(config.PlatformUnix)
	cfg.Timestamp = "2024-05-01T12:00:00Z"
	return cfg
}
