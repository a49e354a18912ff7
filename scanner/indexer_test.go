package scanner

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"

	"iocscan/index"
)

func indexRun(t *testing.T, path string, files []*fakeFile) *index.Index {
	t.Helper()
	ix, err := index.Load(path)
	if err != nil {
		t.Fatalf("load index: %v", err)
	}
	cfg := unixConfig()
	cfg.MaxSize = 1
	s := NewIndexScanner(cfg, ix)
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	for _, f := range files {
		s.Process("/", f)
	}
	state, report := s.Finalize()
	if len(state) != 0 || len(report) != 0 {
		t.Fatalf("index scanner should report nothing, got %v %v", state, report)
	}
	return ix
}

func TestIndexScannerFirstAndSecondRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iocscan.index")
	small := newFakeFile("/srv/a.bin", map[string]string{"": "alpha"})
	other := newFakeFile("/srv/b.bin", map[string]string{"": "beta"})
	big := newFakeFile("/srv/big.iso", map[string]string{"": "huge"})
	big.streams[0].Size = 2 * 1024 * 1024
	files := []*fakeFile{small, other, big}

	ix := indexRun(t, path, files)
	if ix.Changes() != 3 || ix.Len() != 3 {
		t.Fatalf("first run: changes=%d len=%d", ix.Changes(), ix.Len())
	}
	if small.fingerprints != 1 || other.fingerprints != 1 || big.fingerprints != 0 {
		t.Fatalf("unexpected hashing %d %d %d", small.fingerprints, other.fingerprints, big.fingerprints)
	}

	entries := ix.Entries()
	if entries[0].Record.SHA256 != sha256.Sum256([]byte("alpha")) {
		t.Fatal("digest not recorded")
	}
	if entries[2].Record.HasDigests() {
		t.Fatal("oversized stream should not carry digests")
	}
	if entries[0].Record.Mountpoint != "/" || entries[0].Record.Path != "/srv/a.bin" || entries[0].Record.Stream != "" {
		t.Fatalf("unexpected record %+v", entries[0].Record)
	}

	before, err := os.Stat(path)
	if err != nil {
		t.Fatalf("index not written: %v", err)
	}

	ix = indexRun(t, path, files)
	if ix.Changes() != 0 {
		t.Fatalf("second run: expected no changes, got %d", ix.Changes())
	}
	if small.fingerprints != 1 || other.fingerprints != 1 {
		t.Fatal("unchanged streams were hashed again")
	}
	after, _ := os.Stat(path)
	if !after.ModTime().Equal(before.ModTime()) || after.Size() != before.Size() {
		t.Fatal("unchanged index was rewritten")
	}
	if got := ix.Entries()[0].Record.SHA256; got != sha256.Sum256([]byte("alpha")) {
		t.Fatal("prior record not carried forward")
	}
}

func TestIndexScannerDetectsRemovalAndModification(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iocscan.index")
	a := newFakeFile("/srv/a.bin", map[string]string{"": "alpha"})
	b := newFakeFile("/srv/b.bin", map[string]string{"": "beta"})
	indexRun(t, path, []*fakeFile{a, b})

	a.streams[0].ModTime = a.streams[0].ModTime.Add(1)
	ix := indexRun(t, path, []*fakeFile{a})
	// new key for a, plus the stale keys of a and b
	if ix.Changes() != 3 || ix.Len() != 1 {
		t.Fatalf("expected modification and removal, changes=%d len=%d", ix.Changes(), ix.Len())
	}
	if a.fingerprints != 2 {
		t.Fatalf("modified stream should be rehashed, got %d", a.fingerprints)
	}

	reloaded, err := index.Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Pending() != 1 {
		t.Fatalf("expected one stored entry, got %d", reloaded.Pending())
	}
}

func TestIndexScannerStreamsAndWindowsPaths(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iocscan.index")
	f := newFakeFile(`C:\Users\dl\setup.exe`, map[string]string{"": "main", "Zone.Identifier": "[ZoneTransfer]"})
	ix := indexRun(t, path, []*fakeFile{f})
	entries := ix.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	ads := entries[1].Record
	if ads.Path != "C:/Users/dl/setup.exe" || ads.Stream != ":Zone.Identifier" {
		t.Fatalf("unexpected stream record %+v", ads)
	}
	want := index.ComputeKey(index.Identity{
		Inode:   f.streams[1].Inode,
		ModTime: f.streams[1].ModTime.UnixNano(),
		Path:    "C:/Users/dl/setup.exe:Zone.Identifier",
	})
	if entries[1].Key != want {
		t.Fatal("stream key does not include the stream suffix")
	}
}

func TestIndexScannerSkipsDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iocscan.index")
	ix := indexRun(t, path, []*fakeFile{{path: "/srv", dir: true}})
	if ix.Len() != 0 || ix.Changes() != 0 {
		t.Fatalf("directories must not be indexed, len=%d", ix.Len())
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("empty run should not write an index")
	}
}

func TestIndexScannerRetriesFailedHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iocscan.index")
	locked := newFakeFile("/srv/locked.bin", map[string]string{"": "alpha"})
	locked.failHashes = 1
	other := newFakeFile("/srv/b.bin", map[string]string{"": "beta"})

	ix := indexRun(t, path, []*fakeFile{locked, other})
	if ix.Len() != 1 || ix.Changes() != 1 {
		t.Fatalf("failed stream should not be recorded, len=%d changes=%d", ix.Len(), ix.Changes())
	}

	ix = indexRun(t, path, []*fakeFile{locked, other})
	if locked.fingerprints != 2 {
		t.Fatalf("failed stream should be hashed again, got %d", locked.fingerprints)
	}
	if ix.Len() != 2 || ix.Changes() != 1 {
		t.Fatalf("second run: len=%d changes=%d", ix.Len(), ix.Changes())
	}
	if !ix.Entries()[0].Record.HasDigests() {
		t.Fatal("retried stream should carry digests")
	}

	ix = indexRun(t, path, []*fakeFile{locked, other})
	if ix.Changes() != 0 || locked.fingerprints != 2 {
		t.Fatalf("third run: changes=%d fingerprints=%d", ix.Changes(), locked.fingerprints)
	}
}
