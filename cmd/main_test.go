package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"iocscan/config"
	"iocscan/logger"
	"iocscan/store"
	"iocscan/transport"
)

func init() {
	logger.Init("error")
}

func TestHandleSignalEventCancelsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)

	done := make(chan struct{})
	go func() {
		handleSignalEvent(cancel, false, "", sigChan)
		close(done)
	}()

	sigChan <- syscall.SIGTERM

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expected context to be canceled")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("signal handler did not return")
	}
}

func TestOpenIndexRejectsCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "iocscan.index")
	if err := os.WriteFile(path, []byte("NONEgarbage"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := openIndex(&config.Config{IndexPath: path, IndexCompression: "zstd"})
	if err == nil || !strings.Contains(err.Error(), "remove it to rebuild") {
		t.Fatalf("expected corrupt index error, got %v", err)
	}
}

func TestOpenIndexMissingIsEmpty(t *testing.T) {
	ix, err := openIndex(&config.Config{IndexPath: filepath.Join(t.TempDir(), "none"), IndexCompression: "none"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if ix.Pending() != 0 {
		t.Fatalf("expected empty index, got %d", ix.Pending())
	}
}

func TestBuildStore(t *testing.T) {
	dir := t.TempDir()
	st, closeStore, err := buildStore(&config.Config{RulesDir: dir})
	if err != nil {
		t.Fatalf("dir store: %v", err)
	}
	closeStore()
	if _, ok := st.(*store.DirStore); !ok {
		t.Fatalf("expected DirStore, got %T", st)
	}

	st, closeStore, err = buildStore(&config.Config{RulesURL: "http://127.0.0.1:1/rules", RulesCache: filepath.Join(dir, "cache.db")})
	if err != nil {
		t.Fatalf("cached http store: %v", err)
	}
	defer closeStore()
	if _, ok := st.(*store.BoltCache); !ok {
		t.Fatalf("expected BoltCache, got %T", st)
	}
}

func TestBuildClient(t *testing.T) {
	if _, err := buildClient(&config.Config{}); err == nil {
		t.Fatal("expected error without sinks")
	}

	path := filepath.Join(t.TempDir(), "out.ndjson")
	client, err := buildClient(&config.Config{OutputFileName: path})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := client.Send(context.Background(), "report_state", "iocscan", map[string]int{"scan_count": 1}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	envs, err := transport.ReadEnvelopes(f)
	if err != nil || len(envs) != 1 || envs[0].Topic != "iocscan" {
		t.Fatalf("unexpected envelopes %+v (%v)", envs, err)
	}

	if _, err := buildClient(&config.Config{NATSURL: "nats://127.0.0.1:1"}); err == nil {
		t.Fatal("expected NATS connect failure")
	}
}
