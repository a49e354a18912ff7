package store

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
)

func fastBackOff() backoff.BackOff {
	return backoff.NewConstantBackOff(time.Millisecond)
}

func TestDirStoreFetch(t *testing.T) {
	root := t.TempDir()
	os.MkdirAll(filepath.Join(root, "http_blob"), 0755)
	os.WriteFile(filepath.Join(root, "http_blob", "yara_rules"), []byte("rules"), 0644)

	s := NewDirStore(root)
	data, err := s.Fetch(context.Background(), "http_blob", "yara_rules")
	if err != nil || string(data) != "rules" {
		t.Fatalf("fetch: %q %v", data, err)
	}
	if _, err := s.Fetch(context.Background(), "http_blob", "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Fetch(context.Background(), "http_blob", "../escape"); err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected invalid reference error, got %v", err)
	}
}

func TestHTTPStoreRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/http_blob/yara_rules" {
			http.NotFound(w, r)
			return
		}
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("blob"))
	}))
	defer srv.Close()

	s, err := NewHTTPStore(srv.URL+"/", WithBackOff(fastBackOff))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	data, err := s.Fetch(context.Background(), "http_blob", "yara_rules")
	if err != nil || string(data) != "blob" {
		t.Fatalf("fetch: %q %v", data, err)
	}
	if atomic.LoadInt32(&calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestHTTPStoreNotFoundIsPermanent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	s, _ := NewHTTPStore(srv.URL, WithBackOff(fastBackOff))
	if _, err := s.Fetch(context.Background(), "http_blob", "yara_rules"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("404 should not be retried, got %d calls", calls)
	}
}

func TestHTTPStoreGivesUp(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s, _ := NewHTTPStore(srv.URL, WithBackOff(fastBackOff), WithMaxTries(2))
	_, err := s.Fetch(context.Background(), "http_blob", "yara_rules")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Fatalf("expected transport failure, got %v", err)
	}
}

func TestNewHTTPStoreRejectsBadURL(t *testing.T) {
	for _, u := range []string{"", "ftp://host/x", "http://"} {
		if _, err := NewHTTPStore(u); err == nil {
			t.Fatalf("expected error for %q", u)
		}
	}
}

type fakeStore struct {
	data []byte
	err  error
}

func (f *fakeStore) Fetch(context.Context, string, string) ([]byte, error) {
	return f.data, f.err
}

func TestBoltCacheFallsBackToCachedCopy(t *testing.T) {
	upstream := &fakeStore{data: []byte("v1")}
	cache, err := NewBoltCache(filepath.Join(t.TempDir(), "blobs.db"), upstream)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer cache.Close()
	ctx := context.Background()

	if data, err := cache.Fetch(ctx, "http_blob", "yara_rules"); err != nil || string(data) != "v1" {
		t.Fatalf("first fetch: %q %v", data, err)
	}

	upstream.data, upstream.err = nil, errors.New("connection refused")
	data, err := cache.Fetch(ctx, "http_blob", "yara_rules")
	if err != nil || string(data) != "v1" {
		t.Fatalf("expected cached copy, got %q %v", data, err)
	}

	if _, err := cache.Fetch(ctx, "http_blob", "other"); err == nil {
		t.Fatal("expected upstream error for uncached blob")
	}

	upstream.err = ErrNotFound
	if _, err := cache.Fetch(ctx, "http_blob", "yara_rules"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("absent upstream blob must stay absent, got %v", err)
	}
}
