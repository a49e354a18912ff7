package store

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"iocscan/logger"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	defaultMaxTries    = 4
	maxBlobSize        = 256 << 20
)

// HTTPStore fetches blobs with GET <base>/<kind>/<name>, retrying transient
// failures with exponential backoff.
type HTTPStore struct {
	base     string
	client   *http.Client
	maxTries uint
	backoff  func() backoff.BackOff
}

type HTTPOption func(*HTTPStore)

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPStore) {
		if c != nil {
			s.client = c
		}
	}
}

func WithMaxTries(n uint) HTTPOption {
	return func(s *HTTPStore) {
		if n > 0 {
			s.maxTries = n
		}
	}
}

// WithBackOff replaces the retry schedule; mostly useful in tests.
func WithBackOff(fn func() backoff.BackOff) HTTPOption {
	return func(s *HTTPStore) {
		if fn != nil {
			s.backoff = fn
		}
	}
}

func NewHTTPStore(base string, opts ...HTTPOption) (*HTTPStore, error) {
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("invalid rules url %q", base)
	}
	s := &HTTPStore{
		base:     strings.TrimRight(base, "/"),
		client:   &http.Client{Timeout: defaultHTTPTimeout},
		maxTries: defaultMaxTries,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *HTTPStore) Fetch(ctx context.Context, kind, name string) ([]byte, error) {
	target := s.base + "/" + url.PathEscape(kind) + "/" + url.PathEscape(name)
	attempt := 0
	operation := func() ([]byte, error) {
		attempt++
		data, err := s.get(ctx, target)
		if err != nil {
			logger.WithFields(map[string]interface{}{"url": target, "attempt": attempt}).Debugf("Blob fetch failed: %v", err)
		}
		return data, err
	}
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(s.backoff()),
		backoff.WithMaxTries(s.maxTries),
	)
}

func (s *HTTPStore) get(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, backoff.Permanent(fmt.Errorf("%s: %w", target, ErrNotFound))
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%s: %s", target, resp.Status)
	case resp.StatusCode != http.StatusOK:
		return nil, backoff.Permanent(fmt.Errorf("%s: %s", target, resp.Status))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBlobSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxBlobSize {
		return nil, backoff.Permanent(fmt.Errorf("%s: blob exceeds %d bytes", target, maxBlobSize))
	}
	return data, nil
}
