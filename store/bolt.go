package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"iocscan/logger"
)

var bucketBlobs = []byte("blobs")

// BoltCache keeps the last good copy of every blob fetched from upstream and
// serves it when upstream cannot be reached. An absent blob upstream is
// reported as absent even when a stale copy exists.
type BoltCache struct {
	upstream Store
	db       *bbolt.DB
}

func NewBoltCache(path string, upstream Store) (*BoltCache, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open blob cache %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketBlobs)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create blob bucket: %w", err)
	}
	return &BoltCache{upstream: upstream, db: db}, nil
}

func cacheKey(kind, name string) []byte {
	return []byte(kind + "/" + name)
}

func (c *BoltCache) Fetch(ctx context.Context, kind, name string) ([]byte, error) {
	data, err := c.upstream.Fetch(ctx, kind, name)
	if err == nil {
		if putErr := c.put(kind, name, data); putErr != nil {
			logger.Warnf("Failed to cache blob %s/%s: %v", kind, name, putErr)
		}
		return data, nil
	}
	if errors.Is(err, ErrNotFound) {
		return nil, err
	}

	cached, ok, getErr := c.get(kind, name)
	if getErr != nil {
		return nil, errors.Join(err, getErr)
	}
	if !ok {
		return nil, err
	}
	logger.Warnf("Upstream fetch of %s/%s failed (%v), using cached copy", kind, name, err)
	return cached, nil
}

func (c *BoltCache) put(kind, name string, data []byte) error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketBlobs).Put(cacheKey(kind, name), data)
	})
}

func (c *BoltCache) get(kind, name string) ([]byte, bool, error) {
	var out []byte
	err := c.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketBlobs).Get(cacheKey(kind, name))
		if v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out, out != nil, err
}

func (c *BoltCache) Close() error {
	return c.db.Close()
}
