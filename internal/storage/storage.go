// Package storage provides access to external assets (the face cascade) kept in object storage
package storage

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/UnendingLoop/ImageOps/internal/appcfg"
	"github.com/UnendingLoop/ImageOps/internal/storage/miniostorage"
)

const cascadeContentType = "application/xml"

// ObjectStore - контракт для работы с хранилищем
type ObjectStore interface {
	Get(ctx context.Context, key string) (output io.ReadCloser, ctype string, err error)
	Put(ctx context.Context, key string, size int64, contentType string, r io.Reader) error
	Exists(ctx context.Context, key string) (bool, error)
}

// NewAssetStorage connects to MinIO, retrying until attempts run out or ctx is done.
func NewAssetStorage(ctx context.Context, cfg appcfg.Config, attempts int, delay time.Duration) (*miniostorage.MinioAssetStorage, error) {
	var lastErr error
	for i := range attempts {
		log.Println("Connecting to asset-storage...")
		client, err := miniostorage.NewMinioClient(cfg.Minio, cfg.Cascade.Bucket)
		if err == nil {
			log.Println("Successfully connected asset-storage!")
			return client, nil
		}
		lastErr = err
		log.Printf("Failed to init connection to asset-storage (try #%d): %v\nNext retry in %v...", i+1, err, delay)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	return nil, fmt.Errorf("asset-storage is unreachable: %w", lastErr)
}

// CascadeSource opens the cascade object on every load attempt.
type CascadeSource struct {
	store  ObjectStore
	bucket string
	key    string
}

func NewCascadeSource(store ObjectStore, bucket, key string) *CascadeSource {
	return &CascadeSource{store: store, bucket: bucket, key: key}
}

func (c *CascadeSource) Open(ctx context.Context) (io.ReadCloser, error) {
	rc, _, err := c.store.Get(ctx, c.key)
	if err != nil {
		return nil, err
	}
	return rc, nil
}

func (c *CascadeSource) String() string {
	return "minio://" + c.bucket + "/" + c.key
}

// SeedObject uploads the local file under key when the object is not there yet.
// It reports whether an upload happened.
func SeedObject(ctx context.Context, store ObjectStore, key, localPath string) (bool, error) {
	exists, err := store.Exists(ctx, key)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	f, err := os.Open(localPath)
	if err != nil {
		return false, fmt.Errorf("open seed file: %w", err)
	}
	defer closeFileFlow(f)

	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("stat seed file: %w", err)
	}

	if err := store.Put(ctx, key, info.Size(), cascadeContentType, f); err != nil {
		return false, err
	}
	return true, nil
}

func closeFileFlow(res io.Closer) {
	if err := res.Close(); err != nil {
		log.Println("Failed to close fileflow:", err)
	}
}
