package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/UnendingLoop/ImageOps/internal/appcfg"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	getFn    func(ctx context.Context, key string) (io.ReadCloser, string, error)
	putFn    func(ctx context.Context, key string, size int64, ct string, r io.Reader) error
	existsFn func(ctx context.Context, key string) (bool, error)
}

func (m *mockStore) Get(ctx context.Context, key string) (io.ReadCloser, string, error) {
	return m.getFn(ctx, key)
}

func (m *mockStore) Put(ctx context.Context, key string, size int64, ct string, r io.Reader) error {
	return m.putFn(ctx, key, size, ct, r)
}

func (m *mockStore) Exists(ctx context.Context, key string) (bool, error) {
	return m.existsFn(ctx, key)
}

func TestCascadeSource(t *testing.T) {
	store := &mockStore{
		getFn: func(_ context.Context, key string) (io.ReadCloser, string, error) {
			if key != "haar.xml" {
				return nil, "", errors.New("NoSuchKey")
			}
			return io.NopCloser(bytes.NewReader([]byte("<opencv_storage/>"))), cascadeContentType, nil
		},
	}

	src := NewCascadeSource(store, "assets", "haar.xml")
	require.Equal(t, "minio://assets/haar.xml", src.String())

	rc, err := src.Open(context.Background())
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "<opencv_storage/>", string(data))

	_, err = NewCascadeSource(store, "assets", "other.xml").Open(context.Background())
	require.Error(t, err)
}

func TestSeedObject(t *testing.T) {
	local := filepath.Join(t.TempDir(), "cascade.xml")
	require.NoError(t, os.WriteFile(local, []byte("<cascade/>"), 0o600))

	tests := []struct {
		name       string
		exists     bool
		existsErr  error
		putErr     error
		path       string
		wantUpload bool
		wantErr    bool
	}{
		{name: "uploads missing object", path: local, wantUpload: true},
		{name: "keeps existing object", exists: true, path: local},
		{name: "stat fails", existsErr: errors.New("minio down"), path: local, wantErr: true},
		{name: "no local file", path: filepath.Join(t.TempDir(), "nope.xml"), wantErr: true},
		{name: "put fails", putErr: errors.New("quota"), path: local, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var uploaded []byte
			store := &mockStore{
				existsFn: func(context.Context, string) (bool, error) { return tt.exists, tt.existsErr },
				putFn: func(_ context.Context, key string, size int64, ct string, r io.Reader) error {
					if tt.putErr != nil {
						return tt.putErr
					}
					require.Equal(t, "haar.xml", key)
					require.Equal(t, cascadeContentType, ct)
					data, err := io.ReadAll(r)
					require.NoError(t, err)
					require.Equal(t, int64(len(data)), size)
					uploaded = data
					return nil
				},
			}

			did, err := SeedObject(context.Background(), store, "haar.xml", tt.path)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.wantUpload, did)
			if tt.wantUpload {
				require.Equal(t, "<cascade/>", string(uploaded))
			}
		})
	}
}

func TestNewAssetStorage_MisconfiguredGivesUp(t *testing.T) {
	cfg := appcfg.Config{}

	_, err := NewAssetStorage(context.Background(), cfg, 2, time.Millisecond)
	require.ErrorContains(t, err, "bucket is required")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewAssetStorage(ctx, cfg, 5, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
}
