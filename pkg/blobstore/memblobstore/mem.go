// In-memory blob store. for tests and for use as a scratch volume.
package memblobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"sync"

	"github.com/function61/casfs/pkg/blobstore"
)

type object struct {
	content        []byte
	checksumSha256 string
}

type memBlobStore struct {
	mu      sync.Mutex
	objects map[string]object
}

func New() *memBlobStore {
	return &memBlobStore{
		objects: map[string]object{},
	}
}

func (m *memBlobStore) Put(ctx context.Context, key string, content io.Reader, checksumSha256 string) error {
	buf, err := io.ReadAll(content)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// writing the same blob again must not change outcome
	m.objects[key] = object{
		content:        buf,
		checksumSha256: checksumSha256,
	}

	return nil
}

func (m *memBlobStore) Get(ctx context.Context, key string) (*blobstore.FetchResult, error) {
	m.mu.Lock()
	obj, found := m.objects[key]
	m.mu.Unlock()

	if !found {
		return nil, fmt.Errorf("mem Get %s: %w", key, fs.ErrNotExist)
	}

	return &blobstore.FetchResult{
		Body:           io.NopCloser(bytes.NewReader(obj.content)),
		ChecksumSha256: obj.checksumSha256,
	}, nil
}

func (m *memBlobStore) Mountable(ctx context.Context) error {
	return nil
}
