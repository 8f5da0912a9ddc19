// Content-addressed file access on top of a blob store: writes are named by
// the SHA-256 of their own content, reads are verified against the checksum
// the store reports for the object.
package casfs

import (
	"context"
	"fmt"
	"log"

	"github.com/function61/casfs/pkg/blobstore"
	"github.com/function61/casfs/pkg/syncbridge"
	"github.com/function61/gokit/logex"
)

// FileSystem hands out hashed writers and readers for one (store, basePath)
// pair. stateless beyond this configuration - the store handle may be shared
// between instances and called from independent goroutines.
type FileSystem struct {
	store    blobstore.Store
	basePath string
	bridge   *syncbridge.Pool
	logl     *logex.Leveled
}

// bridge drives the store operations of the blocking call surface
// (Persist / OpenHashedFile); see syncbridge.Pool for its re-entrancy hazard.
func New(store blobstore.Store, basePath string, bridge *syncbridge.Pool, logger *log.Logger) *FileSystem {
	return &FileSystem{
		store:    store,
		basePath: basePath,
		bridge:   bridge,
		logl:     logex.Levels(logex.NonNil(logger)),
	}
}

// CreateHashedFile starts a content-addressed write under the base path.
// no network activity happens before Persist().
func (f *FileSystem) CreateHashedFile() (*HashedWriter, error) {
	return newHashedWriter(f.store, f.basePath, f.bridge)
}

// like CreateHashedFile, but nested under an additional path segment.
func (f *FileSystem) CreateHashedFileIn(path string) (*HashedWriter, error) {
	return newHashedWriter(f.store, fmt.Sprintf("%s/%s", f.basePath, path), f.bridge)
}

// OpenHashedFile fetches basePath/path, buffering the whole body in memory
// before returning. fails before any byte is readable if the store doesn't
// report a checksum for the object.
func (f *FileSystem) OpenHashedFile(ctx context.Context, path string) (*HashedReader, error) {
	f.logl.Debug.Printf("OpenHashedFile %s", path)

	return openHashedReader(ctx, f.store, f.key(path), f.bridge)
}

// OpenHashedFileStreaming returns immediately; the fetch proceeds in the
// background and the first Read() awaits it. nothing is buffered beyond the
// caller's own read buffer, so this also serves objects too large for
// OpenHashedFile.
func (f *FileSystem) OpenHashedFileStreaming(ctx context.Context, path string) *StreamReader {
	f.logl.Debug.Printf("OpenHashedFileStreaming %s", path)

	return openStreamReader(ctx, f.store, f.key(path))
}

func (f *FileSystem) key(path string) string {
	return fmt.Sprintf("%s/%s", f.basePath, path)
}
