package casfs

import (
	"context"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"

	"github.com/function61/casfs/pkg/blobstore"
	"github.com/function61/casfs/pkg/castypes"
	"github.com/function61/casfs/pkg/syncbridge"
)

var errWriterConsumed = errors.New("hashed writer already persisted or closed")

// HashedWriter stages written bytes in a local scratch file while hashing
// them, and on Persist() uploads the staged content under its content
// address. single-owner: not safe for concurrent use.
type HashedWriter struct {
	store       blobstore.Store
	basePath    string
	bridge      *syncbridge.Pool
	scratch     *os.File
	digest      hash.Hash
	bytesStaged int64
	consumed    bool
}

func newHashedWriter(store blobstore.Store, basePath string, bridge *syncbridge.Pool) (*HashedWriter, error) {
	scratch, err := os.CreateTemp("", "casfs-scratch")
	if err != nil {
		return nil, fmt.Errorf("hashed writer: scratch file: %v", err)
	}

	return &HashedWriter{
		store:    store,
		basePath: basePath,
		bridge:   bridge,
		scratch:  scratch,
		digest:   castypes.NewDigest(),
	}, nil
}

// Write appends to the scratch file. the digest folds in exactly the bytes
// the scratch file accepted, so a short write never desyncs the two.
func (w *HashedWriter) Write(p []byte) (int, error) {
	if w.consumed {
		return 0, errWriterConsumed
	}

	n, err := w.scratch.Write(p)
	if n > 0 {
		w.digest.Write(p[:n]) // hash.Hash never errors
		w.bytesStaged += int64(n)
	}
	return n, err
}

// Persist finalizes the digest, derives the content address and uploads the
// staged bytes as {basePath}/{contentId}.{extension}, with the transfer
// checksum attached so the store validates integrity at its own ingestion
// point. we intentionally don't read our own write back - that validation
// contract is the write path's integrity guarantee.
//
// One-shot: the writer is consumed whatever the outcome, and the scratch
// file is released.
func (w *HashedWriter) Persist(ctx context.Context, extension string) (castypes.ContentId, error) {
	if w.consumed {
		return "", errWriterConsumed
	}
	w.consumed = true
	defer w.discardScratch()

	sum := w.digest.Sum(nil)
	id := castypes.ContentIdFromDigest(sum)
	checksum := castypes.ChecksumFromDigest(sum)
	key := fmt.Sprintf("%s/%s.%s", w.basePath, id, extension)

	if _, err := w.scratch.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("hashed writer: rewind scratch: %v", err)
	}

	if err := w.bridge.BlockOn(ctx, func(ctx context.Context) error {
		return w.store.Put(ctx, key, w.scratch, checksum)
	}); err != nil {
		return "", fmt.Errorf("persist %s: %w", key, err)
	}

	uploadedBytes.Add(float64(w.bytesStaged))

	return id, nil
}

// Close releases the scratch file without persisting anything. a no-op after
// Persist().
func (w *HashedWriter) Close() error {
	if w.consumed {
		return nil
	}
	w.consumed = true
	w.discardScratch()

	return nil
}

func (w *HashedWriter) discardScratch() {
	name := w.scratch.Name()
	w.scratch.Close()
	os.Remove(name)
}
