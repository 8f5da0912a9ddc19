package casfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash"
	"io"

	"github.com/function61/casfs/pkg/blobstore"
	"github.com/function61/casfs/pkg/castypes"
	"github.com/function61/casfs/pkg/syncbridge"
)

var errReaderConsumed = errors.New("hashed reader already verified or closed")

// HashedReader serves a fetched object from memory, hashing everything it
// hands out for a final Verify() against the checksum the store reported.
// single-owner: not safe for concurrent use.
type HashedReader struct {
	content  *digestingReader
	digest   hash.Hash
	checksum string
	consumed bool
}

func openHashedReader(ctx context.Context, store blobstore.Store, key string, bridge *syncbridge.Pool) (*HashedReader, error) {
	var res *blobstore.FetchResult
	if err := bridge.BlockOn(ctx, func(ctx context.Context) error {
		var err error
		res, err = store.Get(ctx, key)
		return err
	}); err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}

	if res.ChecksumSha256 == "" {
		res.Body.Close()

		return nil, fmt.Errorf("open %s: %w", key, castypes.ErrNoChecksum)
	}

	// deliberate simplicity tradeoff: drain the whole body now so each Read()
	// is a plain memory copy. OpenHashedFileStreaming() serves objects too
	// large to buffer.
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("open %s: %v", key, err)
	}

	downloadedBytes.Add(float64(len(body)))

	digest := castypes.NewDigest()

	return &HashedReader{
		content:  &digestingReader{inner: bytes.NewReader(body), digest: digest},
		digest:   digest,
		checksum: res.ChecksumSha256,
	}, nil
}

func (r *HashedReader) Read(p []byte) (int, error) {
	if r.consumed {
		return 0, errReaderConsumed
	}

	return r.content.Read(p)
}

// Verify finalizes the digest and compares it against the checksum captured
// at open. consumes the reader - no further reads permitted. only meaningful
// once the body has been read to completion; verifying after a partial read
// yields a (correct) mismatch.
func (r *HashedReader) Verify() error {
	if r.consumed {
		return errReaderConsumed
	}
	r.consumed = true

	return verifyDigest(r.digest, r.checksum)
}
