package casfs

import (
	"context"
	"fmt"
	"hash"
	"io"

	"github.com/function61/casfs/pkg/blobstore"
	"github.com/function61/casfs/pkg/castypes"
)

type fetchOutcome struct {
	res *blobstore.FetchResult
	err error
}

// StreamReader is the streaming counterpart of HashedReader: it forwards
// bytes straight from the store body without buffering the object, hashing
// everything it hands out for a final Verify().
//
// Two phases: until the store response arrives, Read() awaits the pending
// fetch; from then on it streams from the body. the transition is
// forward-only. single-owner: not safe for concurrent use.
type StreamReader struct {
	key        string
	pending    chan fetchOutcome // resolves exactly once
	body       *digestingReader
	bodyCloser io.Closer
	digest     hash.Hash
	checksum   string
	fatal      error // sticky phase-one failure
	consumed   bool
}

func openStreamReader(ctx context.Context, store blobstore.Store, key string) *StreamReader {
	// buffered so the fetch goroutine exits even if the reader is dropped
	pending := make(chan fetchOutcome, 1)
	go func() {
		res, err := store.Get(ctx, key)
		pending <- fetchOutcome{res: res, err: err}
	}()

	return &StreamReader{
		key:     key,
		pending: pending,
		digest:  castypes.NewDigest(),
	}
}

func (r *StreamReader) Read(p []byte) (int, error) {
	if r.consumed {
		return 0, errReaderConsumed
	}
	if r.fatal != nil {
		return 0, r.fatal
	}

	if r.body == nil {
		// phase one: await the store response. a transport error or a missing
		// checksum terminates the stream before any body byte is delivered.
		outcome := <-r.pending

		if outcome.err != nil {
			r.fatal = fmt.Errorf("open %s: %w", r.key, outcome.err)
			return 0, r.fatal
		}

		if outcome.res.ChecksumSha256 == "" {
			outcome.res.Body.Close()

			r.fatal = fmt.Errorf("open %s: %w", r.key, castypes.ErrNoChecksum)
			return 0, r.fatal
		}

		r.checksum = outcome.res.ChecksumSha256
		r.body = &digestingReader{inner: outcome.res.Body, digest: r.digest}
		r.bodyCloser = outcome.res.Body
	}

	// phase two: forward from the body. its outcomes pass through unmodified -
	// they are already well-formed I/O errors (end of body is its io.EOF).
	n, err := r.body.Read(p)
	if n > 0 {
		downloadedBytes.Add(float64(n))
	}
	return n, err
}

// Verify finalizes the digest and compares it against the checksum captured
// when the response arrived. consumes the reader. only meaningful once the
// body has reported completion; verifying after a partial read yields a
// (correct) mismatch.
func (r *StreamReader) Verify() error {
	if r.consumed {
		return errReaderConsumed
	}
	if r.fatal != nil {
		return r.fatal
	}
	if r.body == nil {
		return fmt.Errorf("verify %s: no response processed yet", r.key)
	}
	r.consumed = true

	return verifyDigest(r.digest, r.checksum)
}

// Close releases the body. if the fetch is still unresolved, Close waits for
// it; cancel the ctx given at open to abandon an in-flight fetch early.
func (r *StreamReader) Close() error {
	r.consumed = true

	if r.body == nil && r.fatal == nil {
		outcome := <-r.pending
		if outcome.err == nil {
			return outcome.res.Body.Close()
		}
		return nil
	}

	if r.bodyCloser != nil {
		closer := r.bodyCloser
		r.bodyCloser = nil
		return closer.Close()
	}

	return nil
}
