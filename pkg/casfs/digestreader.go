package casfs

import (
	"fmt"
	"hash"
	"io"

	"github.com/function61/casfs/pkg/castypes"
)

// folds every byte read through it into the digest - exactly the bytes
// delivered to the caller, never more. both reader variants build on this so
// the accumulation logic exists only once.
type digestingReader struct {
	inner  io.Reader
	digest hash.Hash
}

func (d *digestingReader) Read(p []byte) (int, error) {
	n, err := d.inner.Read(p)
	if n > 0 {
		d.digest.Write(p[:n]) // hash.Hash never errors
	}
	return n, err
}

func verifyDigest(digest hash.Hash, expected string) error {
	computed := castypes.ChecksumFromDigest(digest.Sum(nil))
	if computed != expected {
		verificationFailures.Inc()

		return fmt.Errorf("%w: expected %s but got %s", castypes.ErrChecksumMismatch, expected, computed)
	}

	return nil
}
