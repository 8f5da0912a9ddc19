// Interface for writing blob store drivers for casfs
package blobstore

import (
	"context"
	"io"
)

// FetchResult is what Get() hands back: the object body and the integrity
// checksum the store has on record for it.
type FetchResult struct {
	Body io.ReadCloser

	// standard (padded) Base64 of the raw SHA-256 digest, as persisted by
	// the store at Put() time. empty when the store reported none.
	ChecksumSha256 string
}

type Store interface {
	// backing store must be idempotent, i.e. writing same blob again must not
	// change outcome. the store must persist checksumSha256 so Get() can
	// report it back, and is expected to validate content against it at its
	// own ingestion point.
	Put(ctx context.Context, key string, content io.Reader, checksumSha256 string) error

	// raw fetch - integrity verification is done at a higher level against
	// FetchResult.ChecksumSha256.
	// if blob is not found, error must report errors.Is(err, fs.ErrNotExist) == true
	Get(ctx context.Context, key string) (*FetchResult, error)

	// cheap access probe ("can we see the volume at all")
	Mountable(ctx context.Context) error
}
