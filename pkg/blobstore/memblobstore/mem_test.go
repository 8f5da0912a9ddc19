package memblobstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"testing"

	"github.com/function61/gokit/assert"
)

func TestPutGetRoundTrip(t *testing.T) {
	store := New()

	ctx := context.Background()

	assert.Ok(t, store.Put(ctx, "base/abc.dat", bytes.NewReader([]byte("content")), "checksum="))

	res, err := store.Get(ctx, "base/abc.dat")
	assert.Ok(t, err)

	fetched, err := io.ReadAll(res.Body)
	assert.Ok(t, err)
	assert.EqualString(t, string(fetched), "content")
	assert.EqualString(t, res.ChecksumSha256, "checksum=")
}

func TestGetMissing(t *testing.T) {
	_, err := New().Get(context.Background(), "base/nope.dat")
	assert.Assert(t, errors.Is(err, fs.ErrNotExist))
}
