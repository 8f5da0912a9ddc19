package casfs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/function61/casfs/pkg/blobstore"
	"github.com/function61/casfs/pkg/blobstore/memblobstore"
	"github.com/function61/casfs/pkg/castypes"
	"github.com/function61/casfs/pkg/syncbridge"
	"github.com/function61/gokit/assert"
)

// content id of zero bytes = URL-safe Base64 of SHA-256("")
const emptyContentId = "47DEQpj8HBSa-_TImW-5JCeuQeRkm5NMpJWZG3hSuFU"

func TestRoundTripBuffered(t *testing.T) {
	fsys, _, cleanup := newTestFs(t)
	defer cleanup()

	content := []byte("The quick brown fox jumps over the lazy dog")

	id := persist(t, fsys, content, "dat")

	reader, err := fsys.OpenHashedFile(context.Background(), id.String()+".dat")
	assert.Ok(t, err)

	drained, err := io.ReadAll(reader)
	assert.Ok(t, err)
	assert.Assert(t, bytes.Equal(drained, content))

	assert.Ok(t, reader.Verify())
}

func TestRoundTripStreaming(t *testing.T) {
	fsys, _, cleanup := newTestFs(t)
	defer cleanup()

	content := []byte("streamed content")

	id := persist(t, fsys, content, "dat")

	reader := fsys.OpenHashedFileStreaming(context.Background(), id.String()+".dat")

	drained, err := io.ReadAll(reader)
	assert.Ok(t, err)
	assert.Assert(t, bytes.Equal(drained, content))

	assert.Ok(t, reader.Verify())
}

func TestContentIdDeterministicAcrossChunkSizes(t *testing.T) {
	fsys, _, cleanup := newTestFs(t)
	defer cleanup()

	content := bytes.Repeat([]byte("0123456789abcdef"), 100)

	ids := []castypes.ContentId{}
	for _, chunkSize := range []int{1, 7, 64, len(content)} {
		writer, err := fsys.CreateHashedFile()
		assert.Ok(t, err)

		for pos := 0; pos < len(content); pos += chunkSize {
			end := pos + chunkSize
			if end > len(content) {
				end = len(content)
			}

			n, err := writer.Write(content[pos:end])
			assert.Ok(t, err)
			assert.Assert(t, n == end-pos)
		}

		id, err := writer.Persist(context.Background(), "dat")
		assert.Ok(t, err)

		ids = append(ids, id)
	}

	for _, id := range ids[1:] {
		assert.EqualString(t, id.String(), ids[0].String())
	}
}

func TestEmptyObject(t *testing.T) {
	fsys, _, cleanup := newTestFs(t)
	defer cleanup()

	writer, err := fsys.CreateHashedFile()
	assert.Ok(t, err)

	id, err := writer.Persist(context.Background(), "dat")
	assert.Ok(t, err)
	assert.EqualString(t, id.String(), emptyContentId)

	reader, err := fsys.OpenHashedFile(context.Background(), id.String()+".dat")
	assert.Ok(t, err)

	drained, err := io.ReadAll(reader)
	assert.Ok(t, err)
	assert.Assert(t, len(drained) == 0)

	assert.Ok(t, reader.Verify())

	streaming := fsys.OpenHashedFileStreaming(context.Background(), id.String()+".dat")

	n, err := streaming.Read(make([]byte, 8))
	assert.Assert(t, n == 0)
	assert.Assert(t, err == io.EOF)

	assert.Ok(t, streaming.Verify())
}

func TestNestedWriter(t *testing.T) {
	fsys, _, cleanup := newTestFs(t)
	defer cleanup()

	writer, err := fsys.CreateHashedFileIn("p1/vectors")
	assert.Ok(t, err)

	_, err = writer.Write([]byte("nested"))
	assert.Ok(t, err)

	id, err := writer.Persist(context.Background(), "bin")
	assert.Ok(t, err)

	reader, err := fsys.OpenHashedFile(context.Background(), fmt.Sprintf("p1/vectors/%s.bin", id))
	assert.Ok(t, err)

	drained, err := io.ReadAll(reader)
	assert.Ok(t, err)
	assert.EqualString(t, string(drained), "nested")
	assert.Ok(t, reader.Verify())
}

func TestTamperDetectionBuffered(t *testing.T) {
	fsys, store, cleanup := newTestFs(t)
	defer cleanup()

	id := persist(t, fsys, []byte("original content"), "dat")

	// simulated faulty store: attributes a wrong checksum to the delivered bytes
	tamperedFs := New(&checksumOverridingStore{store, castypes.ChecksumFromDigest(bytes.Repeat([]byte{0xff}, 32))}, "base", testBridge(t), nil)

	for _, readBufSize := range []int{1, 5, 4096} {
		reader, err := tamperedFs.OpenHashedFile(context.Background(), id.String()+".dat")
		assert.Ok(t, err)

		drainWithBufSize(t, reader, readBufSize)

		err = reader.Verify()
		assert.Assert(t, errors.Is(err, castypes.ErrChecksumMismatch))
	}
}

func TestTamperDetectionStreaming(t *testing.T) {
	fsys, store, cleanup := newTestFs(t)
	defer cleanup()

	id := persist(t, fsys, []byte("original content"), "dat")

	tamperedFs := New(&checksumOverridingStore{store, castypes.ChecksumFromDigest(bytes.Repeat([]byte{0xff}, 32))}, "base", testBridge(t), nil)

	for _, readBufSize := range []int{1, 5, 4096} {
		reader := tamperedFs.OpenHashedFileStreaming(context.Background(), id.String()+".dat")

		drainWithBufSize(t, reader, readBufSize)

		err := reader.Verify()
		assert.Assert(t, errors.Is(err, castypes.ErrChecksumMismatch))
	}
}

func TestVerificationErrorNamesBothValues(t *testing.T) {
	fsys, store, cleanup := newTestFs(t)
	defer cleanup()

	id := persist(t, fsys, []byte("content"), "dat")

	bogusChecksum := castypes.ChecksumFromDigest(bytes.Repeat([]byte{0xff}, 32))
	tamperedFs := New(&checksumOverridingStore{store, bogusChecksum}, "base", testBridge(t), nil)

	reader, err := tamperedFs.OpenHashedFile(context.Background(), id.String()+".dat")
	assert.Ok(t, err)

	drainWithBufSize(t, reader, 4096)

	err = reader.Verify()
	assert.Assert(t, err != nil)
	assert.Assert(t, strings.Contains(err.Error(), bogusChecksum))

	sum := castypes.NewDigest()
	sum.Write([]byte("content"))
	assert.Assert(t, strings.Contains(err.Error(), castypes.ChecksumFromDigest(sum.Sum(nil))))
}

func TestMissingChecksumRejectedBuffered(t *testing.T) {
	fsys, store, cleanup := newTestFs(t)
	defer cleanup()

	id := persist(t, fsys, []byte("content"), "dat")

	noChecksumFs := New(&checksumOverridingStore{store, ""}, "base", testBridge(t), nil)

	_, err := noChecksumFs.OpenHashedFile(context.Background(), id.String()+".dat")
	assert.Assert(t, errors.Is(err, castypes.ErrNoChecksum))
}

func TestMissingChecksumRejectedStreaming(t *testing.T) {
	fsys, store, cleanup := newTestFs(t)
	defer cleanup()

	id := persist(t, fsys, []byte("content"), "dat")

	noChecksumFs := New(&checksumOverridingStore{store, ""}, "base", testBridge(t), nil)

	reader := noChecksumFs.OpenHashedFileStreaming(context.Background(), id.String()+".dat")

	// rejected before any body byte is delivered
	n, err := reader.Read(make([]byte, 8))
	assert.Assert(t, n == 0)
	assert.Assert(t, errors.Is(err, castypes.ErrNoChecksum))

	// the failure is sticky
	_, err = reader.Read(make([]byte, 8))
	assert.Assert(t, errors.Is(err, castypes.ErrNoChecksum))
}

func TestStreamingEquivalence(t *testing.T) {
	fsys, _, cleanup := newTestFs(t)
	defer cleanup()

	content := bytes.Repeat([]byte("equivalence "), 333)

	id := persist(t, fsys, content, "dat")

	for _, readBufSize := range []int{1, 3, 1000, 8192} {
		buffered, err := fsys.OpenHashedFile(context.Background(), id.String()+".dat")
		assert.Ok(t, err)
		bufferedBytes := drainWithBufSize(t, buffered, readBufSize)
		assert.Ok(t, buffered.Verify())

		streaming := fsys.OpenHashedFileStreaming(context.Background(), id.String()+".dat")
		streamingBytes := drainWithBufSize(t, streaming, readBufSize)
		assert.Ok(t, streaming.Verify())

		assert.Assert(t, bytes.Equal(bufferedBytes, content))
		assert.Assert(t, bytes.Equal(streamingBytes, content))
	}
}

func TestPartialReadThenVerifyMismatches(t *testing.T) {
	fsys, _, cleanup := newTestFs(t)
	defer cleanup()

	id := persist(t, fsys, []byte("0123456789"), "dat")

	reader, err := fsys.OpenHashedFile(context.Background(), id.String()+".dat")
	assert.Ok(t, err)

	// digest has only observed half the body => (correct) mismatch
	_, err = io.ReadFull(reader, make([]byte, 5))
	assert.Ok(t, err)

	err = reader.Verify()
	assert.Assert(t, errors.Is(err, castypes.ErrChecksumMismatch))
}

func TestWriterIsOneShot(t *testing.T) {
	fsys, _, cleanup := newTestFs(t)
	defer cleanup()

	writer, err := fsys.CreateHashedFile()
	assert.Ok(t, err)

	_, err = writer.Write([]byte("abc"))
	assert.Ok(t, err)

	_, err = writer.Persist(context.Background(), "dat")
	assert.Ok(t, err)

	_, err = writer.Write([]byte("more"))
	assert.Assert(t, err == errWriterConsumed)

	_, err = writer.Persist(context.Background(), "dat")
	assert.Assert(t, err == errWriterConsumed)
}

func TestWriterCloseWithoutPersist(t *testing.T) {
	fsys, _, cleanup := newTestFs(t)
	defer cleanup()

	writer, err := fsys.CreateHashedFile()
	assert.Ok(t, err)

	_, err = writer.Write([]byte("discarded"))
	assert.Ok(t, err)

	assert.Ok(t, writer.Close())

	_, err = writer.Persist(context.Background(), "dat")
	assert.Assert(t, err == errWriterConsumed)
}

func TestReadAfterVerifyRejected(t *testing.T) {
	fsys, _, cleanup := newTestFs(t)
	defer cleanup()

	id := persist(t, fsys, []byte("content"), "dat")

	reader, err := fsys.OpenHashedFile(context.Background(), id.String()+".dat")
	assert.Ok(t, err)

	drainWithBufSize(t, reader, 4096)
	assert.Ok(t, reader.Verify())

	_, err = reader.Read(make([]byte, 8))
	assert.Assert(t, err == errReaderConsumed)
}

func TestTransportErrorWrapped(t *testing.T) {
	bridge := syncbridge.New(2)
	defer bridge.Close()

	transportErr := errors.New("connection reset by peer")
	fsys := New(&failingStore{transportErr}, "base", bridge, nil)

	_, err := fsys.OpenHashedFile(context.Background(), "whatever.dat")
	assert.Assert(t, errors.Is(err, transportErr))
	assert.Assert(t, strings.Contains(err.Error(), "open base/whatever.dat"))

	streaming := fsys.OpenHashedFileStreaming(context.Background(), "whatever.dat")
	_, err = streaming.Read(make([]byte, 8))
	assert.Assert(t, errors.Is(err, transportErr))
}

func TestStreamReaderVerifyBeforeResponse(t *testing.T) {
	fsys, _, cleanup := newTestFs(t)
	defer cleanup()

	id := persist(t, fsys, []byte("content"), "dat")

	reader := fsys.OpenHashedFileStreaming(context.Background(), id.String()+".dat")

	err := reader.Verify()
	assert.Assert(t, err != nil)
	assert.Assert(t, strings.Contains(err.Error(), "no response processed yet"))

	assert.Ok(t, reader.Close())
}

func newTestFs(t *testing.T) (*FileSystem, blobstore.Store, func()) {
	store := memblobstore.New()
	bridge := syncbridge.New(2)

	return New(store, "base", bridge, nil), store, bridge.Close
}

func testBridge(t *testing.T) *syncbridge.Pool {
	bridge := syncbridge.New(2)
	t.Cleanup(bridge.Close)
	return bridge
}

func persist(t *testing.T, fsys *FileSystem, content []byte, extension string) castypes.ContentId {
	t.Helper()

	writer, err := fsys.CreateHashedFile()
	assert.Ok(t, err)

	n, err := writer.Write(content)
	assert.Ok(t, err)
	assert.Assert(t, n == len(content))

	id, err := writer.Persist(context.Background(), extension)
	assert.Ok(t, err)

	return id
}

func drainWithBufSize(t *testing.T, reader io.Reader, bufSize int) []byte {
	t.Helper()

	drained := []byte{}
	buf := make([]byte, bufSize)
	for {
		n, err := reader.Read(buf)
		drained = append(drained, buf[:n]...)
		if err == io.EOF {
			return drained
		}
		assert.Ok(t, err)
	}
}

// wraps a working store but reports the given checksum on every Get ("" =
// store that doesn't report checksums at all)
type checksumOverridingStore struct {
	blobstore.Store
	checksum string
}

func (s *checksumOverridingStore) Get(ctx context.Context, key string) (*blobstore.FetchResult, error) {
	res, err := s.Store.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	res.ChecksumSha256 = s.checksum
	return res, nil
}

type failingStore struct {
	err error
}

func (s *failingStore) Put(ctx context.Context, key string, content io.Reader, checksumSha256 string) error {
	return s.err
}

func (s *failingStore) Get(ctx context.Context, key string) (*blobstore.FetchResult, error) {
	return nil, s.err
}

func (s *failingStore) Mountable(ctx context.Context) error {
	return s.err
}
