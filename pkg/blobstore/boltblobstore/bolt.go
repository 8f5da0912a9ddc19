// Writes your blobs to a local bbolt file. useful for development and for
// volumes that live on a locally mounted disk.
package boltblobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"log"

	"github.com/function61/casfs/pkg/blobstore"
	"github.com/function61/gokit/logex"
	bolt "go.etcd.io/bbolt"
)

var (
	blobsBucketKey     = []byte("blobs")
	checksumsBucketKey = []byte("checksums")
)

type boltBlobStore struct {
	db   *bolt.DB
	logl *logex.Leveled
}

func New(dbLocation string, logger *log.Logger) (*boltBlobStore, error) {
	db, err := bolt.Open(dbLocation, 0700, nil)
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucketKey := range [][]byte{blobsBucketKey, checksumsBucketKey} {
			if _, err := tx.CreateBucketIfNotExists(bucketKey); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return nil, err
	}

	return &boltBlobStore{
		db:   db,
		logl: logex.Levels(logex.NonNil(logger)),
	}, nil
}

func (b *boltBlobStore) Put(ctx context.Context, key string, content io.Reader, checksumSha256 string) error {
	buf, err := io.ReadAll(content)
	if err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		blobs := tx.Bucket(blobsBucketKey)

		if existing := blobs.Get([]byte(key)); existing != nil {
			// key is content-derived, so same key means same bytes
			if !bytes.Equal(existing, buf) {
				return fmt.Errorf("bolt Put %s: existing blob differs from new content", key)
			}
			return nil
		}

		if err := blobs.Put([]byte(key), buf); err != nil {
			return err
		}

		return tx.Bucket(checksumsBucketKey).Put([]byte(key), []byte(checksumSha256))
	})
}

func (b *boltBlobStore) Get(ctx context.Context, key string) (*blobstore.FetchResult, error) {
	var content []byte
	var checksum string

	if err := b.db.View(func(tx *bolt.Tx) error {
		stored := tx.Bucket(blobsBucketKey).Get([]byte(key))
		if stored == nil {
			return fmt.Errorf("bolt Get %s: %w", key, fs.ErrNotExist)
		}

		// must copy - the slice is only valid for the duration of the transaction
		content = append([]byte(nil), stored...)
		checksum = string(tx.Bucket(checksumsBucketKey).Get([]byte(key)))

		return nil
	}); err != nil {
		return nil, err
	}

	return &blobstore.FetchResult{
		Body:           io.NopCloser(bytes.NewReader(content)),
		ChecksumSha256: checksum,
	}, nil
}

func (b *boltBlobStore) Mountable(ctx context.Context) error {
	return b.db.View(func(tx *bolt.Tx) error {
		if tx.Bucket(blobsBucketKey) == nil {
			return fmt.Errorf("bolt: blobs bucket missing - not a casfs volume")
		}
		return nil
	})
}

func (b *boltBlobStore) Close() error {
	return b.db.Close()
}
