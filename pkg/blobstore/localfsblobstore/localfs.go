// Writes your blobs to a local directory: blob as a file, checksum as a
// sidecar file next to it.
package localfsblobstore

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/function61/casfs/pkg/blobstore"
	"github.com/function61/gokit/atomicfilewrite"
	"github.com/function61/gokit/fileexists"
	"github.com/function61/gokit/logex"
)

func New(path string, logger *log.Logger) *localFs {
	return &localFs{
		path: path,
		logl: logex.Levels(logex.NonNil(logger)),
	}
}

type localFs struct {
	path string
	logl *logex.Leveled
}

func (l *localFs) Put(ctx context.Context, key string, content io.Reader, checksumSha256 string) error {
	filename := l.getPath(key)

	// does not error if already exists
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}

	blobExists, err := fileexists.Exists(filename)
	if err != nil {
		return err
	}

	if blobExists {
		// key is content-derived, so same key means same bytes
		return nil
	}

	if err := atomicfilewrite.Write(filename, func(writer io.Writer) error {
		_, err := io.Copy(writer, content)
		return err
	}); err != nil {
		return err
	}

	return atomicfilewrite.Write(checksumSidecar(filename), func(writer io.Writer) error {
		_, err := writer.Write([]byte(checksumSha256))
		return err
	})
}

func (l *localFs) Get(ctx context.Context, key string) (*blobstore.FetchResult, error) {
	filename := l.getPath(key)

	body, err := os.Open(filename) // reports fs.ErrNotExist for missing blobs
	if err != nil {
		return nil, err
	}

	checksum, err := os.ReadFile(checksumSidecar(filename))
	if err != nil && !os.IsNotExist(err) {
		body.Close()
		return nil, err
	}

	return &blobstore.FetchResult{
		Body:           body,
		ChecksumSha256: string(checksum),
	}, nil
}

func (l *localFs) Mountable(ctx context.Context) error {
	exists, err := fileexists.Exists(l.path)
	if err != nil {
		return err
	}

	if !exists {
		return fmt.Errorf("volume directory not found: %s", l.path)
	}

	return nil
}

func (l *localFs) getPath(key string) string {
	return filepath.Join(l.path, filepath.FromSlash(key))
}

func checksumSidecar(blobFilename string) string {
	return blobFilename + ".sha256b64"
}
