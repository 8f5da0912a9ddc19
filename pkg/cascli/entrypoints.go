// Command line client for casfs ("casfs put|cat|check")
package cascli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/function61/casfs/pkg/blobstore"
	"github.com/function61/casfs/pkg/blobstore/boltblobstore"
	"github.com/function61/casfs/pkg/blobstore/localfsblobstore"
	"github.com/function61/casfs/pkg/blobstore/memblobstore"
	"github.com/function61/casfs/pkg/blobstore/s3blobstore"
	"github.com/function61/casfs/pkg/casfs"
	"github.com/function61/casfs/pkg/syncbridge"
	"github.com/function61/gokit/logex"
	"github.com/function61/gokit/osutil"
	"github.com/spf13/cobra"
)

func Entrypoints() []*cobra.Command {
	return []*cobra.Command{
		putEntrypoint(),
		catEntrypoint(),
		checkEntrypoint(),
	}
}

func putEntrypoint() *cobra.Command {
	pathSuffix := ""

	cmd := &cobra.Command{
		Use:   "put [file]",
		Short: "Uploads a file under its content address, printing the content id",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(put(context.Background(), args[0], pathSuffix))
		},
	}

	cmd.Flags().StringVarP(&pathSuffix, "in", "i", pathSuffix, "Additional path segment to nest the object under")

	return cmd
}

func catEntrypoint() *cobra.Command {
	return &cobra.Command{
		Use:   "cat [path]",
		Short: "Streams an object to stdout, verifying its integrity",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(cat(context.Background(), args[0]))
		},
	}
}

func checkEntrypoint() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Probes that the configured volume is accessible",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			logger := logex.StandardLogger()

			store, err := storeFromEnv(logger)
			osutil.ExitIfError(err)

			osutil.ExitIfError(store.Mountable(context.Background()))

			fmt.Println("volume OK")
		},
	}
}

func put(ctx context.Context, filePath string, pathSuffix string) error {
	fsys, cleanup, err := fsFromEnv()
	if err != nil {
		return err
	}
	defer cleanup()

	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	writer, err := func() (*casfs.HashedWriter, error) {
		if pathSuffix != "" {
			return fsys.CreateHashedFileIn(pathSuffix)
		}
		return fsys.CreateHashedFile()
	}()
	if err != nil {
		return err
	}
	defer writer.Close()

	if _, err := io.Copy(writer, file); err != nil {
		return err
	}

	id, err := writer.Persist(ctx, extensionOf(filePath))
	if err != nil {
		return err
	}

	fmt.Printf("%s.%s\n", id, extensionOf(filePath))

	return nil
}

func cat(ctx context.Context, path string) error {
	fsys, cleanup, err := fsFromEnv()
	if err != nil {
		return err
	}
	defer cleanup()

	reader := fsys.OpenHashedFileStreaming(ctx, path)
	defer reader.Close()

	if _, err := io.Copy(os.Stdout, reader); err != nil {
		return err
	}

	// output is already emitted by now, so a mismatch can only warn the
	// consumer via exit code - but that's the best a pipe can do
	return reader.Verify()
}

func fsFromEnv() (*casfs.FileSystem, func(), error) {
	logger := logex.StandardLogger()

	store, err := storeFromEnv(logger)
	if err != nil {
		return nil, nil, err
	}

	basePath := os.Getenv("CASFS_BASEPATH")
	if basePath == "" {
		basePath = "casfs"
	}

	bridge := syncbridge.New(3)

	return casfs.New(store, basePath, bridge, logger), bridge.Close, nil
}

func storeFromEnv(logger *log.Logger) (blobstore.Store, error) {
	volume := os.Getenv("CASFS_VOLUME")
	if volume == "" {
		return nil, errors.New("CASFS_VOLUME not set (format: s3:<bucket:prefix:accessKeyId:secret:region[:endpoint]> | bolt:<file> | dir:<path> | mem:)")
	}

	kind, opts, _ := strings.Cut(volume, ":")

	switch kind {
	case "s3":
		store, err := s3blobstore.NewFromOptionsString(opts)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "bolt":
		store, err := boltblobstore.New(opts, logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "dir":
		return localfsblobstore.New(opts, logger), nil
	case "mem":
		return memblobstore.New(), nil
	default:
		return nil, fmt.Errorf("unsupported volume kind: %s", kind)
	}
}

func extensionOf(filePath string) string {
	if ext := strings.TrimPrefix(filepath.Ext(filePath), "."); ext != "" {
		return ext
	}

	return "dat"
}
