package main

import (
	"os"

	"github.com/function61/casfs/pkg/cascli"
	"github.com/function61/gokit/dynversion"
	"github.com/function61/gokit/osutil"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     os.Args[0],
		Short:   "casfs: content-addressed, integrity-verified object storage on top of a blob store",
		Version: dynversion.Version,
	}

	for _, entrypoint := range cascli.Entrypoints() {
		rootCmd.AddCommand(entrypoint)
	}

	osutil.ExitIfError(rootCmd.Execute())
}
