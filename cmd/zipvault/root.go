package main

import (
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var version = "dev"

var (
	verbose    bool
	workers    int
	strict     bool
	prefixFile string
)

var logger *slog.Logger

func buildRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "zipvault",
		Version: version,
		Short:   "Inspect and extract ZIP archives without writing them",
		Long: `zipvault reads ZIP archives (including Zip64 and self-extracting ones)
without ever writing one.

Commands:
  list     Print the archive's directory tree
  extract  Decompress every file into a destination directory

Examples:
  zipvault list archive.zip
  zipvault list --glob '**/*.go' archive.zip
  zipvault extract archive.zip ./out
  zipvault extract --workers 8 archive.zip ./out
  zipvault list --prefix-file stub.bin body.zip`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
	cmd.PersistentFlags().IntVar(&workers, "workers", runtime.NumCPU(), "Number of parallel decompression workers")
	cmd.PersistentFlags().BoolVar(&strict, "strict", true, "Cross-check each entry's local file header before reading it")
	cmd.PersistentFlags().StringVar(&prefixFile, "prefix-file", "",
		"Prepend this file's bytes before the archive file, for a self-extracting stub stored separately from its ZIP body")

	return cmd
}
