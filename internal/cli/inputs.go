package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/reprotrace/internal/trace"
)

var (
	errNoInput       = errors.New("select trace files with --file or a directory with --dir")
	errInputConflict = errors.New("--file and --dir are mutually exclusive")
)

// selectInput picks the trace files from flags, falling back to the
// configuration file only when neither flag was given.
func selectInput(cmd *cobra.Command, opts *RootOptions, files []string, dir string) ([]string, string) {
	if cmd.Flags().Changed("file") || cmd.Flags().Changed("dir") {
		return files, dir
	}
	return opts.Config.Input.Files, opts.Config.Input.Directory
}

// resolveRuns groups the selected trace files into runs.
func resolveRuns(files []string, dir string) ([]trace.Run, error) {
	switch {
	case len(files) > 0 && dir != "":
		return nil, errInputConflict
	case dir != "":
		return trace.ScanDir(dir)
	case len(files) > 0:
		return trace.GroupFiles(files)
	}
	return nil, errNoInput
}

// commandContext returns the command's context, canceled on SIGINT or
// SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
