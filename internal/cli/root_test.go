package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "reprotrace", cmd.Use)
	assert.Contains(t, cmd.Long, "significant bits")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()

	for _, cmdName := range []string{"merge", "callgraph", "show"} {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestMergeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	mergeCmd, _, err := cmd.Find([]string{"merge"})
	require.NoError(t, err)

	assert.Equal(t, "32", mergeCmd.Flags().Lookup("batch-size").DefValue)
	assert.Equal(t, "cnh", mergeCmd.Flags().Lookup("method").DefValue)
	assert.Equal(t, "false", mergeCmd.Flags().Lookup("online").DefValue)
	for _, name := range []string{"file", "dir", "db", "callgraphs"} {
		assert.NotNil(t, mergeCmd.Flags().Lookup(name), name)
	}
}

func TestShowCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	showCmd, _, err := cmd.Find([]string{"show"})
	require.NoError(t, err)

	dbFlag := showCmd.Flags().Lookup("db")
	require.NotNil(t, dbFlag)
	assert.Equal(t, "", dbFlag.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--format", "xml", "show", "--db", "x.db"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, ExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestPrepare_BadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("merge: {method: nope}\n"), 0o644))

	opts := &RootOptions{Format: "text", ConfigPath: path}
	err := opts.prepare(&cobra.Command{})
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, ExitCode(err))
}

func TestPrepare_Defaults(t *testing.T) {
	opts := &RootOptions{}
	cmd := &cobra.Command{}
	cmd.SetErr(&bytes.Buffer{})
	require.NoError(t, opts.prepare(cmd))
	assert.Equal(t, "text", opts.Format)
	assert.Equal(t, 32, opts.Config.Merge.BatchSize)
	require.NotNil(t, opts.Logger)
}
