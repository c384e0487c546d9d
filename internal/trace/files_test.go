package trace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitName(t *testing.T) {
	cases := []struct {
		path   string
		prefix string
		seq    int
	}{
		{"run0.3.jsonl", "run0", 3},
		{"run0.12.jsonl.zst", "run0", 12},
		{"dir/a.b.7.jsonl", "dir/a.b", 7},
		{"run0.jsonl", "run0", 0},
		{"trace", "trace", 0},
		{"42.1.jsonl", "42", 1},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			prefix, seq := SplitName(tc.path)
			assert.Equal(t, tc.prefix, prefix)
			assert.Equal(t, tc.seq, seq)
		})
	}
}

func touch(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestGroupFiles_OrdersBySequence(t *testing.T) {
	dir := t.TempDir()
	b10 := touch(t, dir, "b.10.jsonl", "xx")
	a2 := touch(t, dir, "a.2.jsonl", "x")
	b9 := touch(t, dir, "b.9.jsonl", "x")
	a0 := touch(t, dir, "a.0.jsonl", "xyz")

	runs, err := GroupFiles([]string{b10, a2, b9, a0})
	require.NoError(t, err)
	require.Len(t, runs, 2)

	assert.Equal(t, filepath.Join(dir, "a"), runs[0].Prefix)
	assert.Equal(t, []string{a0, a2}, runs[0].Paths())
	assert.Equal(t, int64(4), runs[0].Size())

	assert.Equal(t, []string{b9, b10}, runs[1].Paths(), "numeric, not lexical, order")
}

func TestGroupFiles_DuplicateSequence(t *testing.T) {
	dir := t.TempDir()
	p1 := touch(t, dir, "a.1.jsonl", "")
	p2 := touch(t, dir, "a.1.jsonl.zst", "")

	_, err := GroupFiles([]string{p1, p2})
	assert.Error(t, err)
}

func TestGroupFiles_Missing(t *testing.T) {
	_, err := GroupFiles([]string{filepath.Join(t.TempDir(), "nope.0.jsonl")})
	assert.Error(t, err)
}

func TestScanDir(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "r1.0.jsonl", "")
	touch(t, dir, "r2.0.jsonl", "")
	touch(t, dir, ".hidden", "")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	runs, err := ScanDir(dir)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	_, err = ScanDir(t.TempDir())
	assert.Error(t, err, "empty directory")
}
