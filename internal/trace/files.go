package trace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// RunFile is one file of a run.
type RunFile struct {
	Path string
	Seq  int
	Size int64
}

// Run is the set of files that together hold one run's events.
type Run struct {
	// Prefix is the path up to and excluding the sequence number.
	Prefix string

	// Files are ordered by ascending Seq.
	Files []RunFile
}

// Size returns the total on-disk size of the run's files.
func (r Run) Size() int64 {
	var total int64
	for _, f := range r.Files {
		total += f.Size
	}
	return total
}

// Paths returns the file paths in read order.
func (r Run) Paths() []string {
	paths := make([]string, len(r.Files))
	for i, f := range r.Files {
		paths[i] = f.Path
	}
	return paths
}

// SplitName extracts the run prefix and sequence number from a trace file
// path of the form <prefix>.<sequence>.<ext>. The sequence is the last
// all-digit dot-separated component after the first; when there is none the
// sequence is 0 and the prefix is everything before the first dot.
func SplitName(path string) (prefix string, seq int) {
	dir, base := filepath.Split(path)
	parts := strings.Split(base, ".")
	for i := len(parts) - 1; i >= 1; i-- {
		if !isDigits(parts[i]) {
			continue
		}
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			continue
		}
		return dir + strings.Join(parts[:i], "."), n
	}
	return dir + parts[0], 0
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// GroupFiles partitions paths into runs by prefix. Runs are returned sorted
// by prefix, and each run's files by sequence number.
//
// Two files of one run with the same sequence number are rejected.
func GroupFiles(paths []string) ([]Run, error) {
	byPrefix := make(map[string]*Run)
	var prefixes []string

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat trace file: %w", err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("trace file %s is a directory", p)
		}

		prefix, seq := SplitName(p)
		run, ok := byPrefix[prefix]
		if !ok {
			run = &Run{Prefix: prefix}
			byPrefix[prefix] = run
			prefixes = append(prefixes, prefix)
		}
		run.Files = append(run.Files, RunFile{Path: p, Seq: seq, Size: info.Size()})
	}

	sort.Strings(prefixes)
	runs := make([]Run, 0, len(prefixes))
	for _, prefix := range prefixes {
		run := byPrefix[prefix]
		sort.SliceStable(run.Files, func(i, j int) bool {
			return run.Files[i].Seq < run.Files[j].Seq
		})
		for i := 1; i < len(run.Files); i++ {
			if run.Files[i].Seq == run.Files[i-1].Seq {
				return nil, fmt.Errorf("run %s has two files with sequence %d: %s and %s",
					prefix, run.Files[i].Seq, run.Files[i-1].Path, run.Files[i].Path)
			}
		}
		runs = append(runs, *run)
	}

	return runs, nil
}

// ScanDir groups every regular, non-hidden file of dir into runs.
func ScanDir(dir string) ([]Run, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read trace directory: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no trace files in %s", dir)
	}

	return GroupFiles(paths)
}
