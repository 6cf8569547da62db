package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charlievieth/fastwalk"
)

// ErrSourceMissing is returned when the literal base directory of a source
// glob does not exist.
var ErrSourceMissing = errors.New("source directory not found")

// Source is a discovered input file.
type Source struct {
	Path string // Filesystem path.
	Rel  string // Slash-separated path relative to the glob base.
	Size int64
}

// Discover walks baseDir and returns the regular files whose slash-separated
// path relative to baseDir matches pattern ("**" and "{a,b}" allowed), sorted
// by Rel. baseDir is a plain path and is never interpreted as a glob. Dot
// files and dot directories are never matched. Symlinks to files are
// followed; symlinked directories are not descended. A base directory that exists
// but holds no match yields an empty slice.
func Discover(ctx context.Context, baseDir, pattern string) ([]Source, error) {

	fi, err := os.Stat(baseDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrSourceMissing, baseDir)
	}
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrSourceMissing, baseDir)
	}

	var (
		mu      sync.Mutex
		sources []Source
	)
	conf := fastwalk.Config{Follow: false}
	err = fastwalk.Walk(&conf, baseDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path != baseDir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		info, ok, err := regularFile(path, d)
		if err != nil || !ok {
			return err
		}

		r, err := filepath.Rel(baseDir, path)
		if err != nil {
			return err
		}
		r = filepath.ToSlash(r)
		ok, err = doublestar.Match(pattern, r)
		if err != nil || !ok {
			return err
		}

		mu.Lock()
		sources = append(sources, Source{Path: path, Rel: r, Size: info.Size()})
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", baseDir, err)
	}

	sort.Slice(sources, func(i, j int) bool { return sources[i].Rel < sources[j].Rel })
	return sources, nil
}

// regularFile reports whether d is a regular file or a symlink resolving to
// one. Dangling links are ignored.
func regularFile(path string, d fs.DirEntry) (fs.FileInfo, bool, error) {
	switch {
	case d.Type().IsRegular():
		info, err := d.Info()
		return info, err == nil, err
	case d.Type()&fs.ModeSymlink != 0:
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		return info, info.Mode().IsRegular(), nil
	}
	return nil, false, nil
}
