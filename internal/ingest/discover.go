package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const defaultMaxFileSizeBytes int64 = 10 * 1024 * 1024

var supportedExtensions = map[string]struct{}{
	".txt":      {},
	".md":       {},
	".markdown": {},
}

var excludedDirs = map[string]struct{}{
	"node_modules": {},
	"vendor":       {},
	"__pycache__":  {},
}

// DiscoveredFile holds metadata collected during file system discovery.
type DiscoveredFile struct {
	AbsPath   string
	RelPath   string
	SizeBytes int64
	MTimeUnix int64
}

// IsSupported reports whether relPath has an extension the ingester reads.
func IsSupported(relPath string) bool {
	_, ok := supportedExtensions[strings.ToLower(filepath.Ext(relPath))]
	return ok
}

// DiscoverFiles walks root and returns supported regular files sorted by
// relative path. Hidden entries, symlinks, excluded globs and files over
// maxSize are skipped.
func DiscoverFiles(ctx context.Context, root string, maxSize int64, exclude []string) ([]DiscoveredFile, error) {
	if maxSize <= 0 {
		maxSize = defaultMaxFileSizeBytes
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", absRoot)
	}

	files := make([]DiscoveredFile, 0, 64)
	err = filepath.WalkDir(absRoot, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == absRoot {
			return nil
		}
		rel, err := filepath.Rel(absRoot, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		name := d.Name()

		if d.IsDir() {
			if strings.HasPrefix(name, ".") || isExcludedDir(name) || matchesAnyExclude(rel+"/", exclude) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !d.Type().IsRegular() || !IsSupported(name) {
			return nil
		}
		if matchesAnyExclude(rel, exclude) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		if fi.Size() > maxSize {
			return nil
		}
		files = append(files, DiscoveredFile{
			AbsPath:   p,
			RelPath:   rel,
			SizeBytes: fi.Size(),
			MTimeUnix: fi.ModTime().Unix(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })
	return files, nil
}

func isExcludedDir(name string) bool {
	_, ok := excludedDirs[name]
	return ok
}
