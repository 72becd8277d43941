package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Usage is the on-disk size of one path.
type Usage struct {
	Path  string `json:"path"`
	Bytes int64  `json:"bytes"`
}

// DiskUsage returns the size of each non-empty path and their total. A path may be a
// file or a directory (summed recursively). Missing paths report zero bytes.
func DiskUsage(paths ...string) ([]Usage, int64, error) {
	var out []Usage
	var total int64
	for _, p := range paths {
		if p == "" {
			continue
		}
		n, err := pathSize(p)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, Usage{Path: p, Bytes: n})
		total += n
	}
	return out, total, nil
}

func pathSize(p string) (int64, error) {
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return info.Size(), nil
	}
	var total int64
	err = filepath.WalkDir(p, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		total += fi.Size()
		return nil
	})
	return total, err
}
