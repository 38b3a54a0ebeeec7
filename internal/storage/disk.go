package storage

import (
	"io/fs"
	"os"
	"path/filepath"
)

// DiskUsage is the on-disk footprint of a set of paths.
type DiskUsage struct {
	TotalBytes int64            `json:"total_bytes"`
	Paths      map[string]int64 `json:"paths"`
}

// MeasureDiskUsage sums the size of each path. A path may be a file or a directory
// (recursively summed). Missing paths and empty strings contribute 0.
func MeasureDiskUsage(paths ...string) (*DiskUsage, error) {
	usage := &DiskUsage{Paths: make(map[string]int64)}
	for _, p := range paths {
		if p == "" {
			continue
		}
		n, err := pathSize(p)
		if err != nil {
			return nil, err
		}
		usage.Paths[p] = n
		usage.TotalBytes += n
	}
	return usage, nil
}

// DatabaseFiles returns the SQLite database file and its WAL companions.
func DatabaseFiles(dbPath string) []string {
	return []string{dbPath, dbPath + "-wal", dbPath + "-shm"}
}

func pathSize(p string) (int64, error) {
	info, err := os.Stat(p)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
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
