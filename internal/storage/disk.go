package storage

import (
	"errors"
	"io/fs"
	"os"
)

// sqliteSidecars are the files SQLite keeps next to a database in WAL mode.
var sqliteSidecars = []string{"", "-wal", "-shm"}

// DatabaseBytes returns the on-disk size of the SQLite database at dbPath,
// including its WAL and shared-memory files. Sidecars that do not exist (the
// WAL is removed on a clean close) count as zero; a missing database is 0.
func DatabaseBytes(dbPath string) (int64, error) {
	if dbPath == "" {
		return 0, nil
	}
	var total int64
	for _, suffix := range sqliteSidecars {
		info, err := os.Stat(dbPath + suffix)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			continue
		case err != nil:
			return 0, err
		case info.IsDir():
			return 0, &fs.PathError{Op: "size", Path: dbPath + suffix, Err: errors.New("is a directory")}
		}
		total += info.Size()
	}
	return total, nil
}
