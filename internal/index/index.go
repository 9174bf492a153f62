package index

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// Filename is the index file kept in the archive destination directory.
const Filename = "indice_backups.json"

var (
	// ErrCorrupted is returned when the index file exists but cannot be
	// parsed. The file is left untouched.
	ErrCorrupted = errors.New("index corrupted")
	// ErrWriteFailed is returned when the index cannot be persisted.
	ErrWriteFailed = errors.New("index write failed")
	// ErrRecordNotFound is returned by Find for an unknown archive name.
	ErrRecordNotFound = errors.New("record not found")
)

//go:generate mockgen -source=index.go -destination=mocks/mock_store.go -package=mocks

// Store is the persistence contract the orchestrators depend on.
type Store interface {
	Append(rec Record) error
	All() ([]Record, error)
	Remove(name string) error
	Find(name string) (Record, error)
}

// Index is a Store backed by a single JSON file. Every mutation rewrites
// the whole file through a temporary file and a rename, so the file at rest
// is always a complete snapshot.
type Index struct {
	path string
}

var _ Store = (*Index)(nil)

// Open returns an Index for the file at path. The file is created lazily on
// the first Append.
func Open(path string) *Index {
	return &Index{path: path}
}

// InDir returns the Index kept in the archive directory dir.
func InDir(dir string) *Index {
	return Open(filepath.Join(dir, Filename))
}

// Path returns the index file location.
func (x *Index) Path() string {
	return x.path
}

// All returns every record in insertion order. A missing or blank file is
// an empty index.
func (x *Index) All() ([]Record, error) {
	data, err := os.ReadFile(x.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			return []Record{}, nil
		}
		return nil, fmt.Errorf("%w: read %s: %v", ErrCorrupted, x.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []Record{}, nil
	}
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupted, x.path, err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// Append adds rec at the end of the index.
func (x *Index) Append(rec Record) error {
	records, err := x.All()
	if err != nil {
		return err
	}
	return x.write(append(records, rec))
}

// Remove drops the record named name. Removing an absent name is a no-op.
func (x *Index) Remove(name string) error {
	records, err := x.All()
	if err != nil {
		return err
	}
	kept := records[:0]
	for _, r := range records {
		if r.ArchiveName != name {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(records) {
		return nil
	}
	return x.write(kept)
}

// Find returns the record named name.
func (x *Index) Find(name string) (Record, error) {
	records, err := x.All()
	if err != nil {
		return Record{}, err
	}
	for _, r := range records {
		if r.ArchiveName == name {
			return r, nil
		}
	}
	return Record{}, fmt.Errorf("%w: %s", ErrRecordNotFound, name)
}

func (x *Index) write(records []Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrWriteFailed, err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(x.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: ensure directory %q: %v", ErrWriteFailed, dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(x.path)+".*")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %v", ErrWriteFailed, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write %s: %v", ErrWriteFailed, tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: sync %s: %v", ErrWriteFailed, tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close %s: %v", ErrWriteFailed, tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: chmod %s: %v", ErrWriteFailed, tmpName, err)
	}
	if err := os.Rename(tmpName, x.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: replace %s: %v", ErrWriteFailed, x.path, err)
	}
	return nil
}
