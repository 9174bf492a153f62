package operations

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/kebairia/dirbak/internal/archive"
	"github.com/kebairia/dirbak/internal/index"
	"github.com/kebairia/dirbak/internal/integrity"
)

// RestoreRequest describes one restore run.
type RestoreRequest struct {
	ArchiveName string
	// Destination receives the archive's top-level directory. Empty means
	// the working directory.
	Destination string
	// Verify re-hashes the archive first and refuses to extract on a
	// mismatch.
	Verify bool
}

// Restore extracts a recorded archive and returns the number of files
// written.
func (m *Manager) Restore(req RestoreRequest) (int, error) {
	fail := func(err error) (int, error) {
		m.log.Error("Restore failed", "archive", req.ArchiveName, "error", err)
		return 0, &OpError{Op: "restore", Archive: req.ArchiveName, Err: err}
	}

	rec, err := m.store.Find(req.ArchiveName)
	if err != nil {
		return fail(err)
	}
	path, err := m.archiveFile(rec)
	if err != nil {
		return fail(err)
	}
	if req.Verify {
		if err := m.verify(path, rec); err != nil {
			return fail(err)
		}
		m.log.Debug("Integrity verified", "archive", rec.ArchiveName)
	}

	format := rec.Format
	if format == "" {
		if format, err = archive.FormatFromName(rec.ArchiveName); err != nil {
			return fail(err)
		}
	}
	dest := req.Destination
	if dest == "" {
		dest = "."
	}

	m.log.Info("Starting restore", "archive", rec.ArchiveName, "destination", dest)
	n, err := archive.Extract(path, dest, format)
	if err != nil {
		return fail(err)
	}
	m.log.Info("Restore completed", "archive", rec.ArchiveName, "files", n, "destination", dest)
	return n, nil
}

// VerifyResult is the outcome of re-hashing one archive.
type VerifyResult struct {
	Record index.Record
	Actual string
	OK     bool
}

// VerifyArchive re-hashes the named archive and compares it with the
// recorded digest. A mismatch is reported in the result, not as an error.
func (m *Manager) VerifyArchive(name string) (VerifyResult, error) {
	rec, err := m.store.Find(name)
	if err != nil {
		return VerifyResult{}, &OpError{Op: "verify", Archive: name, Err: err}
	}
	path, err := m.archiveFile(rec)
	if err != nil {
		return VerifyResult{Record: rec}, &OpError{Op: "verify", Archive: name, Err: err}
	}
	actual, err := integrity.DigestOf(path)
	if err != nil {
		return VerifyResult{Record: rec}, &OpError{Op: "verify", Archive: name, Err: err}
	}
	res := VerifyResult{Record: rec, Actual: actual, OK: strings.EqualFold(actual, rec.Digest)}
	if !res.OK {
		m.log.Warn("Integrity mismatch", "archive", name, "expected", rec.Digest, "actual", actual)
	}
	return res, nil
}

func (m *Manager) archiveFile(rec index.Record) (string, error) {
	path := m.ArchivePath(rec.ArchiveName)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrArchiveMissing, path)
		}
		return "", fmt.Errorf("%w: %v", integrity.ErrFileUnreadable, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a regular file", ErrArchiveMissing, path)
	}
	return path, nil
}

func (m *Manager) verify(path string, rec index.Record) error {
	ok, err := integrity.Verify(path, rec.Digest, integrity.MD5)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s does not match recorded digest %s", ErrIntegrityMismatch, rec.ArchiveName, rec.Digest)
	}
	return nil
}
