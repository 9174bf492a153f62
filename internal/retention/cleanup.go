package retention

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/multierr"

	"github.com/kebairia/dirbak/internal/index"
	"github.com/kebairia/dirbak/internal/logger"
)

// ErrDeleteFailed marks a single record whose archive could not be removed.
var ErrDeleteFailed = errors.New("delete failed")

// Report summarises one cleanup run.
type Report struct {
	Removed    []string
	Failed     []string
	FreedBytes int64
}

// Cleaner removes archives and their records.
type Cleaner struct {
	Store      index.Store
	ArchiveDir string
	Logger     logger.Logger
}

func (c *Cleaner) log() logger.Logger {
	if c.Logger == nil {
		return logger.Nop()
	}
	return c.Logger
}

// Execute deletes each named archive and then its record. A record is only
// dropped once its file is gone. Failures are collected and the remaining
// names are still processed; the returned error combines them.
func (c *Cleaner) Execute(names []string) (Report, error) {
	var report Report
	if len(names) == 0 {
		return report, nil
	}
	records, err := c.Store.All()
	if err != nil {
		return report, fmt.Errorf("load index: %w", err)
	}
	sizes := make(map[string]int64, len(records))
	for _, r := range records {
		sizes[r.ArchiveName] = r.ArchiveSize
	}

	var errs error
	for _, name := range names {
		path := filepath.Join(c.ArchiveDir, name)
		existed := true
		if err := os.Remove(path); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				err = fmt.Errorf("%w: %s: %v", ErrDeleteFailed, name, err)
				c.log().Error("Failed to delete archive", "archive", name, "error", err)
				report.Failed = append(report.Failed, name)
				errs = multierr.Append(errs, err)
				continue
			}
			existed = false
			c.log().Warn("Archive already absent", "archive", name)
		}
		if err := c.Store.Remove(name); err != nil {
			err = fmt.Errorf("%w: %s: remove record: %v", ErrDeleteFailed, name, err)
			c.log().Error("Failed to remove record", "archive", name, "error", err)
			report.Failed = append(report.Failed, name)
			errs = multierr.Append(errs, err)
			continue
		}
		if existed {
			report.FreedBytes += sizes[name]
		}
		report.Removed = append(report.Removed, name)
		c.log().Info("Removed archive", "archive", name)
	}
	return report, errs
}

// IsArchiveName reports whether name has an archive extension.
func IsArchiveName(name string) bool {
	return strings.HasSuffix(name, ".tar.gz") || strings.HasSuffix(name, ".zip")
}

// Orphans lists archive files in the archive directory that no record names.
func (c *Cleaner) Orphans() ([]string, error) {
	records, err := c.Store.All()
	if err != nil {
		return nil, fmt.Errorf("load index: %w", err)
	}
	known := make(map[string]bool, len(records))
	for _, r := range records {
		known[r.ArchiveName] = true
	}
	entries, err := os.ReadDir(c.ArchiveDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read archive directory %q: %w", c.ArchiveDir, err)
	}
	var orphans []string
	for _, e := range entries {
		if e.Type().IsRegular() && IsArchiveName(e.Name()) && !known[e.Name()] {
			orphans = append(orphans, e.Name())
		}
	}
	return orphans, nil
}

// RemoveOrphans deletes every orphaned archive file and returns the names it
// removed.
func (c *Cleaner) RemoveOrphans() ([]string, error) {
	orphans, err := c.Orphans()
	if err != nil {
		return nil, err
	}
	var removed []string
	var errs error
	for _, name := range orphans {
		if err := os.Remove(filepath.Join(c.ArchiveDir, name)); err != nil {
			err = fmt.Errorf("%w: %s: %v", ErrDeleteFailed, name, err)
			c.log().Error("Failed to delete orphan", "archive", name, "error", err)
			errs = multierr.Append(errs, err)
			continue
		}
		c.log().Info("Removed orphaned archive", "archive", name)
		removed = append(removed, name)
	}
	return removed, errs
}
