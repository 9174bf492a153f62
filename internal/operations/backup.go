package operations

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kebairia/dirbak/internal/archive"
	"github.com/kebairia/dirbak/internal/config"
	"github.com/kebairia/dirbak/internal/exclusion"
	"github.com/kebairia/dirbak/internal/index"
	"github.com/kebairia/dirbak/internal/integrity"
)

// LevelDefault selects the configured compression level.
const LevelDefault = -1

// TimestampFormat is the stamp appended to archive names.
const TimestampFormat = "20060102_150405"

// BackupRequest describes one backup run. Zero values fall back to the
// configuration: an empty Source, an empty Format and a Level of
// LevelDefault.
type BackupRequest struct {
	Source          string
	NameHint        string
	Format          archive.Format
	Level           int
	MaxCompression  bool
	ExtraExclusions []string
	// Classifier overrides the Manager's classifier for this run.
	Classifier Classifier
}

// CreateBackup archives the source directory, hashes the archive and
// appends its record to the index. A failed run leaves neither an archive
// file nor a record behind.
func (m *Manager) CreateBackup(req BackupRequest) (index.Record, error) {
	source := req.Source
	if source == "" {
		source = m.cfg.Paths.Source
	}
	fail := func(name string, err error) (index.Record, error) {
		m.log.Error("Backup failed", "source", source, "archive", name, "error", err)
		return index.Record{}, &OpError{Op: "backup", Source: source, Archive: name, Err: err}
	}

	expanded, err := config.ExpandHome(source)
	if err != nil {
		return fail("", fmt.Errorf("%w: %v", archive.ErrSourceUnavailable, err))
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return fail("", fmt.Errorf("%w: %v", archive.ErrSourceUnavailable, err))
	}
	source = abs
	info, err := os.Stat(source)
	if err != nil {
		return fail("", fmt.Errorf("%w: %v", archive.ErrSourceUnavailable, err))
	}
	if !info.IsDir() {
		return fail("", fmt.Errorf("%w: %s is not a directory", archive.ErrSourceUnavailable, source))
	}
	if archive.IsFilesystemRoot(source) {
		return fail("", fmt.Errorf("%w: refusing to archive the filesystem root %s", archive.ErrSourceUnavailable, source))
	}

	format := req.Format
	if format == "" {
		format = m.cfg.Format()
	}
	if format, err = archive.ParseFormat(string(format)); err != nil {
		return fail("", err)
	}
	level := req.Level
	if level == LevelDefault {
		level = m.cfg.Compression.Level
	}
	if req.MaxCompression {
		level = archive.MaxLevel
	}

	dirName := filepath.Base(source)
	created := m.clock.Now()
	name, err := archiveName(req.NameHint, dirName, created.Format(TimestampFormat), format)
	if err != nil {
		return fail("", err)
	}
	path := m.ArchivePath(name)
	if m.produced[name] {
		return fail(name, fmt.Errorf("%w: %s already created in this run", ErrNameCollision, name))
	}
	if _, err := os.Lstat(path); err == nil {
		return fail(name, fmt.Errorf("%w: %s exists", ErrNameCollision, path))
	}
	m.produced[name] = true

	filter, err := exclusion.New(append(m.cfg.ExclusionLists(), req.ExtraExclusions)...)
	if err != nil {
		return fail(name, err)
	}
	if err := os.MkdirAll(m.cfg.Paths.Destination, 0o755); err != nil {
		return fail(name, fmt.Errorf("%w: create destination %q: %v", archive.ErrWriteFailed, m.cfg.Paths.Destination, err))
	}

	m.log.Info("Starting backup",
		"source", source,
		"archive", name,
		"format", string(format),
		"level", level,
		"patterns", filter.Len(),
	)
	stats, err := archive.Write(source, path, archive.Options{
		Format:   format,
		Level:    level,
		Filter:   filter,
		Progress: m.progress,
	})
	if err != nil {
		m.discard(path)
		return fail(name, err)
	}

	classify := req.Classifier
	if classify == nil {
		classify = m.classify
	}
	detected := classify(source)

	digest, err := integrity.DigestOf(path)
	if err != nil {
		m.discard(path)
		return fail(name, err)
	}
	archived, err := os.Stat(path)
	if err != nil {
		m.discard(path)
		return fail(name, fmt.Errorf("%w: stat %s: %v", archive.ErrWriteFailed, path, err))
	}

	rec := index.Record{
		ArchiveName:      name,
		SourcePath:       source,
		SourceDirName:    dirName,
		CreatedAt:        index.NewTimestamp(created),
		OriginalSize:     stats.OriginalSize,
		ArchiveSize:      archived.Size(),
		CompressionRatio: index.CompressionRatio(stats.OriginalSize, archived.Size()),
		FileCount:        stats.FileCount,
		ExcludedFiles:    stats.ExcludedFiles,
		ExcludedDirs:     stats.ExcludedDirs,
		DetectedType:     detected,
		Digest:           digest,
		MaxCompression:   req.MaxCompression,
		Format:           format,
	}
	if err := m.store.Append(rec); err != nil {
		m.discard(path)
		return fail(name, err)
	}

	m.log.Info("Backup completed",
		"archive", name,
		"files", rec.FileCount,
		"excluded_files", rec.ExcludedFiles,
		"excluded_dirs", rec.ExcludedDirs,
		"size_bytes", rec.ArchiveSize,
		"type", detected,
	)
	return rec, nil
}

// discard removes a partially produced archive.
func (m *Manager) discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.log.Warn("Failed to remove partial archive", "path", path, "error", err)
	}
}

func archiveName(hint, dirName, stamp string, format archive.Format) (string, error) {
	base := "backup_" + dirName
	if hint = strings.TrimSpace(hint); hint != "" {
		if strings.ContainsAny(hint, `/\`) || hint == "." || hint == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidName, hint)
		}
		base = hint
	}
	return base + "_" + stamp + format.Extension(), nil
}
