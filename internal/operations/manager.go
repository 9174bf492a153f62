// Package operations drives backup, restore, verification and cleanup
// runs on top of the archive, index and retention packages.
package operations

import (
	"path/filepath"

	"github.com/juju/clock"

	"github.com/kebairia/dirbak/internal/archive"
	"github.com/kebairia/dirbak/internal/config"
	"github.com/kebairia/dirbak/internal/detect"
	"github.com/kebairia/dirbak/internal/index"
	"github.com/kebairia/dirbak/internal/logger"
)

// Classifier tags a source directory with a project type.
type Classifier func(path string) string

// Manager runs operations against one archive directory and its index.
// It is not safe for concurrent use.
type Manager struct {
	cfg      config.Config
	store    index.Store
	log      logger.Logger
	classify Classifier
	clock    clock.Clock
	progress archive.ProgressFunc
	// produced holds every archive name claimed by this Manager.
	produced map[string]bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithClassifier replaces the marker-file classifier.
func WithClassifier(c Classifier) Option {
	return func(m *Manager) {
		m.classify = c
	}
}

// WithClock replaces the wall clock, which stamps archive names and
// records and anchors the retention age limit.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) {
		m.clock = c
	}
}

// WithProgress reports every file added while archiving.
func WithProgress(fn archive.ProgressFunc) Option {
	return func(m *Manager) {
		m.progress = fn
	}
}

// NewManager builds a Manager. A nil log discards output.
func NewManager(cfg config.Config, store index.Store, log logger.Logger, opts ...Option) *Manager {
	if log == nil {
		log = logger.Nop()
	}
	m := &Manager{
		cfg:      cfg,
		store:    store,
		log:      log,
		classify: detect.Classify,
		clock:    clock.WallClock,
		produced: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ArchivePath returns the location of the named archive.
func (m *Manager) ArchivePath(name string) string {
	return filepath.Join(m.cfg.Paths.Destination, name)
}

// Records returns every record in index order.
func (m *Manager) Records() ([]index.Record, error) {
	records, err := m.store.All()
	if err != nil {
		return nil, &OpError{Op: "list", Err: err}
	}
	return records, nil
}
