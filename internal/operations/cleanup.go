package operations

import (
	"go.uber.org/multierr"

	"github.com/kebairia/dirbak/internal/index"
	"github.com/kebairia/dirbak/internal/retention"
)

// CleanupRequest selects the rules applied by Cleanup.
type CleanupRequest struct {
	// BySize also enforces retention.max_total_size_gb.
	BySize bool
	// Orphans also deletes archive files without a record.
	Orphans bool
	// DryRun only reports what would be removed.
	DryRun bool
}

// CleanupResult lists what a cleanup selected and removed.
type CleanupResult struct {
	Selected []string
	Orphans  []string
	Report   retention.Report
}

// Empty reports whether there was nothing to clean.
func (r CleanupResult) Empty() bool {
	return len(r.Selected) == 0 && len(r.Orphans) == 0
}

// Cleanup applies the configured retention limits. Per-archive failures
// do not stop the run; they are combined into the returned error.
func (m *Manager) Cleanup(req CleanupRequest) (CleanupResult, error) {
	var res CleanupResult
	records, err := m.store.All()
	if err != nil {
		return res, &OpError{Op: "cleanup", Err: err}
	}

	limits := m.cfg.Retention
	res.Selected = retention.SelectForDeletion(records, limits.MaxBackupsPerDirectory, limits.DaysToKeep, m.clock.Now())
	if req.BySize {
		res.Selected = mergeSelection(records, res.Selected, m.cfg.MaxTotalBytes())
	}

	cleaner := &retention.Cleaner{Store: m.store, ArchiveDir: m.cfg.Paths.Destination, Logger: m.log}
	if req.DryRun {
		if req.Orphans {
			if res.Orphans, err = cleaner.Orphans(); err != nil {
				return res, &OpError{Op: "cleanup", Err: err}
			}
		}
		return res, nil
	}

	m.log.Info("Starting cleanup", "selected", len(res.Selected))
	var errs error
	res.Report, err = cleaner.Execute(res.Selected)
	errs = multierr.Append(errs, err)
	if req.Orphans {
		res.Orphans, err = cleaner.RemoveOrphans()
		errs = multierr.Append(errs, err)
	}
	if errs != nil {
		return res, &OpError{Op: "cleanup", Err: errs}
	}
	return res, nil
}

// mergeSelection adds the size rule, applied to the records left after the
// age and count rules, to selected.
func mergeSelection(records []index.Record, selected []string, maxTotal int64) []string {
	chosen := make(map[string]bool, len(selected))
	for _, n := range selected {
		chosen[n] = true
	}
	var remaining []index.Record
	for _, r := range records {
		if !chosen[r.ArchiveName] {
			remaining = append(remaining, r)
		}
	}
	for _, n := range retention.SelectBySize(remaining, maxTotal) {
		chosen[n] = true
	}
	var out []string
	for _, r := range records {
		if chosen[r.ArchiveName] {
			out = append(out, r.ArchiveName)
		}
	}
	return out
}
