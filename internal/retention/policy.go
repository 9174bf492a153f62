// Package retention decides which archives are eligible for deletion and
// carries the deletions out.
package retention

import (
	"time"

	"github.com/kebairia/dirbak/internal/index"
)

// SelectForDeletion returns the archive names that break the retention
// limits, in index order. A record is selected when it is older than
// maxAgeDays or when it is among the oldest records of its source directory
// beyond the newest maxPerDirectory. A limit <= 0 disables its rule.
func SelectForDeletion(records []index.Record, maxPerDirectory, maxAgeDays int, now time.Time) []string {
	marked := make(map[string]bool)

	if maxAgeDays > 0 {
		cutoff := now.AddDate(0, 0, -maxAgeDays)
		for _, r := range records {
			if r.CreatedAt.Before(cutoff) {
				marked[r.ArchiveName] = true
			}
		}
	}

	if maxPerDirectory > 0 {
		for _, group := range index.GroupBySourceDirName(records) {
			excess := len(group) - maxPerDirectory
			for i := 0; i < excess; i++ {
				marked[group[i].ArchiveName] = true
			}
		}
	}

	return inIndexOrder(records, marked)
}

// SelectBySize returns the oldest archive names whose removal brings the
// summed archive size down to maxTotalBytes, in index order. maxTotalBytes
// <= 0 disables the rule.
func SelectBySize(records []index.Record, maxTotalBytes int64) []string {
	if maxTotalBytes <= 0 {
		return nil
	}
	total := index.TotalArchiveSize(records)
	marked := make(map[string]bool)
	for _, r := range index.SortedByDate(records, false) {
		if total <= maxTotalBytes {
			break
		}
		marked[r.ArchiveName] = true
		total -= r.ArchiveSize
	}
	return inIndexOrder(records, marked)
}

func inIndexOrder(records []index.Record, marked map[string]bool) []string {
	if len(marked) == 0 {
		return nil
	}
	out := make([]string, 0, len(marked))
	for _, r := range records {
		if marked[r.ArchiveName] {
			out = append(out, r.ArchiveName)
			delete(marked, r.ArchiveName)
		}
	}
	return out
}
