package index

import (
	"sort"
	"strings"
	"time"
)

// GroupBySourceDirName groups records by source directory name. Each group
// is ordered by creation time, oldest first; records created at the same
// instant keep their index order.
func GroupBySourceDirName(records []Record) map[string][]Record {
	groups := make(map[string][]Record)
	for _, r := range records {
		groups[r.SourceDirName] = append(groups[r.SourceDirName], r)
	}
	for _, g := range groups {
		sort.SliceStable(g, func(i, j int) bool {
			return g[i].CreatedAt.Before(g[j].CreatedAt.Time)
		})
	}
	return groups
}

// ByDirectory returns the records whose source directory name equals name,
// in index order.
func ByDirectory(records []Record, name string) []Record {
	var out []Record
	for _, r := range records {
		if r.SourceDirName == name {
			out = append(out, r)
		}
	}
	return out
}

// SortedByDate returns a copy of records ordered by creation time.
func SortedByDate(records []Record, newestFirst bool) []Record {
	out := make([]Record, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		if newestFirst {
			return out[i].CreatedAt.After(out[j].CreatedAt.Time)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt.Time)
	})
	return out
}

// FindByDigest returns the records whose digest matches, ignoring case.
func FindByDigest(records []Record, digest string) []Record {
	var out []Record
	for _, r := range records {
		if strings.EqualFold(r.Digest, digest) {
			out = append(out, r)
		}
	}
	return out
}

// TotalArchiveSize sums the archive sizes of records.
func TotalArchiveSize(records []Record) int64 {
	var total int64
	for _, r := range records {
		total += r.ArchiveSize
	}
	return total
}

// Summary holds aggregate statistics over an index.
type Summary struct {
	Count        int
	Directories  int
	OriginalSize int64
	ArchiveSize  int64
	AverageRatio float64
	Oldest       time.Time
	Newest       time.Time
}

// Summarize computes the statistics shown under the archive listing.
func Summarize(records []Record) Summary {
	s := Summary{Count: len(records)}
	if len(records) == 0 {
		return s
	}
	dirs := make(map[string]struct{})
	var ratios float64
	for i, r := range records {
		dirs[r.SourceDirName] = struct{}{}
		s.OriginalSize += r.OriginalSize
		s.ArchiveSize += r.ArchiveSize
		ratios += r.CompressionRatio
		if i == 0 || r.CreatedAt.Before(s.Oldest) {
			s.Oldest = r.CreatedAt.Time
		}
		if i == 0 || r.CreatedAt.After(s.Newest) {
			s.Newest = r.CreatedAt.Time
		}
	}
	s.Directories = len(dirs)
	s.AverageRatio = ratios / float64(len(records))
	return s
}
