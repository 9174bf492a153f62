// Package output renders index records, statistics and progress for the
// terminal.
package output

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/kebairia/dirbak/internal/index"
)

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

// RenderRecords prints records grouped by source directory, directories in
// name order and each group newest first.
func RenderRecords(w io.Writer, records []index.Record, now time.Time) {
	groups := index.GroupBySourceDirName(records)
	dirs := make([]string, 0, len(groups))
	for d := range groups {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)

	t := newTable(w)
	t.AppendHeader(table.Row{"Directory", "Archive", "Created", "Type", "Files", "Original", "Archive Size", "Ratio"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Files", Align: text.AlignRight},
		{Name: "Original", Align: text.AlignRight},
		{Name: "Archive Size", Align: text.AlignRight},
		{Name: "Ratio", Align: text.AlignRight},
	})
	for i, d := range dirs {
		if i > 0 {
			t.AppendSeparator()
		}
		group := groups[d]
		for j := len(group) - 1; j >= 0; j-- {
			r := group[j]
			suffix := ""
			if r.MaxCompression {
				suffix = " (max)"
			}
			t.AppendRow(table.Row{
				d,
				r.ArchiveName,
				fmt.Sprintf("%s (%s)", FormatTime(r.CreatedAt.Time), FormatAge(r.CreatedAt.Time, now)),
				r.DetectedType,
				r.FileCount,
				FormatSize(r.OriginalSize),
				FormatSize(r.ArchiveSize) + suffix,
				FormatRatio(r.CompressionRatio),
			})
		}
	}
	t.Render()
}

// RenderSummary prints index statistics.
func RenderSummary(w io.Writer, s index.Summary) {
	t := newTable(w)
	t.AppendRow(table.Row{"Archives", s.Count})
	t.AppendRow(table.Row{"Directories", s.Directories})
	t.AppendRow(table.Row{"Original size", FormatSize(s.OriginalSize)})
	t.AppendRow(table.Row{"Archive size", FormatSize(s.ArchiveSize)})
	t.AppendRow(table.Row{"Average ratio", FormatRatio(s.AverageRatio)})
	if s.Count > 0 {
		t.AppendRow(table.Row{"Oldest", FormatTime(s.Oldest)})
		t.AppendRow(table.Row{"Newest", FormatTime(s.Newest)})
	}
	t.Render()
}

// RenderChoices prints records as a numbered list for interactive
// selection. Numbers are 1-based in the order given.
func RenderChoices(w io.Writer, records []index.Record) {
	t := newTable(w)
	t.AppendHeader(table.Row{"#", "Archive", "Directory", "Created", "Size"})
	for i, r := range records {
		t.AppendRow(table.Row{i + 1, r.ArchiveName, r.SourceDirName, FormatTime(r.CreatedAt.Time), FormatSize(r.ArchiveSize)})
	}
	t.Render()
}

// RenderRecord prints the details of a single record.
func RenderRecord(w io.Writer, r index.Record) {
	t := newTable(w)
	t.AppendRow(table.Row{"Archive", r.ArchiveName})
	t.AppendRow(table.Row{"Source", r.SourcePath})
	t.AppendRow(table.Row{"Type", r.DetectedType})
	t.AppendRow(table.Row{"Format", string(r.Format)})
	t.AppendRow(table.Row{"Files", r.FileCount})
	t.AppendRow(table.Row{"Excluded", fmt.Sprintf("%d files, %d directories", r.ExcludedFiles, r.ExcludedDirs)})
	t.AppendRow(table.Row{"Original size", FormatSize(r.OriginalSize)})
	t.AppendRow(table.Row{"Archive size", FormatSize(r.ArchiveSize)})
	t.AppendRow(table.Row{"Ratio", FormatRatio(r.CompressionRatio)})
	t.AppendRow(table.Row{"MD5", r.Digest})
	t.Render()
}
