package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

// IsTerminal reports whether v is a file attached to a terminal. Plain
// readers and writers such as *bytes.Buffer are not.
func IsTerminal(v any) bool {
	type fder interface {
		Fd() uintptr
	}
	if f, ok := v.(fder); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// Progress reports a running file count while an archive is written. The
// total is unknown up front, so there is no bar. On a terminal the line is
// redrawn in place; elsewhere only the final count is printed.
type Progress struct {
	w     io.Writer
	label string
	tty   bool
	files int
	width int
}

// NewProgress creates a Progress writing to w.
func NewProgress(w io.Writer, label string) *Progress {
	return &Progress{w: w, label: label, tty: IsTerminal(w), width: 60}
}

// Update matches archive.ProgressFunc.
func (p *Progress) Update(files int, name string) {
	p.files = files
	if !p.tty {
		return
	}
	line := fmt.Sprintf("%s %d files  %s", p.label, files, name)
	if text.RuneWidthWithoutEscSequences(line) > p.width {
		line = text.Trim(line, p.width-3) + "..."
	}
	fmt.Fprintf(p.w, "\r%-*s", p.width, line)
}

// Finish ends the progress line.
func (p *Progress) Finish() {
	if p.tty {
		fmt.Fprintf(p.w, "\r%s\r", strings.Repeat(" ", p.width))
	}
	fmt.Fprintf(p.w, "%s %d files\n", p.label, p.files)
}
