package operations

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNameCollision is returned when the derived archive name was already
	// produced by this Manager or a file with that name exists.
	ErrNameCollision = errors.New("archive name collision")
	// ErrInvalidName is returned for a name hint that is not a plain file
	// name.
	ErrInvalidName = errors.New("invalid archive name")
	// ErrArchiveMissing is returned when a record exists but its archive
	// file does not.
	ErrArchiveMissing = errors.New("archive file missing")
	// ErrIntegrityMismatch is returned when an archive's digest differs from
	// the recorded one.
	ErrIntegrityMismatch = errors.New("integrity mismatch")
	// ErrSelectionCancelled is returned when the user cancels a selection.
	ErrSelectionCancelled = errors.New("selection cancelled")
	// ErrInvalidSelection is returned for a choice that names no record.
	ErrInvalidSelection = errors.New("invalid selection")
)

// OpError records which operation failed on which archive or source.
type OpError struct {
	Op      string
	Archive string
	Source  string
	Err     error
}

func (e *OpError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Source != "" {
		fmt.Fprintf(&b, " %s", e.Source)
	}
	if e.Archive != "" {
		fmt.Fprintf(&b, " [%s]", e.Archive)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *OpError) Unwrap() error { return e.Err }
