package operations

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kebairia/dirbak/internal/index"
)

// SelectRecord resolves a user's choice against records as listed. The
// choice is a 1-based position or an archive name; "c" cancels.
func SelectRecord(records []index.Record, choice string) (index.Record, error) {
	choice = strings.TrimSpace(choice)
	if strings.EqualFold(choice, "c") {
		return index.Record{}, ErrSelectionCancelled
	}
	if n, err := strconv.Atoi(choice); err == nil {
		if n < 1 || n > len(records) {
			return index.Record{}, fmt.Errorf("%w: %d is not between 1 and %d", ErrInvalidSelection, n, len(records))
		}
		return records[n-1], nil
	}
	for _, r := range records {
		if choice != "" && r.ArchiveName == choice {
			return r, nil
		}
	}
	return index.Record{}, fmt.Errorf("%w: %q", ErrInvalidSelection, choice)
}
