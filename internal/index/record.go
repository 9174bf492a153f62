// Package index keeps the durable list of archives that exist. The index
// file is the only authority: archives it does not name are invisible to
// listing, restore and retention.
package index

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kebairia/dirbak/internal/archive"
)

// Record describes one successful backup. Records are never modified after
// they are appended.
type Record struct {
	ArchiveName      string         `json:"arquivo"`
	SourcePath       string         `json:"diretorio_origem"`
	SourceDirName    string         `json:"nome_diretorio"`
	CreatedAt        Timestamp      `json:"data_criacao"`
	OriginalSize     int64          `json:"tamanho_original"`
	ArchiveSize      int64          `json:"tamanho_backup"`
	CompressionRatio float64        `json:"taxa_compressao"`
	FileCount        int            `json:"total_arquivos"`
	ExcludedFiles    int            `json:"arquivos_excluidos"`
	ExcludedDirs     int            `json:"diretorios_excluidos"`
	DetectedType     string         `json:"tipo_diretorio"`
	Digest           string         `json:"hash_md5"`
	MaxCompression   bool           `json:"compressao_maxima"`
	Format           archive.Format `json:"formato"`
}

// UnmarshalJSON reads a record. Indexes written by earlier versions store
// taxa_compressao as a percentage; values above 1 are scaled to a fraction.
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.CompressionRatio > 1 {
		p.CompressionRatio /= 100
	}
	*r = Record(p)
	return nil
}

// CompressionRatio returns 1 - archive/original as a fraction. It is 0 when
// original is 0 and never negative.
func CompressionRatio(original, archived int64) float64 {
	if original <= 0 || archived >= original {
		return 0
	}
	return 1 - float64(archived)/float64(original)
}

// Timestamp is a creation time with sub-second precision. It is written as
// RFC 3339 and also reads naive ISO-8601 values, interpreted as local time.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	s = strings.TrimSpace(s)
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = parsed
		return nil
	}
	for _, layout := range naiveLayouts {
		if parsed, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognised value %q", s)
}
