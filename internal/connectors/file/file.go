// Package file provides reference connector implementations reading
// newline-delimited JSON from disk. Per the connector contract (spec
// §6), a connector does no business logic whatsoever: it parses, maps
// to canon.Record and applies canon.Record.Normalize (entity_name_norm
// from entity_name_raw when unset, region trimmed and upper-cased,
// status trimmed), preserving raw_json byte-for-byte.
package file

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/regfeed/ingestcore/internal/canon"
)

// row is the on-disk shape: field names as they appear in the source
// JSON lines, independent of canon.Record's Go field names.
type row struct {
	SourceKey      string `json:"source_key"`
	PublishedAt    string `json:"published_at"`
	Title          string `json:"title"`
	EntityNameRaw  string `json:"entity_name_raw"`
	EntityNameNorm string `json:"entity_name_norm"`
	Region         string `json:"region"`
	RecordID       string `json:"record_id"`
	Status         string `json:"status"`
	DocumentURL    string `json:"document_url"`
}

// Connector reads bulk and recent feeds from JSON-lines files on disk.
// hours passed to FetchRecent is informational only, per the connector
// contract; the ingestion engine enforces the 72-hour window itself.
type Connector struct {
	BulkPath   string
	RecentPath string
}

// New constructs a Connector reading the bulk feed from bulkPath and the
// recent feed from recentPath.
func New(bulkPath, recentPath string) *Connector {
	return &Connector{BulkPath: bulkPath, RecentPath: recentPath}
}

// FetchBulk reads every line of BulkPath and maps it to canon.Record.
func (c *Connector) FetchBulk() ([]canon.Record, error) {
	return readJSONLines(c.BulkPath)
}

// FetchRecent reads every line of RecentPath and maps it to
// canon.Record. hours is accepted for contract compliance but unused:
// the file holds whatever window the producer wrote to it.
func (c *Connector) FetchRecent(hours int) ([]canon.Record, error) {
	return readJSONLines(c.RecentPath)
}

func readJSONLines(path string) ([]canon.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var records []canon.Record

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNum := 0

	for scanner.Scan() {
		lineNum++

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var r row
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNum, err)
		}

		raw := make([]byte, len(line))
		copy(raw, line)

		record := canon.Record{
			SourceKey:      r.SourceKey,
			PublishedAt:    r.PublishedAt,
			Title:          r.Title,
			EntityNameRaw:  r.EntityNameRaw,
			EntityNameNorm: r.EntityNameNorm,
			Region:         r.Region,
			RecordID:       r.RecordID,
			Status:         r.Status,
			DocumentURL:    r.DocumentURL,
			RawJSON:        raw,
		}.Normalize()

		records = append(records, record)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}

	return records, nil
}
