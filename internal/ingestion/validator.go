package ingestion

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/regfeed/ingestcore/internal/canon"
)

// Sentinel errors for per-field validation failures.
var (
	ErrMissingSourceKey       = errors.New("source_key is required")
	ErrSourceKeyTooLong       = errors.New("source_key exceeds 255 characters")
	ErrMissingPublishedAt     = errors.New("published_at is required")
	ErrUnparseablePublishedAt = errors.New("published_at is not a parseable instant")
	ErrMissingTitle           = errors.New("title is required")
	ErrMissingEntityNameRaw   = errors.New("entity_name_raw is required")
	ErrMissingEntityNameNorm  = errors.New("entity_name_norm is required")
	ErrInvalidRegion          = errors.New("region must match ^[A-Z]{2}$")
	ErrMissingRecordID        = errors.New("record_id is required")
	ErrMissingStatus          = errors.New("status is required")

	// ErrEmptyRecordSet and ErrInvalidSourceType guard the engine's
	// entry-point preconditions, checked before any side effect.
	ErrEmptyRecordSet   = errors.New("records must be a non-empty sequence")
	ErrInvalidSourceType = errors.New("sourceType must be bulk or recent")
)

var regionPattern = regexp.MustCompile(`^[A-Z]{2}$`)

// publishedAtLayouts lists the instant layouts this service accepts when
// validating published_at. The fingerprint never reparses or reformats
// the value — only validation does, to confirm it names an instant.
var publishedAtLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05Z07:00",
}

// parsePublishedAt tries each accepted layout in turn and reports whether
// any of them parsed s as an instant, along with the parsed instant.
func parsePublishedAt(s string) (time.Time, bool) {
	for _, layout := range publishedAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}

// Validator checks a canon.Record against the eight required fields plus
// the source_key length and region format constraints. It carries no
// state; a single instance is safe to reuse and to share across
// goroutines.
type Validator struct{}

// NewValidator constructs a Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks a single record's required fields, returning every
// violation found joined into one error, or nil if the record is valid.
func (v *Validator) Validate(r canon.Record) error {
	var reasons []string

	if r.SourceKey == "" {
		reasons = append(reasons, ErrMissingSourceKey.Error())
	} else if len(r.SourceKey) > 255 {
		reasons = append(reasons, ErrSourceKeyTooLong.Error())
	}

	if r.PublishedAt == "" {
		reasons = append(reasons, ErrMissingPublishedAt.Error())
	} else if _, ok := parsePublishedAt(r.PublishedAt); !ok {
		reasons = append(reasons, ErrUnparseablePublishedAt.Error())
	}

	if r.Title == "" {
		reasons = append(reasons, ErrMissingTitle.Error())
	}

	if r.EntityNameRaw == "" {
		reasons = append(reasons, ErrMissingEntityNameRaw.Error())
	}

	if r.EntityNameNorm == "" {
		reasons = append(reasons, ErrMissingEntityNameNorm.Error())
	}

	if !regionPattern.MatchString(r.Region) {
		reasons = append(reasons, ErrInvalidRegion.Error())
	}

	if r.RecordID == "" {
		reasons = append(reasons, ErrMissingRecordID.Error())
	}

	if r.Status == "" {
		reasons = append(reasons, ErrMissingStatus.Error())
	}

	if len(reasons) == 0 {
		return nil
	}

	return fmt.Errorf("%s", strings.Join(reasons, "; "))
}

// validateBatch validates every record, returning on the first failure an
// error naming its index and reasons, per spec: no database write happens
// before a pass of the whole batch succeeds.
func (v *Validator) validateBatch(records []canon.Record) error {
	for i, r := range records {
		if err := v.Validate(r); err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
	}

	return nil
}
