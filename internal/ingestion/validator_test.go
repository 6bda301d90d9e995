package ingestion

import (
	"strings"
	"testing"

	"github.com/regfeed/ingestcore/internal/canon"
)

func validRecord() canon.Record {
	return canon.Record{
		SourceKey:      "sec:2026-001",
		PublishedAt:    "2026-07-20T10:00:00Z",
		Title:          "Consent order",
		EntityNameRaw:  "Acme Energy LLC",
		EntityNameNorm: "acme energy llc",
		Region:         "TX",
		RecordID:       "R1",
		Status:         "open",
	}
}

func TestValidator_Validate_AcceptsCompleteRecord(t *testing.T) {
	v := NewValidator()

	if err := v.Validate(validRecord()); err != nil {
		t.Fatalf("expected a fully-populated record to validate, got %v", err)
	}
}

func TestValidator_Validate_RejectsMissingRequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(canon.Record) canon.Record
		want   string
	}{
		{"missing source_key", func(r canon.Record) canon.Record { r.SourceKey = ""; return r }, "source_key is required"},
		{"source_key too long", func(r canon.Record) canon.Record { r.SourceKey = strings.Repeat("a", 256); return r }, "exceeds 255"},
		{"missing published_at", func(r canon.Record) canon.Record { r.PublishedAt = ""; return r }, "published_at is required"},
		{"unparseable published_at", func(r canon.Record) canon.Record { r.PublishedAt = "yesterday"; return r }, "not a parseable instant"},
		{"missing title", func(r canon.Record) canon.Record { r.Title = ""; return r }, "title is required"},
		{"missing entity_name_raw", func(r canon.Record) canon.Record { r.EntityNameRaw = ""; return r }, "entity_name_raw is required"},
		{"missing entity_name_norm", func(r canon.Record) canon.Record { r.EntityNameNorm = ""; return r }, "entity_name_norm is required"},
		{"lowercase region", func(r canon.Record) canon.Record { r.Region = "tx"; return r }, "region must match"},
		{"three-letter region", func(r canon.Record) canon.Record { r.Region = "TEX"; return r }, "region must match"},
		{"missing record_id", func(r canon.Record) canon.Record { r.RecordID = ""; return r }, "record_id is required"},
		{"missing status", func(r canon.Record) canon.Record { r.Status = ""; return r }, "status is required"},
	}

	v := NewValidator()

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := v.Validate(tc.mutate(validRecord()))
			if err == nil {
				t.Fatal("expected a validation error")
			}

			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error = %q, want substring %q", err.Error(), tc.want)
			}
		})
	}
}

func TestValidator_Validate_JoinsMultipleReasons(t *testing.T) {
	r := validRecord()
	r.SourceKey = ""
	r.Title = ""

	v := NewValidator()

	err := v.Validate(r)
	if err == nil {
		t.Fatal("expected an error")
	}

	if !strings.Contains(err.Error(), "source_key") || !strings.Contains(err.Error(), "title") {
		t.Errorf("expected both violations to be named, got %q", err.Error())
	}
}

func TestValidateBatch_NamesFailingIndex(t *testing.T) {
	records := []canon.Record{validRecord(), validRecord(), validRecord()}
	records[1].Region = "xx"

	v := NewValidator()

	err := v.validateBatch(records)
	if err == nil {
		t.Fatal("expected an error")
	}

	if !strings.Contains(err.Error(), "record 1") {
		t.Errorf("expected the error to name index 1, got %q", err.Error())
	}
}

func TestParsePublishedAt_AcceptsMultipleLayouts(t *testing.T) {
	tests := []string{
		"2026-07-20T10:00:00Z",
		"2026-07-20T10:00:00.123456789Z",
		"2026-07-20T10:00Z",
	}

	for _, s := range tests {
		if _, ok := parsePublishedAt(s); !ok {
			t.Errorf("expected %q to parse as an instant", s)
		}
	}
}
