package main

import (
	"testing"
	"testing/fstest"
)

func TestListEmbeddedMigrations_RealSet(t *testing.T) {
	e := NewEmbeddedMigration(nil)

	files, err := e.ListEmbeddedMigrations()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(files) == 0 {
		t.Fatal("expected at least one embedded migration file")
	}

	for i := 1; i < len(files); i++ {
		if files[i-1] >= files[i] {
			t.Errorf("expected sorted filenames, got %s before %s", files[i-1], files[i])
		}
	}
}

func TestValidateEmbeddedMigrations_RealSet(t *testing.T) {
	e := NewEmbeddedMigration(nil)

	if err := e.ValidateEmbeddedMigrations(); err != nil {
		t.Fatalf("expected embedded migrations to validate, got: %v", err)
	}

	// A second pass exercises the checksum-comparison branch.
	if err := e.ValidateEmbeddedMigrations(); err != nil {
		t.Fatalf("expected second validation pass to succeed, got: %v", err)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	e := NewEmbeddedMigration(nil)

	info, err := e.parseMigrationFilename("003_ingestion_runs.up.sql")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if info.Sequence != 3 || info.Name != "ingestion_runs" || info.Direction != "up" {
		t.Errorf("unexpected parse result: %+v", info)
	}

	if _, err := e.parseMigrationFilename("not-a-migration.sql"); err == nil {
		t.Error("expected error for malformed filename")
	}
}

func TestValidateEmbeddedMigrations_OrphanedDown(t *testing.T) {
	fsys := fstest.MapFS{
		"001_a.up.sql":   &fstest.MapFile{Data: []byte("create table a();")},
		"001_a.down.sql": &fstest.MapFile{Data: []byte("drop table a;")},
		"002_b.down.sql": &fstest.MapFile{Data: []byte("drop table b;")},
	}

	e := NewEmbeddedMigration(fsys)

	err := e.ValidateEmbeddedMigrations()
	if err == nil {
		t.Fatal("expected error for orphaned down migration")
	}
}

func TestValidateEmbeddedMigrations_SequenceGap(t *testing.T) {
	fsys := fstest.MapFS{
		"001_a.up.sql":   &fstest.MapFile{Data: []byte("create table a();")},
		"001_a.down.sql": &fstest.MapFile{Data: []byte("drop table a;")},
		"003_b.up.sql":   &fstest.MapFile{Data: []byte("create table b();")},
		"003_b.down.sql": &fstest.MapFile{Data: []byte("drop table b;")},
	}

	e := NewEmbeddedMigration(fsys)

	err := e.ValidateEmbeddedMigrations()
	if err == nil {
		t.Fatal("expected error for sequence gap")
	}
}

func TestValidateEmbeddedMigrations_ChecksumMismatch(t *testing.T) {
	fsys := fstest.MapFS{
		"001_a.up.sql":   &fstest.MapFile{Data: []byte("create table a();")},
		"001_a.down.sql": &fstest.MapFile{Data: []byte("drop table a;")},
	}

	e := NewEmbeddedMigration(fsys)

	if err := e.ValidateEmbeddedMigrations(); err != nil {
		t.Fatalf("unexpected error on first pass: %v", err)
	}

	fsys["001_a.up.sql"].Data = []byte("create table a(id int);")

	if err := e.ValidateEmbeddedMigrations(); err == nil {
		t.Fatal("expected checksum mismatch error after file content changed")
	}
}
