package auditfile

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bluelamp/cligate/internal/core/domain"
)

func TestSink_WriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit-fallback.jsonl")
	s, err := New(Config{Filename: path})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	uid := "u1"
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	entries := []*domain.TrapAccessLog{
		{ID: "01A", Timestamp: ts, TrapKeyUsed: "k1", ResponseType: domain.ResponseError},
		{ID: "01B", Timestamp: ts, TrapKeyUsed: "k2", IdentifiedUserID: &uid, ResponseType: domain.ResponseBlocked},
	}
	for _, e := range entries {
		if err := s.Write(e); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	got, skipped, err := ReadFile(path)
	if err != nil || skipped != 0 {
		t.Fatalf("ReadFile() skipped=%d err=%v", skipped, err)
	}
	if len(got) != 2 || got[1].IdentifiedUserID == nil || *got[1].IdentifiedUserID != "u1" {
		t.Fatalf("ReadFile() = %+v", got)
	}
}

func TestDecode_SkipsGarbage(t *testing.T) {
	in := strings.Join([]string{
		`{"id":"01A","trap_key_used":"k"}`,
		`not json`,
		``,
		`{"trap_key_used":"no id"}`,
		`{"id":"01B"}`,
	}, "\n")

	got, skipped, err := Decode(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || skipped != 2 {
		t.Errorf("Decode() = %d entries, %d skipped; want 2, 2", len(got), skipped)
	}
}

func TestReadFile_Missing(t *testing.T) {
	got, _, err := ReadFile(filepath.Join(t.TempDir(), "none.jsonl"))
	if err != nil || got != nil {
		t.Errorf("ReadFile(missing) = %v, %v", got, err)
	}
}

func TestNew_RequiresFilename(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() with empty filename succeeded")
	}
}

func writeGzip(t *testing.T, path string, lines ...string) {
	t.Helper()
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(strings.Join(lines, "\n") + "\n")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestBackups_FindsRotatedFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit-fallback.jsonl")
	older := filepath.Join(dir, "audit-fallback-2026-03-01T12-00-00.000.jsonl.gz")
	newer := filepath.Join(dir, "audit-fallback-2026-03-02T08-30-00.000.jsonl")

	writeGzip(t, older, `{"id":"01A"}`, `{"id":"01B"}`)
	for _, f := range []string{newer, path, filepath.Join(dir, "audit-fallback-notes.jsonl")} {
		if err := os.WriteFile(f, []byte(`{"id":"01C"}`+"\n"), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	got, err := Backups(path)
	if err != nil {
		t.Fatalf("Backups() error = %v", err)
	}
	if len(got) != 2 || got[0] != older || got[1] != newer {
		t.Fatalf("Backups() = %v, want [%s %s]", got, older, newer)
	}

	entries, skipped, err := ReadFile(older)
	if err != nil || skipped != 0 || len(entries) != 2 {
		t.Fatalf("ReadFile(gz) = %d entries, %d skipped, %v", len(entries), skipped, err)
	}
}

func TestBackups_MissingDir(t *testing.T) {
	got, err := Backups(filepath.Join(t.TempDir(), "gone", "f.jsonl"))
	if err != nil || len(got) != 0 {
		t.Errorf("Backups() = %v, %v", got, err)
	}
}
