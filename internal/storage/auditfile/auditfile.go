// Package auditfile is the local fallback for trap access entries the
// primary audit repository could not take. Entries are appended as JSON
// lines to a size-rotated file.
package auditfile

import (
	"bufio"
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/bluelamp/cligate/internal/core/domain"
)

// Config describes the fallback file and its rotation.
type Config struct {
	Filename   string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Sink writes entries to a rotated JSONL file.
type Sink struct {
	mu sync.Mutex
	w  *lumberjack.Logger
}

// New creates the sink, making the parent directory if needed.
func New(cfg Config) (*Sink, error) {
	if cfg.Filename == "" {
		return nil, fmt.Errorf("auditfile: filename is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Filename), 0o750); err != nil {
		return nil, fmt.Errorf("auditfile: create directory: %w", err)
	}
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 50
	}
	return &Sink{
		w: &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		},
	}, nil
}

// Write appends one entry as a single line.
func (s *Sink) Write(entry *domain.TrapAccessLog) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("auditfile: encode: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(line); err != nil {
		return fmt.Errorf("auditfile: write: %w", err)
	}
	return nil
}

// Close closes the current file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Close()
}

// Decode reads JSONL entries from r. Malformed lines are skipped and
// counted.
func Decode(r io.Reader) ([]*domain.TrapAccessLog, int, error) {
	var (
		out     []*domain.TrapAccessLog
		skipped int
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e domain.TrapAccessLog
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil || e.ID == "" {
			skipped++
			continue
		}
		out = append(out, &e)
	}
	return out, skipped, sc.Err()
}

// ReadFile decodes a fallback file, gunzipping it when the name ends in
// ".gz". A missing file yields no entries.
func ReadFile(path string) ([]*domain.TrapAccessLog, int, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	if !strings.HasSuffix(path, compressSuffix) {
		return Decode(f)
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, 0, fmt.Errorf("auditfile: %s: %w", path, err)
	}
	defer zr.Close()
	return Decode(zr)
}

const (
	compressSuffix   = ".gz"
	backupTimeLayout = "2006-01-02T15-04-05.000"
)

// Backups lists the rotated files of the fallback at path, compressed or
// not, oldest first.
func Backups(path string) ([]string, error) {
	dir := filepath.Dir(path)
	ext := filepath.Ext(path)
	prefix := strings.TrimSuffix(filepath.Base(path), ext) + "-"

	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		stamp := strings.TrimSuffix(strings.TrimSuffix(name, compressSuffix), ext)
		if _, err := time.Parse(backupTimeLayout, strings.TrimPrefix(stamp, prefix)); err != nil {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	// The timestamp layout sorts lexically.
	sort.Strings(out)
	return out, nil
}
