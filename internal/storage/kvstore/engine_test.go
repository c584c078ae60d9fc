package kvstore

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := DefaultConfig(t.TempDir())
	cfg.SyncWrites = false
	e, err := Open(cfg, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestEngine_SetIfAbsent(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	if err := e.SetIfAbsent(ctx, []byte("k"), []byte("v1")); err != nil {
		t.Fatalf("SetIfAbsent() error = %v", err)
	}
	if err := e.SetIfAbsent(ctx, []byte("k"), []byte("v2")); !errors.Is(err, ErrKeyExists) {
		t.Fatalf("SetIfAbsent(existing) error = %v, want ErrKeyExists", err)
	}

	got, err := e.Get(ctx, []byte("k"))
	if err != nil || string(got) != "v1" {
		t.Errorf("Get() = %q, %v; want v1", got, err)
	}
	if _, err := e.Get(ctx, []byte("missing")); !errors.Is(err, ErrKeyNotFound) {
		t.Errorf("Get(missing) error = %v", err)
	}
}

func TestEngine_ScanPrefixOrder(t *testing.T) {
	e := openTestEngine(t)
	ctx := context.Background()

	for _, k := range []string{"a/3", "b/1", "a/1", "a/2"} {
		_ = e.SetIfAbsent(ctx, []byte(k), []byte(k))
	}

	var keys []string
	_ = e.Scan(ctx, []byte("a/"), func(k, _ []byte) bool {
		keys = append(keys, string(k))
		return true
	})
	if strings.Join(keys, ",") != "a/1,a/2,a/3" {
		t.Errorf("Scan() keys = %v", keys)
	}
}

func TestEngine_InMemory(t *testing.T) {
	e, err := Open(Config{InMemory: true}, nil)
	if err != nil {
		t.Fatalf("Open(in-memory) error = %v", err)
	}
	defer e.Close()

	if _, err := e.GC(context.Background()); err != nil {
		t.Errorf("GC(in-memory) error = %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestEngine_RegisterMetrics(t *testing.T) {
	e := openTestEngine(t)
	reg := prometheus.NewRegistry()
	if err := e.RegisterMetrics(reg); err != nil {
		t.Fatalf("RegisterMetrics() error = %v", err)
	}

	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "cligate_badger_lsm_size_bytes") {
		t.Errorf("metrics output missing badger gauges:\n%s", body)
	}
}
