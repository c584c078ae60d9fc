package sqlstore

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/bluelamp/cligate/pkg/passhash"
)

var (
	t0         = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	testParams = passhash.Params{MemoryKiB: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:cligate-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := Open(dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = Close(db) })
	return db
}
