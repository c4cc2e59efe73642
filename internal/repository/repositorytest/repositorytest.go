// Package repositorytest opens isolated in-memory record stores for tests.
package repositorytest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/core-coin/praemium/internal/repository"
	"github.com/core-coin/praemium/pkg/logger"
)

var counter atomic.Int64

// NewDB returns an empty in-memory SQLite store that is closed when the test ends.
func NewDB(t testing.TB) *repository.GormDB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, counter.Add(1))
	db, err := repository.NewSQLiteDB(dsn, logger.NewNop())
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}
