package sqlite_test

import (
	"testing"

	"github.com/plaenen/tenant-eventstore/pkg/store"
	"github.com/plaenen/tenant-eventstore/pkg/store/sqlite"
	"github.com/plaenen/tenant-eventstore/pkg/store/storetest"
)

func TestEngineConformance(t *testing.T) {
	storetest.Run(t, func(tb testing.TB) store.EventStore {
		eng, err := sqlite.New(sqlite.WithMemoryDatabase(), sqlite.WithMaxOpenConns(1))
		if err != nil {
			tb.Fatalf("open engine: %v", err)
		}
		tb.Cleanup(func() { eng.Close() })
		return eng
	})
}
