package memory_test

import (
	"testing"

	"github.com/plaenen/tenant-eventstore/pkg/store"
	"github.com/plaenen/tenant-eventstore/pkg/store/memory"
	"github.com/plaenen/tenant-eventstore/pkg/store/storetest"
)

func TestEngineConformance(t *testing.T) {
	storetest.Run(t, func(tb testing.TB) store.EventStore {
		return memory.New()
	})
}
