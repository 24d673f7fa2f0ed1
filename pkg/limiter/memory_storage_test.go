package limiter_test

import (
	"testing"

	"github.com/dmitrymomot/jobkit/pkg/limiter"
	"github.com/dmitrymomot/jobkit/pkg/limiter/limitertest"
)

func TestMemoryStorage_Conformance(t *testing.T) {
	t.Parallel()

	limitertest.RunStorageSuite(t, func(t *testing.T) limiter.Storage {
		s := limiter.NewMemoryStorage()
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}
