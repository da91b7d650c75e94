package search

import (
	"testing"

	"go.uber.org/goleak"
)

// TestMain guards the errgroup/semaphore worker pool in Search: a
// cancelled query must not leave scanFile goroutines running past
// the test that started them.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("sync.runtime_Semacquire"),
	)
}
