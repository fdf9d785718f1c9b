package guard

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireRelease(t *testing.T) {
	g := New()

	require.True(t, g.Acquire("export"), "first acquire should succeed")
	assert.False(t, g.Acquire("export"), "second acquire while held should fail")

	g.Release("export")
	assert.True(t, g.Acquire("export"), "acquire after release should succeed")
}

func TestIndependentKeys(t *testing.T) {
	g := New()

	require.True(t, g.Acquire("a"))
	assert.True(t, g.Acquire("b"), "distinct keys must not block each other")

	g.Release("a")
	g.Release("b")
}

func TestReleaseUnheldKey(t *testing.T) {
	g := New()

	// Unknown key and double release are both no-ops.
	g.Release("never-acquired")
	require.True(t, g.Acquire("job"))
	g.Release("job")
	g.Release("job")

	assert.True(t, g.Acquire("job"))
}

func TestConcurrentAcquireSingleWinner(t *testing.T) {
	g := New()

	const workers = 32
	var won atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Acquire("reindex") {
				won.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), won.Load(), "exactly one worker should win the lock")
}
