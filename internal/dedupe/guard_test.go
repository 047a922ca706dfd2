package dedupe

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuard_SeenAndMark(t *testing.T) {
	t.Parallel()

	g := NewGuard()
	assert.False(t, g.Seen("msg-1"))

	g.Mark("msg-1")
	assert.True(t, g.Seen("msg-1"))
	assert.False(t, g.Seen("msg-2"))
	assert.Equal(t, 1, g.Len())

	g.Mark("msg-1")
	assert.Equal(t, 1, g.Len())
}

func TestGuard_CheckAndMark(t *testing.T) {
	t.Parallel()

	g := NewGuard()
	assert.False(t, g.CheckAndMark("a"))
	assert.True(t, g.CheckAndMark("a"))
}

func TestGuard_FreshGuardForgetsPreviousRun(t *testing.T) {
	t.Parallel()

	first := NewGuard()
	first.Mark("msg-1")

	second := NewGuard()
	assert.False(t, second.Seen("msg-1"))
}

func TestGuard_ConcurrentMark(t *testing.T) {
	t.Parallel()

	g := NewGuard()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Mark(fmt.Sprintf("msg-%d", i%10))
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, g.Len())
}
