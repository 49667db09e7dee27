package handles_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-ipc/internal/handles"
)

func TestRegistryLifecycle(t *testing.T) {
	r := handles.NewRegistry[string](4)
	h1 := r.Insert("a")
	h2 := r.Insert("b")
	require.NotZero(t, h1)
	require.NotEqual(t, h1, h2)

	v, ok := r.Get(h1)
	require.True(t, ok)
	assert.Equal(t, "a", v)
	assert.Equal(t, 2, r.Len())

	_, ok = r.Remove(h1)
	require.True(t, ok)
	_, ok = r.Get(h1)
	assert.False(t, ok, "removed handle must be rejected")
	_, ok = r.Get(0)
	assert.False(t, ok)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryConcurrentInsertRemove(t *testing.T) {
	r := handles.NewRegistry[int](8)
	const workers, perWorker = 8, 200

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				h := r.Insert(w*perWorker + i)
				v, ok := r.Get(h)
				if !ok || v != w*perWorker+i {
					t.Errorf("lookup mismatch for %d", w*perWorker+i)
				}
				if i%2 == 0 {
					r.Remove(h)
				}
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, workers*perWorker/2, r.Len())

	count := 0
	r.Range(func(h uint64, v int) {
		got, ok := r.Get(h)
		require.True(t, ok)
		assert.Equal(t, v, got)
		count++
	})
	assert.Equal(t, workers*perWorker/2, count)
}
