package store

import (
	"fmt"
	"sync"
	"testing"

	"github.com/hupe1980/agentnet/core"
	"github.com/hupe1980/agentnet/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStoreSaveAndGet(t *testing.T) {
	s := NewInMemoryStore()

	resp := &router.Response{
		InvocationID: "inv-1",
		Content:      core.TextContent("assistant", "done"),
	}
	require.NoError(t, s.Save(resp))

	got, ok := s.Get("inv-1")
	require.True(t, ok)
	assert.Equal(t, "done", got.Content.Text())

	_, ok = s.Get("inv-2")
	assert.False(t, ok)
}

func TestInMemoryStoreListSorted(t *testing.T) {
	s := NewInMemoryStore()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, s.Save(&router.Response{InvocationID: id}))
	}
	assert.Equal(t, []string{"a", "b", "c"}, s.List())
}

func TestInMemoryStoreConcurrentAccess(t *testing.T) {
	s := NewInMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("inv-%d", i)
			_ = s.Save(&router.Response{InvocationID: id})
			_, _ = s.Get(id)
			_ = s.List()
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.List(), 16)
}
