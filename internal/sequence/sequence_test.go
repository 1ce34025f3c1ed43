package sequence

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormat(t *testing.T) {
	assert.Equal(t, "CHG-000042", Format(Changes, 42))
	assert.Equal(t, "INCIDENTS-000001", Format("incidents", 1))
}

func TestMemoryIsPerTenantAndUnique(t *testing.T) {
	gen := NewMemory()
	ctx := context.Background()

	var wg sync.WaitGroup
	seen := sync.Map{}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := gen.Next(ctx, "org-a", Changes)
			require.NoError(t, err)
			_, dup := seen.LoadOrStore(id, true)
			assert.False(t, dup, id)
		}()
	}
	wg.Wait()

	id, err := gen.Next(ctx, "org-b", Changes)
	require.NoError(t, err)
	assert.Equal(t, "CHG-000001", id)
}
