package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticResolverMergesGlobalAssignments(t *testing.T) {
	r := NewStaticResolver(map[string]map[string][]string{
		"org-a": {"cab": {"carol", "alice"}},
		AnyOrg:  {"cab": {"alice", "oncall"}},
		"org-b": {"cab": {"bob"}},
	})

	ids, err := r.Resolve(context.Background(), "org-a", "cab")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "carol", "oncall"}, ids)

	ids, err = r.Resolve(context.Background(), "org-c", "missing")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestResolveAll(t *testing.T) {
	r := NewStaticResolver(map[string]map[string][]string{
		"org-a": {"cab": {"carol"}, "director": {"dave", "carol"}},
	})
	ids, err := ResolveAll(context.Background(), r, "org-a", []string{"cab", "director"})
	require.NoError(t, err)
	assert.Equal(t, []string{"carol", "dave"}, ids)

	ids, err = ResolveAll(context.Background(), nil, "org-a", []string{"cab"})
	require.NoError(t, err)
	assert.Nil(t, ids)
}
