package bigcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetDel(t *testing.T) {
	ctx := context.Background()
	p, err := New(ctx, Config{LifeWindow: time.Minute})
	require.NoError(t, err)
	defer p.Close(ctx)

	_, ok, err := p.Get(ctx, "users-1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = p.Set(ctx, "users-1", []byte("doc"), 1, time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	b, ok, err := p.Get(ctx, "users-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "doc", string(b))

	require.NoError(t, p.Del(ctx, "users-1"))
	_, ok, _ = p.Get(ctx, "users-1")
	assert.False(t, ok)

	assert.NoError(t, p.Del(ctx, "users-1"), "deleting a missing key is not an error")
}
