package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoSaveSkipsWhenSnapshotDeclines(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	AutoSave(ctx, store, "wf-1", 10*time.Millisecond, func() (Envelope, bool) {
		return Envelope{}, false
	})

	ids, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestAutoSavePersistsOnEachTick(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()

	ticks := 0
	AutoSave(ctx, store, "wf-1", 10*time.Millisecond, func() (Envelope, bool) {
		ticks++
		return NewEnvelope("wf-1", "Demo", "1.0", "running", nil, nil, time.Now(), nil), true
	})

	assert.Greater(t, ticks, 0)
	loaded, err := store.Load(context.Background(), "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", loaded.WorkflowID)
}
