package checkpoint

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowkernel/kernel/internal/clock"
	"github.com/flowkernel/kernel/internal/token"
)

func TestTokenStateRoundTripPreservesIdentityAndHistory(t *testing.T) {
	c := clock.NewFixed(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	tok := token.New("start", map[string]any{"x": 1}, "wf-1", c)
	tok.Move("step-2", nil)
	state := FromToken(tok)

	restored := state.Restore(c)
	assert.Equal(t, tok.ID(), restored.ID())
	assert.Equal(t, tok.CurrentNodeID(), restored.CurrentNodeID())
	assert.Equal(t, len(tok.History()), len(restored.History()))
}

func TestMemoryStoreSaveLoadDeleteList(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	env := NewEnvelope("wf-1", "Demo", "1.0", "running", nil, nil, time.Now(), nil)

	require.NoError(t, store.Save(ctx, "wf-1", env))
	loaded, err := store.Load(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", loaded.WorkflowID)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, "wf-1")

	require.NoError(t, store.Delete(ctx, "wf-1"))
	_, err = store.Load(ctx, "wf-1")
	assert.Error(t, err)
}

func TestFileStoreSaveLoadDeleteList(t *testing.T) {
	dir, err := os.MkdirTemp("", "checkpoint-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	store := NewFileStore(dir)
	ctx := context.Background()
	env := NewEnvelope("wf-2", "Demo", "1.0", "waiting_human", nil, map[string]any{"k": "v"}, time.Now(), nil)

	require.NoError(t, store.Save(ctx, "wf-2", env))
	loaded, err := store.Load(ctx, "wf-2")
	require.NoError(t, err)
	assert.Equal(t, "waiting_human", loaded.EngineStatus)
	assert.Equal(t, "v", loaded.Contexts["k"])

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, "wf-2")

	require.NoError(t, store.Delete(ctx, "wf-2"))
	_, err = store.Load(ctx, "wf-2")
	assert.Error(t, err)
}

func TestFileStoreLoadMissingReturnsNotFound(t *testing.T) {
	dir, err := os.MkdirTemp("", "checkpoint-test-*")
	require.NoError(t, err)
	defer os.RemoveAll(dir)

	store := NewFileStore(dir)
	_, err = store.Load(context.Background(), "missing")
	require.Error(t, err)
}
