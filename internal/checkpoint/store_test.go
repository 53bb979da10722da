package checkpoint

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "checkpoints.db"), Identity{
		Namespace:     "test-namespace",
		Stream:        "graph-events",
		ConsumerGroup: "test-group",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_SaveAndGet(t *testing.T) {
	store := openTestStore(t)

	err := store.Save(0, Checkpoint{Offset: "12", SequenceNumber: 12})
	require.NoError(t, err)

	cp, ok, err := store.Get(0)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "12", cp.Offset)
	assert.Equal(t, int64(12), cp.SequenceNumber)
}

func TestStore_MissingCheckpointIsNotAnError(t *testing.T) {
	store := openTestStore(t)

	_, ok, err := store.Get(3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_SaveIsMonotonic(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Save(1, Checkpoint{Offset: "100", SequenceNumber: 100}))

	// A replayed batch must not rewind committed progress
	require.NoError(t, store.Save(1, Checkpoint{Offset: "50", SequenceNumber: 50}))

	cp, ok, err := store.Get(1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(100), cp.SequenceNumber)

	// Equal and later positions are accepted
	require.NoError(t, store.Save(1, Checkpoint{Offset: "100", SequenceNumber: 100}))
	require.NoError(t, store.Save(1, Checkpoint{Offset: "101", SequenceNumber: 101}))

	cp, _, err = store.Get(1)
	require.NoError(t, err)
	assert.Equal(t, int64(101), cp.SequenceNumber)
}

func TestStore_ResetBypassesMonotonicGuard(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Save(2, Checkpoint{Offset: "200", SequenceNumber: 200}))
	require.NoError(t, store.Reset(2, Checkpoint{Offset: "10", SequenceNumber: 10}))

	cp, ok, err := store.Get(2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(10), cp.SequenceNumber)
}

func TestStore_Delete(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Save(0, Checkpoint{Offset: "5", SequenceNumber: 5}))
	require.NoError(t, store.Delete(0))

	_, ok, err := store.Get(0)
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting a missing checkpoint is a no-op
	require.NoError(t, store.Delete(9))
}

func TestStore_AllAndDeleteAll(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Save(0, Checkpoint{Offset: "1", SequenceNumber: 1}))
	require.NoError(t, store.Save(1, Checkpoint{Offset: "2", SequenceNumber: 2}))
	require.NoError(t, store.Save(2, Checkpoint{Offset: "3", SequenceNumber: 3}))

	all, err := store.All()
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, int64(2), all[1].SequenceNumber)

	count, err := store.DeleteAll()
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	all, err = store.All()
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.db")
	identity := Identity{Namespace: "ns", Stream: "events", ConsumerGroup: "g"}

	store, err := Open(path, identity)
	require.NoError(t, err)
	require.NoError(t, store.Save(4, Checkpoint{Offset: "44", SequenceNumber: 44}))
	require.NoError(t, store.Close())

	reopened, err := Open(path, identity)
	require.NoError(t, err)
	defer reopened.Close()

	cp, ok, err := reopened.Get(4)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(44), cp.SequenceNumber)
}

func TestStore_IdentitiesAreIsolated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.db")

	a, err := Open(path, Identity{Namespace: "ns", Stream: "events", ConsumerGroup: "group-a"})
	require.NoError(t, err)
	require.NoError(t, a.Save(0, Checkpoint{Offset: "7", SequenceNumber: 7}))
	require.NoError(t, a.Close())

	b, err := Open(path, Identity{Namespace: "ns", Stream: "events", ConsumerGroup: "group-b"})
	require.NoError(t, err)
	defer b.Close()

	_, ok, err := b.Get(0)
	require.NoError(t, err)
	assert.False(t, ok)
}
