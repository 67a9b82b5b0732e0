package lock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireExclusive(t *testing.T) {
	tb := NewTable()
	require.True(t, tb.Acquire("Task_1", "u1", "alice"))
	assert.False(t, tb.Acquire("Task_1", "u2", "bob"), "second owner must be denied")
	assert.True(t, tb.Acquire("Task_1", "u1", "alice"), "re-acquire by holder is a no-op grant")

	l, ok := tb.Get("Task_1")
	require.True(t, ok)
	assert.Equal(t, "u1", l.UserID)
	assert.Equal(t, "alice", l.UserName)
	assert.Equal(t, 1, tb.Len())
}

func TestReleaseThenAcquire(t *testing.T) {
	tb := NewTable()
	require.True(t, tb.Acquire("Task_1", "u1", "alice"))
	require.True(t, tb.Release("Task_1", "u1"))
	assert.True(t, tb.Acquire("Task_1", "u2", "bob"), "freed element must be grantable immediately")
}

func TestReleaseOwnerChecked(t *testing.T) {
	tb := NewTable()
	require.True(t, tb.Acquire("Task_1", "u1", "alice"))
	assert.False(t, tb.Release("Task_1", "u2"), "non-owner release must not remove the lock")
	_, ok := tb.Get("Task_1")
	assert.True(t, ok)
	assert.False(t, tb.Release("Flow_9", "u1"), "releasing an unlocked element is a no-op")
}

func TestReleaseAllOwnedBy(t *testing.T) {
	tb := NewTable()
	require.True(t, tb.Acquire("Task_2", "u1", "alice"))
	require.True(t, tb.Acquire("Task_1", "u1", "alice"))
	require.True(t, tb.Acquire("Task_3", "u2", "bob"))

	released := tb.ReleaseAllOwnedBy("u1")
	assert.Equal(t, []string{"Task_1", "Task_2"}, released)
	assert.Equal(t, 1, tb.Len())
	_, ok := tb.Get("Task_3")
	assert.True(t, ok)

	assert.Empty(t, tb.ReleaseAllOwnedBy("u1"))
}

func TestPseudoElementsNotLockable(t *testing.T) {
	tb := NewTable()
	assert.False(t, tb.Acquire("__implicitroot", "u1", "alice"))
	assert.False(t, tb.Acquire("", "u1", "alice"))
	assert.Equal(t, 0, tb.Len())
}

func TestSnapshotIsACopy(t *testing.T) {
	tb := NewTable()
	require.True(t, tb.Acquire("Task_1", "u1", "alice"))
	snap := tb.Snapshot()
	delete(snap, "Task_1")
	_, ok := tb.Get("Task_1")
	assert.True(t, ok)
}
