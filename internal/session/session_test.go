package session

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Henryk91/bpmn-collaborator/internal/protocol"
	"github.com/Henryk91/bpmn-collaborator/internal/store"
)

const frameWait = 2 * time.Second

func newTestSession(t *testing.T) (*Registry, *store.MemStore, string) {
	t.Helper()
	st := store.NewMemStore()
	doc, err := st.Create(context.Background(), "test", "<definitions id='v1'/>")
	require.NoError(t, err)
	return NewRegistry(st, nil), st, doc.ID
}

func join(t *testing.T, r *Registry, docID, name string) (*Session, *Client) {
	t.Helper()
	s, c, err := r.Join(context.Background(), docID, name)
	require.NoError(t, err)
	return s, c
}

func recvFrame(t *testing.T, c *Client) protocol.Envelope {
	t.Helper()
	select {
	case raw, ok := <-c.Outbox():
		require.True(t, ok, "outbox closed")
		env, err := protocol.Decode(raw)
		require.NoError(t, err)
		return env
	case <-time.After(frameWait):
		t.Fatal("timed out waiting for frame")
		return protocol.Envelope{}
	}
}

func recvType(t *testing.T, c *Client, want protocol.Type) protocol.Envelope {
	t.Helper()
	env := recvFrame(t, c)
	require.Equal(t, want, env.Type)
	return env
}

func expectSilence(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw, ok := <-c.Outbox():
		if ok {
			env, _ := protocol.Decode(raw)
			t.Fatalf("unexpected frame %s", env.Type)
		}
	case <-time.After(100 * time.Millisecond):
	}
}

func send(t *testing.T, s *Session, c *Client, typ protocol.Type, payload any) {
	t.Helper()
	raw, err := protocol.Encode(typ, payload)
	require.NoError(t, err)
	s.Handle(c, raw)
}

func TestJoinReturnsStateAndAssignedName(t *testing.T) {
	r, _, docID := newTestSession(t)
	s, a := join(t, r, docID, "alice")
	defer r.Leave(s, a)

	env := recvType(t, a, protocol.TypeDiagramState)
	var state protocol.DiagramState
	require.NoError(t, env.DecodeData(&state))
	assert.Equal(t, "<definitions id='v1'/>", state.XML)
	assert.Empty(t, state.Locks)
	assert.Equal(t, "alice", state.MyUserName)

	env = recvType(t, a, protocol.TypeUserList)
	var list protocol.UserList
	require.NoError(t, env.DecodeData(&list))
	assert.Equal(t, []string{"alice"}, list.Users)
}

func TestJoinUnknownDocument(t *testing.T) {
	r, _, _ := newTestSession(t)
	_, _, err := r.Join(context.Background(), "7b0de7e3-0000-4000-8000-000000000000", "alice")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestNameAssignment(t *testing.T) {
	r, _, docID := newTestSession(t)
	s, a := join(t, r, docID, "alice")
	defer r.Leave(s, a)
	recvType(t, a, protocol.TypeDiagramState)
	recvType(t, a, protocol.TypeUserList)

	s2, b := join(t, r, docID, "alice")
	defer r.Leave(s2, b)
	env := recvType(t, b, protocol.TypeDiagramState)
	var state protocol.DiagramState
	require.NoError(t, env.DecodeData(&state))
	assert.Equal(t, "alice (2)", state.MyUserName)

	s3, c := join(t, r, docID, "   ")
	defer r.Leave(s3, c)
	env = recvType(t, c, protocol.TypeDiagramState)
	require.NoError(t, env.DecodeData(&state))
	assert.True(t, strings.HasPrefix(state.MyUserName, "User_"), "generated name, got %q", state.MyUserName)
}

func TestSecondJoinBroadcastsUserList(t *testing.T) {
	r, _, docID := newTestSession(t)
	s, a := join(t, r, docID, "alice")
	defer r.Leave(s, a)
	recvType(t, a, protocol.TypeDiagramState)
	recvType(t, a, protocol.TypeUserList)

	_, b := join(t, r, docID, "bob")
	defer r.Leave(s, b)
	recvType(t, b, protocol.TypeDiagramState)
	env := recvType(t, b, protocol.TypeUserList)
	var list protocol.UserList
	require.NoError(t, env.DecodeData(&list))
	assert.Len(t, list.Users, 2)

	env = recvType(t, a, protocol.TypeUserJoined)
	var ev protocol.UserEvent
	require.NoError(t, env.DecodeData(&ev))
	assert.Equal(t, "bob", ev.UserName)

	env = recvType(t, a, protocol.TypeUserList)
	require.NoError(t, env.DecodeData(&list))
	assert.ElementsMatch(t, []string{"alice", "bob"}, list.Users)
}

// drainJoin consumes the join-time frames of two clients so tests can start
// from a quiet session.
func drainedPair(t *testing.T, r *Registry, docID string) (*Session, *Client, *Client) {
	t.Helper()
	s, a := join(t, r, docID, "alice")
	recvType(t, a, protocol.TypeDiagramState)
	recvType(t, a, protocol.TypeUserList)
	_, b := join(t, r, docID, "bob")
	recvType(t, b, protocol.TypeDiagramState)
	recvType(t, b, protocol.TypeUserList)
	recvType(t, a, protocol.TypeUserJoined)
	recvType(t, a, protocol.TypeUserList)
	return s, a, b
}

func TestLockIsExclusive(t *testing.T) {
	r, _, docID := newTestSession(t)
	s, a, b := drainedPair(t, r, docID)
	defer r.Leave(s, a)
	defer r.Leave(s, b)

	send(t, s, a, protocol.TypeElementLock, protocol.ElementLock{ElementID: "Task_1"})

	var locked protocol.ElementLocked
	env := recvType(t, b, protocol.TypeElementLocked)
	require.NoError(t, env.DecodeData(&locked))
	assert.Equal(t, "Task_1", locked.ElementID)
	assert.Equal(t, "alice", locked.UserName)
	// The holder sees its own grant too.
	recvType(t, a, protocol.TypeElementLocked)

	// A conflicting acquire is silently denied: no state change, no frame.
	send(t, s, b, protocol.TypeElementLock, protocol.ElementLock{ElementID: "Task_1"})
	expectSilence(t, a)
	expectSilence(t, b)
}

func TestReleaseThenAcquire(t *testing.T) {
	r, _, docID := newTestSession(t)
	s, a, b := drainedPair(t, r, docID)
	defer r.Leave(s, a)
	defer r.Leave(s, b)

	send(t, s, a, protocol.TypeElementLock, protocol.ElementLock{ElementID: "Task_1"})
	recvType(t, a, protocol.TypeElementLocked)
	recvType(t, b, protocol.TypeElementLocked)

	send(t, s, a, protocol.TypeElementUnlock, protocol.ElementLock{ElementID: "Task_1"})
	recvType(t, a, protocol.TypeElementUnlocked)
	recvType(t, b, protocol.TypeElementUnlocked)

	send(t, s, b, protocol.TypeElementLock, protocol.ElementLock{ElementID: "Task_1"})
	var locked protocol.ElementLocked
	env := recvType(t, a, protocol.TypeElementLocked)
	require.NoError(t, env.DecodeData(&locked))
	assert.Equal(t, "bob", locked.UserName)
}

func TestUnlockByNonOwnerIsIgnored(t *testing.T) {
	r, _, docID := newTestSession(t)
	s, a, b := drainedPair(t, r, docID)
	defer r.Leave(s, a)
	defer r.Leave(s, b)

	send(t, s, a, protocol.TypeElementLock, protocol.ElementLock{ElementID: "Task_1"})
	recvType(t, a, protocol.TypeElementLocked)
	recvType(t, b, protocol.TypeElementLocked)

	send(t, s, b, protocol.TypeElementUnlock, protocol.ElementLock{ElementID: "Task_1"})
	expectSilence(t, a)
	expectSilence(t, b)
}

func TestLeaveReleasesEverything(t *testing.T) {
	r, _, docID := newTestSession(t)
	s, a, b := drainedPair(t, r, docID)
	defer r.Leave(s, b)

	send(t, s, a, protocol.TypeElementLock, protocol.ElementLock{ElementID: "Task_2"})
	send(t, s, a, protocol.TypeElementLock, protocol.ElementLock{ElementID: "Task_1"})
	recvType(t, a, protocol.TypeElementLocked)
	recvType(t, a, protocol.TypeElementLocked)
	recvType(t, b, protocol.TypeElementLocked)
	recvType(t, b, protocol.TypeElementLocked)

	r.Leave(s, a)

	// Exactly one unlock per held element, in deterministic order, then the
	// departure notices.
	var unlocked protocol.ElementUnlocked
	env := recvType(t, b, protocol.TypeElementUnlocked)
	require.NoError(t, env.DecodeData(&unlocked))
	assert.Equal(t, "Task_1", unlocked.ElementID)
	env = recvType(t, b, protocol.TypeElementUnlocked)
	require.NoError(t, env.DecodeData(&unlocked))
	assert.Equal(t, "Task_2", unlocked.ElementID)

	env = recvType(t, b, protocol.TypeUserLeft)
	var ev protocol.UserEvent
	require.NoError(t, env.DecodeData(&ev))
	assert.Equal(t, "alice", ev.UserName)

	env = recvType(t, b, protocol.TypeUserList)
	var list protocol.UserList
	require.NoError(t, env.DecodeData(&list))
	assert.Equal(t, []string{"bob"}, list.Users)
	expectSilence(t, b)
}

func TestLastWriteWins(t *testing.T) {
	r, st, docID := newTestSession(t)
	s, a, b := drainedPair(t, r, docID)
	defer r.Leave(s, a)
	defer r.Leave(s, b)

	send(t, s, a, protocol.TypeDiagramUpdate, protocol.DiagramUpdate{XML: "<definitions id='from-a'/>"})
	send(t, s, b, protocol.TypeDiagramUpdate, protocol.DiagramUpdate{XML: "<definitions id='from-b'/>"})

	env := recvType(t, b, protocol.TypeDiagramUpdate)
	assert.Equal(t, "alice", env.User)
	var upd protocol.DiagramUpdate
	require.NoError(t, env.DecodeData(&upd))
	assert.Equal(t, "<definitions id='from-a'/>", upd.XML)

	env = recvType(t, a, protocol.TypeDiagramUpdate)
	assert.Equal(t, "bob", env.User)
	require.NoError(t, env.DecodeData(&upd))
	assert.Equal(t, "<definitions id='from-b'/>", upd.XML)

	// The most recently received snapshot is canonical and persisted.
	require.Eventually(t, func() bool {
		doc, err := st.Get(context.Background(), docID)
		return err == nil && doc.Content == "<definitions id='from-b'/>"
	}, frameWait, 10*time.Millisecond)
}

func TestUpdateCarriesLockSnapshot(t *testing.T) {
	r, _, docID := newTestSession(t)
	s, a, b := drainedPair(t, r, docID)
	defer r.Leave(s, a)
	defer r.Leave(s, b)

	send(t, s, a, protocol.TypeElementLock, protocol.ElementLock{ElementID: "Task_1"})
	recvType(t, a, protocol.TypeElementLocked)
	recvType(t, b, protocol.TypeElementLocked)

	send(t, s, a, protocol.TypeDiagramUpdate, protocol.DiagramUpdate{XML: "<definitions id='v2'/>"})
	env := recvType(t, b, protocol.TypeDiagramUpdate)
	var upd protocol.DiagramUpdate
	require.NoError(t, env.DecodeData(&upd))
	require.Contains(t, upd.Locks, "Task_1")
	assert.Equal(t, "alice", upd.Locks["Task_1"].UserName)
}

func TestPingPong(t *testing.T) {
	r, _, docID := newTestSession(t)
	s, a := join(t, r, docID, "alice")
	defer r.Leave(s, a)
	recvType(t, a, protocol.TypeDiagramState)
	recvType(t, a, protocol.TypeUserList)

	send(t, s, a, protocol.TypePing, nil)
	recvType(t, a, protocol.TypePong)
}

func TestLastLeaveTearsDownAndFlushes(t *testing.T) {
	r, st, docID := newTestSession(t)
	s, a := join(t, r, docID, "alice")
	recvType(t, a, protocol.TypeDiagramState)
	recvType(t, a, protocol.TypeUserList)

	send(t, s, a, protocol.TypeDiagramUpdate, protocol.DiagramUpdate{XML: "<definitions id='final'/>"})
	r.Leave(s, a)

	require.Eventually(t, func() bool { return r.Len() == 0 }, frameWait, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		doc, err := st.Get(context.Background(), docID)
		return err == nil && doc.Content == "<definitions id='final'/>"
	}, frameWait, 10*time.Millisecond)
}

func TestMalformedFrameIsDropped(t *testing.T) {
	r, _, docID := newTestSession(t)
	s, a, b := drainedPair(t, r, docID)
	defer r.Leave(s, a)
	defer r.Leave(s, b)

	s.Handle(a, []byte("{not json"))
	s.Handle(a, []byte(`{"data":{}}`))
	expectSilence(t, b)

	// Session still works afterwards.
	send(t, s, a, protocol.TypePing, nil)
	recvType(t, a, protocol.TypePong)
}
