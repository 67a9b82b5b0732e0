// Package lock implements the per-document element lock table. The table is
// not safe for concurrent use on its own: the session run loop is its single
// writer.
package lock

import (
	"sort"
	"strings"
	"time"

	"github.com/Henryk91/bpmn-collaborator/internal/protocol"
)

// Lock records the exclusive holder of one diagram element.
type Lock struct {
	UserID   string
	UserName string
	Since    time.Time
}

// Lockable reports whether an element id may be locked at all. Ids beginning
// with "__" are modeler-internal pseudo elements (the implicit root among
// them) and never participate in locking.
func Lockable(elementID string) bool {
	return elementID != "" && !strings.HasPrefix(elementID, "__")
}

type Table struct {
	locks map[string]Lock
}

func NewTable() *Table {
	return &Table{locks: make(map[string]Lock)}
}

func (t *Table) Get(elementID string) (Lock, bool) {
	l, ok := t.locks[elementID]
	return l, ok
}

func (t *Table) Len() int { return len(t.locks) }

// Acquire grants the lock iff the element is unlocked or already held by the
// same user. Re-acquiring an own lock is a successful no-op.
func (t *Table) Acquire(elementID, userID, userName string) bool {
	if !Lockable(elementID) {
		return false
	}
	if cur, ok := t.locks[elementID]; ok {
		return cur.UserID == userID
	}
	t.locks[elementID] = Lock{UserID: userID, UserName: userName, Since: time.Now()}
	return true
}

// Release removes the lock if held by userID. Releasing an element that is
// not locked, or locked by someone else, reports false and changes nothing.
func (t *Table) Release(elementID, userID string) bool {
	cur, ok := t.locks[elementID]
	if !ok || cur.UserID != userID {
		return false
	}
	delete(t.locks, elementID)
	return true
}

// ForceRelease removes a lock regardless of owner. Used when applying
// authoritative unlock events relayed from another server instance.
func (t *Table) ForceRelease(elementID string) bool {
	if _, ok := t.locks[elementID]; !ok {
		return false
	}
	delete(t.locks, elementID)
	return true
}

// ReleaseAllOwnedBy drops every lock held by userID and returns the released
// element ids in sorted order so disconnect broadcasts are deterministic.
func (t *Table) ReleaseAllOwnedBy(userID string) []string {
	var released []string
	for id, l := range t.locks {
		if l.UserID == userID {
			released = append(released, id)
		}
	}
	for _, id := range released {
		delete(t.locks, id)
	}
	sort.Strings(released)
	return released
}

// Snapshot copies the table into the wire representation.
func (t *Table) Snapshot() map[string]protocol.LockInfo {
	out := make(map[string]protocol.LockInfo, len(t.locks))
	for id, l := range t.locks {
		out[id] = protocol.LockInfo{UserID: l.UserID, UserName: l.UserName}
	}
	return out
}
