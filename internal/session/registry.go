package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/Henryk91/bpmn-collaborator/internal/store"
)

// Registry maps document ids to live sessions. Sessions are created on the
// first join for a document and torn down when the last client leaves;
// different documents run fully in parallel.
type Registry struct {
	st     store.Store
	bridge *Bridge

	mu       sync.Mutex
	sessions map[string]*entry
}

type entry struct {
	s    *Session
	refs int
}

func NewRegistry(st store.Store, bridge *Bridge) *Registry {
	return &Registry{st: st, bridge: bridge, sessions: make(map[string]*entry)}
}

// Join attaches a new client to the session for docID, creating the session
// from the persisted document if none is live. Returns store.ErrNotFound for
// an unknown document id.
func (r *Registry) Join(ctx context.Context, docID, requestedName string) (*Session, *Client, error) {
	// Load outside the lock; the read is only needed when the session does
	// not exist yet, and a stale snapshot loses to the live session below.
	doc, err := r.st.Get(ctx, docID)
	if err != nil {
		return nil, nil, fmt.Errorf("join %s: %w", docID, err)
	}

	r.mu.Lock()
	e, ok := r.sessions[docID]
	if !ok {
		e = &entry{s: newSession(docID, doc.Content, r.st, r.bridge)}
		r.sessions[docID] = e
	}
	e.refs++
	r.mu.Unlock()

	c := newClient(requestedName)
	select {
	case e.s.join <- c:
	case <-ctx.Done():
		r.Leave(e.s, nil)
		return nil, nil, ctx.Err()
	}
	return e.s, c, nil
}

// Leave detaches c from s, releasing all its locks. When the last client of
// a document leaves, the session flushes its snapshot and is removed.
func (r *Registry) Leave(s *Session, c *Client) {
	if c != nil {
		select {
		case s.leave <- c:
		case <-s.done:
		}
	}
	r.mu.Lock()
	e, ok := r.sessions[s.docID]
	if ok && e.s == s {
		e.refs--
		if e.refs <= 0 {
			delete(r.sessions, s.docID)
			s.stop()
		}
	}
	r.mu.Unlock()
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Shutdown stops every live session, flushing their snapshots.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()
	for _, e := range sessions {
		e.s.stop()
	}
}
