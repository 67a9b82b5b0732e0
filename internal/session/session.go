// Package session hosts the per-document coordination hub. One Session per
// open document arbitrates all shared state: the canonical snapshot, the
// element lock table and the connected-user set. Every operation for a
// session runs on its single goroutine, so concurrent client messages are
// serialized in arrival order and lock races cannot occur by construction.
package session

import (
	"context"
	"log"

	"github.com/Henryk91/bpmn-collaborator/internal/lock"
	"github.com/Henryk91/bpmn-collaborator/internal/protocol"
	"github.com/Henryk91/bpmn-collaborator/internal/store"
)

type frame struct {
	c   *Client
	env protocol.Envelope
}

type Session struct {
	docID string
	st    store.Store

	join   chan *Client
	leave  chan *Client
	frames chan frame
	done   chan struct{}

	bridge     *Bridge
	remote     <-chan []byte
	stopBridge func()

	// Owned by the run loop.
	clients  map[*Client]bool
	locks    *lock.Table
	snapshot string
}

func newSession(docID, snapshot string, st store.Store, bridge *Bridge) *Session {
	s := &Session{
		docID:    docID,
		st:       st,
		join:     make(chan *Client),
		leave:    make(chan *Client),
		frames:   make(chan frame, outboxSize),
		done:     make(chan struct{}),
		bridge:   bridge,
		clients:  make(map[*Client]bool),
		locks:    lock.NewTable(),
		snapshot: snapshot,
	}
	if bridge != nil {
		s.remote, s.stopBridge = bridge.Subscribe(context.Background(), docID)
	}
	go s.run()
	return s
}

// Handle decodes one raw inbound frame from c and queues it for the run
// loop. Malformed frames are logged and dropped; content problems are the
// sender's own concern and never disturb the session.
func (s *Session) Handle(c *Client, raw []byte) {
	env, err := protocol.Decode(raw)
	if err != nil {
		log.Printf("session %s: dropping frame from %s: %v", s.docID, c.UserID, err)
		return
	}
	select {
	case s.frames <- frame{c: c, env: env}:
	case <-s.done:
	}
}

func (s *Session) run() {
	for {
		select {
		case c := <-s.join:
			s.handleJoin(c)
		case c := <-s.leave:
			s.handleLeave(c)
		case f := <-s.frames:
			s.handleFrame(f.c, f.env)
		case raw, ok := <-s.remote:
			if ok {
				s.handleRemote(raw)
			}
		case <-s.done:
			s.flush()
			if s.stopBridge != nil {
				s.stopBridge()
			}
			for c := range s.clients {
				c.close()
			}
			return
		}
	}
}

func (s *Session) handleJoin(c *Client) {
	taken := make(map[string]bool, len(s.clients))
	for other := range s.clients {
		taken[other.name] = true
	}
	c.name = assignName(c.requestedName, taken)
	s.clients[c] = true

	s.sendTo(c, protocol.MustEncode(protocol.TypeDiagramState, protocol.DiagramState{
		XML:        s.snapshot,
		Locks:      s.locks.Snapshot(),
		MyUserName: c.name,
	}))
	s.sendTo(c, s.userListFrame())
	s.broadcast(protocol.MustEncode(protocol.TypeUserJoined, protocol.UserEvent{UserName: c.name}), c)
	s.broadcast(s.userListFrame(), c)
	log.Printf("session %s: %s joined (%d online)", s.docID, c.name, len(s.clients))
}

func (s *Session) handleLeave(c *Client) {
	if !s.clients[c] {
		return
	}
	delete(s.clients, c)
	for _, elementID := range s.locks.ReleaseAllOwnedBy(c.UserID) {
		unlocked := protocol.MustEncode(protocol.TypeElementUnlocked, protocol.ElementUnlocked{ElementID: elementID})
		s.broadcast(unlocked, nil)
		s.publish(unlocked)
	}
	s.broadcast(protocol.MustEncode(protocol.TypeUserLeft, protocol.UserEvent{UserName: c.name}), nil)
	s.broadcast(s.userListFrame(), nil)
	c.close()
	log.Printf("session %s: %s left (%d online)", s.docID, c.name, len(s.clients))
}

func (s *Session) handleFrame(c *Client, env protocol.Envelope) {
	if !s.clients[c] {
		return
	}
	switch env.Type {
	case protocol.TypeDiagramUpdate:
		var upd protocol.DiagramUpdate
		if err := env.DecodeData(&upd); err != nil {
			log.Printf("session %s: %v", s.docID, err)
			return
		}
		if upd.XML == "" {
			return
		}
		// Last write wins: the newest accepted snapshot replaces the
		// prior one whole.
		s.snapshot = upd.XML
		if err := s.st.UpdateContent(context.Background(), s.docID, upd.XML); err != nil {
			log.Printf("session %s: persist snapshot: %v", s.docID, err)
		}
		relay, err := protocol.EncodeFrom(protocol.TypeDiagramUpdate, protocol.DiagramUpdate{
			XML:   upd.XML,
			Locks: s.locks.Snapshot(),
		}, c.name)
		if err != nil {
			log.Printf("session %s: %v", s.docID, err)
			return
		}
		s.broadcast(relay, c)
		s.publish(relay)

	case protocol.TypeElementLock:
		var req protocol.ElementLock
		if err := env.DecodeData(&req); err != nil {
			log.Printf("session %s: %v", s.docID, err)
			return
		}
		// Denials are silent: the requester pre-checks locally, so a
		// conflicting request is stale state, not an error.
		if !s.locks.Acquire(req.ElementID, c.UserID, c.name) {
			return
		}
		locked := protocol.MustEncode(protocol.TypeElementLocked, protocol.ElementLocked{
			ElementID: req.ElementID,
			UserID:    c.UserID,
			UserName:  c.name,
		})
		s.broadcast(locked, nil)
		s.publish(locked)

	case protocol.TypeElementUnlock:
		var req protocol.ElementLock
		if err := env.DecodeData(&req); err != nil {
			log.Printf("session %s: %v", s.docID, err)
			return
		}
		if !s.locks.Release(req.ElementID, c.UserID) {
			return
		}
		unlocked := protocol.MustEncode(protocol.TypeElementUnlocked, protocol.ElementUnlocked{ElementID: req.ElementID})
		s.broadcast(unlocked, nil)
		s.publish(unlocked)

	case protocol.TypePing:
		s.sendTo(c, protocol.MustEncode(protocol.TypePong, nil))

	default:
		log.Printf("session %s: ignoring %s from %s", s.docID, env.Type, c.name)
	}
}

// handleRemote applies a frame relayed from another server instance and fans
// it out locally. Snapshots are not re-persisted here; the originating
// instance already wrote them.
func (s *Session) handleRemote(raw []byte) {
	env, err := protocol.Decode(raw)
	if err != nil {
		log.Printf("session %s: bad bridged frame: %v", s.docID, err)
		return
	}
	switch env.Type {
	case protocol.TypeDiagramUpdate:
		var upd protocol.DiagramUpdate
		if err := env.DecodeData(&upd); err == nil && upd.XML != "" {
			s.snapshot = upd.XML
		}
	case protocol.TypeElementLocked:
		var ev protocol.ElementLocked
		if err := env.DecodeData(&ev); err == nil {
			s.locks.Acquire(ev.ElementID, ev.UserID, ev.UserName)
		}
	case protocol.TypeElementUnlocked:
		var ev protocol.ElementUnlocked
		if err := env.DecodeData(&ev); err == nil {
			s.locks.ForceRelease(ev.ElementID)
		}
	}
	s.broadcast(raw, nil)
}

func (s *Session) userListFrame() []byte {
	users := make([]string, 0, len(s.clients))
	for c := range s.clients {
		users = append(users, c.name)
	}
	return protocol.MustEncode(protocol.TypeUserList, protocol.UserList{Users: users})
}

// broadcast queues raw for every client except skip. A client whose outbox
// is full cannot keep up and is dropped from the session.
func (s *Session) broadcast(raw []byte, skip *Client) {
	var stalled []*Client
	for c := range s.clients {
		if c == skip {
			continue
		}
		if !s.sendTo(c, raw) {
			stalled = append(stalled, c)
		}
	}
	for _, c := range stalled {
		log.Printf("session %s: dropping slow client %s", s.docID, c.name)
		s.handleLeave(c)
	}
}

func (s *Session) sendTo(c *Client, raw []byte) bool {
	select {
	case c.send <- raw:
		return true
	default:
		return false
	}
}

func (s *Session) publish(frame []byte) {
	if s.bridge == nil {
		return
	}
	s.bridge.Publish(context.Background(), s.docID, frame)
}

func (s *Session) flush() {
	if err := s.st.UpdateContent(context.Background(), s.docID, s.snapshot); err != nil {
		log.Printf("session %s: final flush: %v", s.docID, err)
	}
}

func (s *Session) stop() {
	close(s.done)
}
