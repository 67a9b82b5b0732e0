package client

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/Henryk91/bpmn-collaborator/internal/lock"
	"github.com/Henryk91/bpmn-collaborator/internal/protocol"
)

const (
	// DefaultDebounce collapses bursts of local edits into one outbound
	// update.
	DefaultDebounce = 200 * time.Millisecond
	// DefaultSettleDelay keeps the applying-remote flag up briefly after an
	// import resolves, because the editing surface emits residual change
	// events asynchronously after import completes.
	DefaultSettleDelay = 150 * time.Millisecond
)

// Sender is the outbound half of the transport, split out so the agent can
// be exercised without a network.
type Sender interface {
	Send(typ protocol.Type, payload any) error
}

type AgentOptions struct {
	Debounce    time.Duration
	SettleDelay time.Duration

	// DocID keys the local snapshot cache; ignored when Cache is nil.
	DocID string
	Cache *Cache

	OnUsers func([]string)
	OnError func(error)
}

// Agent bridges one editing surface to the collaboration protocol. All of
// its state is per connection: the last-known lock projection, the set of
// elements this user holds, the applying-remote suppression flag and the
// debounce timer live here, never in globals.
//
// The lock projection is an optimistic local copy and may be briefly stale;
// the server stays the final arbiter, and a conflicting update that slips
// through is simply overwritten by last-write-wins.
type Agent struct {
	sender  Sender
	surface Surface
	opts    AgentOptions

	mu             sync.Mutex
	myName         string
	locks          map[string]protocol.LockInfo
	held           map[string]bool
	applyingRemote bool
	applyGen       int
	debounce       *time.Timer
	users          []string
}

func NewAgent(sender Sender, surface Surface, opts AgentOptions) *Agent {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	return &Agent{
		sender:  sender,
		surface: surface,
		opts:    opts,
		locks:   make(map[string]protocol.LockInfo),
		held:    make(map[string]bool),
	}
}

// SetSender attaches the outbound transport after construction, for the
// case where the transport's message handler is the agent itself.
func (a *Agent) SetSender(s Sender) {
	a.mu.Lock()
	a.sender = s
	a.mu.Unlock()
}

// send writes one frame, treating a disconnected transport as a quiet
// drop: the rejoin handshake re-synchronizes state, so nothing is queued.
func (a *Agent) send(typ protocol.Type, payload any) {
	a.mu.Lock()
	s := a.sender
	a.mu.Unlock()
	if s == nil {
		return
	}
	err := s.Send(typ, payload)
	switch {
	case err == nil:
	case errors.Is(err, ErrNotOpen):
		log.Printf("agent: dropped %s while disconnected", typ)
	default:
		a.reportError(err)
	}
}

// UserName reports the display name the server assigned on join. Empty
// until the first diagram_state arrives.
func (a *Agent) UserName() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.myName
}

// Users reports the last received user list.
func (a *Agent) Users() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.users...)
}

// LockedByOther reports whether elementID is held by a different user
// according to the local projection.
func (a *Agent) LockedByOther(elementID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lockedByOtherLocked(elementID)
}

func (a *Agent) lockedByOtherLocked(elementID string) bool {
	l, ok := a.locks[elementID]
	return ok && l.UserName != a.myName
}

// HandleMessage is the transport's inbound dispatch. Wire it as
// TransportOptions.OnMessage.
func (a *Agent) HandleMessage(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeDiagramState:
		var state protocol.DiagramState
		if err := env.DecodeData(&state); err != nil {
			a.reportError(err)
			return
		}
		a.handleState(state)

	case protocol.TypeDiagramUpdate:
		var upd protocol.DiagramUpdate
		if err := env.DecodeData(&upd); err != nil {
			a.reportError(err)
			return
		}
		if upd.Locks != nil {
			a.replaceLocks(upd.Locks, false)
		}
		if upd.XML != "" {
			a.applyRemote(upd.XML)
		}

	case protocol.TypeElementLocked:
		var ev protocol.ElementLocked
		if err := env.DecodeData(&ev); err != nil {
			a.reportError(err)
			return
		}
		a.mu.Lock()
		a.locks[ev.ElementID] = protocol.LockInfo{UserID: ev.UserID, UserName: ev.UserName}
		mine := ev.UserName == a.myName
		if mine {
			a.held[ev.ElementID] = true
		}
		a.mu.Unlock()
		if !mine {
			a.surface.AddLockMarker(ev.ElementID, ev.UserName)
		}

	case protocol.TypeElementUnlocked:
		var ev protocol.ElementUnlocked
		if err := env.DecodeData(&ev); err != nil {
			a.reportError(err)
			return
		}
		a.mu.Lock()
		delete(a.locks, ev.ElementID)
		delete(a.held, ev.ElementID)
		a.mu.Unlock()
		a.surface.RemoveLockMarker(ev.ElementID)

	case protocol.TypeLocksUpdate:
		var lu protocol.LocksUpdate
		if err := env.DecodeData(&lu); err != nil {
			a.reportError(err)
			return
		}
		a.replaceLocks(lu.Locks, false)

	case protocol.TypeUserList:
		var list protocol.UserList
		if err := env.DecodeData(&list); err != nil {
			a.reportError(err)
			return
		}
		a.mu.Lock()
		a.users = list.Users
		a.mu.Unlock()
		if a.opts.OnUsers != nil {
			a.opts.OnUsers(list.Users)
		}

	case protocol.TypeUserJoined, protocol.TypeUserLeft, protocol.TypePong:
		// A fresh user_list follows join/leave; nothing to do here.

	default:
		log.Printf("agent: ignoring %s", env.Type)
	}
}

// handleState is the reconciliation point after (re)join: local lock and
// user projections are discarded wholesale in favor of the server's.
func (a *Agent) handleState(state protocol.DiagramState) {
	a.mu.Lock()
	a.myName = state.MyUserName
	a.mu.Unlock()

	a.replaceLocks(state.Locks, true)
	if state.XML != "" {
		a.applyRemote(state.XML)
	}
}

// replaceLocks swaps the whole lock projection, adjusting markers for the
// difference. With resetHeld the own-held set is rebuilt from the snapshot,
// as on rejoin.
func (a *Agent) replaceLocks(locks map[string]protocol.LockInfo, resetHeld bool) {
	if locks == nil {
		locks = map[string]protocol.LockInfo{}
	}
	a.mu.Lock()
	var removed []string
	for id, l := range a.locks {
		if _, still := locks[id]; !still && l.UserName != a.myName {
			removed = append(removed, id)
		}
	}
	type marker struct{ id, user string }
	var added []marker
	for id, l := range locks {
		if l.UserName != a.myName {
			added = append(added, marker{id, l.UserName})
		}
	}
	a.locks = locks
	if resetHeld {
		a.held = make(map[string]bool)
		for id, l := range locks {
			if l.UserName == a.myName {
				a.held[id] = true
			}
		}
	}
	a.mu.Unlock()

	for _, id := range removed {
		a.surface.RemoveLockMarker(id)
	}
	for _, m := range added {
		a.surface.AddLockMarker(m.id, m.user)
	}
}

// applyRemote imports a snapshot with the suppression flag raised so the
// surface's change events during import are not misread as local edits and
// re-broadcast. The flag clears a settle delay after the import resolves.
func (a *Agent) applyRemote(xml string) {
	a.mu.Lock()
	a.applyingRemote = true
	a.applyGen++
	gen := a.applyGen
	a.mu.Unlock()

	if err := a.surface.ImportContent(context.Background(), xml); err != nil {
		// Import failures are this client's problem alone; drop the flag
		// right away and keep the session alive.
		a.mu.Lock()
		if a.applyGen == gen {
			a.applyingRemote = false
		}
		a.mu.Unlock()
		a.reportError(err)
		return
	}
	a.cachePut(xml)

	time.AfterFunc(a.opts.SettleDelay, func() {
		a.mu.Lock()
		if a.applyGen == gen {
			a.applyingRemote = false
		}
		a.mu.Unlock()
	})
}

// OnChange is the surface's change handler. It rejects edits to elements
// locked by another user and otherwise (re)starts the debounce window; the
// pending update is canceled and rescheduled by each new event.
func (a *Agent) OnChange(elementID string) bool {
	a.mu.Lock()
	if elementID != "" && a.lockedByOtherLocked(elementID) {
		a.mu.Unlock()
		return false
	}
	if a.applyingRemote {
		a.mu.Unlock()
		return true
	}
	if a.debounce != nil {
		a.debounce.Stop()
	}
	a.debounce = time.AfterFunc(a.opts.Debounce, a.flushUpdate)
	a.mu.Unlock()
	return true
}

// OnDragStart, OnResizeStart and OnConnectStart gate gestures on elements
// locked by another user.
func (a *Agent) OnDragStart(elementID string) bool    { return !a.LockedByOther(elementID) }
func (a *Agent) OnResizeStart(elementID string) bool  { return !a.LockedByOther(elementID) }
func (a *Agent) OnConnectStart(elementID string) bool { return !a.LockedByOther(elementID) }

// OnSelectionChanged turns a selection transition into lock traffic:
// elements that left the selection are released, elements that entered are
// acquired. Entering an element someone else holds is suppressed locally
// and reported back so the widget can drop it from the selection.
func (a *Agent) OnSelectionChanged(oldIDs, newIDs []string) (denied []string) {
	left, entered := diffSelections(oldIDs, newIDs)

	for _, id := range left {
		a.mu.Lock()
		if !a.held[id] {
			a.mu.Unlock()
			continue
		}
		delete(a.held, id)
		delete(a.locks, id)
		a.mu.Unlock()
		a.send(protocol.TypeElementUnlock, protocol.ElementLock{ElementID: id})
	}

	for _, id := range entered {
		if !lock.Lockable(id) {
			continue
		}
		a.mu.Lock()
		if a.lockedByOtherLocked(id) {
			a.mu.Unlock()
			denied = append(denied, id)
			continue
		}
		// Optimistic: assume the grant; the element_locked broadcast
		// confirms it.
		a.held[id] = true
		a.locks[id] = protocol.LockInfo{UserName: a.myName}
		a.mu.Unlock()
		a.send(protocol.TypeElementLock, protocol.ElementLock{ElementID: id})
	}
	return denied
}

// Flush sends a pending debounced update immediately, if one is due. Used
// on teardown so the last edit is not lost to a stopped timer.
func (a *Agent) Flush() {
	a.mu.Lock()
	pending := a.debounce != nil && a.debounce.Stop()
	a.debounce = nil
	a.mu.Unlock()
	if pending {
		a.flushUpdate()
	}
}

func (a *Agent) flushUpdate() {
	a.mu.Lock()
	if a.applyingRemote {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	xml, err := a.surface.ExportContent(context.Background())
	if err != nil {
		a.reportError(err)
		return
	}
	a.cachePut(xml)
	a.send(protocol.TypeDiagramUpdate, protocol.DiagramUpdate{XML: xml})
}

func (a *Agent) cachePut(xml string) {
	if a.opts.Cache == nil || a.opts.DocID == "" {
		return
	}
	if err := a.opts.Cache.Put(a.opts.DocID, xml); err != nil {
		log.Printf("agent: cache snapshot: %v", err)
	}
}

func (a *Agent) reportError(err error) {
	if a.opts.OnError != nil {
		a.opts.OnError(err)
		return
	}
	log.Printf("agent: %v", err)
}
