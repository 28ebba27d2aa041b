// Package events implements the Event Bus: a synchronous,
// best-effort publish/subscribe mechanism used by the Learning
// Controller and by the engine facade (for VLAN, port, flush and aging
// changes) to notify observers of state changes without holding any of
// their own locks during delivery.
//
// The subscriber list is copy-on-write: Subscribe/Unsubscribe build a
// new slice under a write lock, and Publish reads the current slice
// through an atomic pointer with no locking at all. Delivery needs to
// run outside the caller's lock but stay synchronous and keep a
// panicking subscriber from affecting the core, so a recovered direct
// call over the loaded slice is enough — no goroutine fan-out or
// external transport needed.
package events

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/brindlenet/l2fabric/pkg/l2log"
	"github.com/brindlenet/l2fabric/pkg/macaddr"
	"github.com/brindlenet/l2fabric/pkg/ports"
	"github.com/brindlenet/l2fabric/pkg/vlan"
)

// Kind identifies the type of event carried on the bus.
type Kind int

const (
	MacLearned Kind = iota
	MacMoved
	MacAged
	MacFlushed
	VlanCreated
	VlanDeleted
	VlanPortChanged
	PortStateChanged
	RateLimited
	TableFull
)

func (k Kind) String() string {
	switch k {
	case MacLearned:
		return "MacLearned"
	case MacMoved:
		return "MacMoved"
	case MacAged:
		return "MacAged"
	case MacFlushed:
		return "MacFlushed"
	case VlanCreated:
		return "VlanCreated"
	case VlanDeleted:
		return "VlanDeleted"
	case VlanPortChanged:
		return "VlanPortChanged"
	case PortStateChanged:
		return "PortStateChanged"
	case RateLimited:
		return "RateLimited"
	case TableFull:
		return "TableFull"
	default:
		return "Unknown"
	}
}

// Event is a single notification delivered to subscribers. Fields not
// relevant to Kind are left at their zero value.
type Event struct {
	Kind Kind

	MAC     macaddr.MAC
	Vlan    vlan.VlanId
	Port    ports.PortId
	OldPort ports.PortId
	Name    string
	At      int64
	Count   int
}

// Handle identifies one subscription, returned by Subscribe and
// consumed by Unsubscribe.
type Handle uuid.UUID

// Callback receives delivered events. It must not call back into the
// Bus (or the component that owns it) from within itself; doing so
// risks deadlock since delivery may happen on the publisher's
// goroutine.
type Callback func(Event)

type subscription struct {
	handle   Handle
	kinds    map[Kind]bool // nil means "all kinds"
	callback Callback
}

func (s *subscription) wants(k Kind) bool {
	if s.kinds == nil {
		return true
	}
	return s.kinds[k]
}

// Bus is a concurrency-safe, copy-on-write publish/subscribe registry.
// writeMu serializes Subscribe/Unsubscribe; Publish reads the current
// subscriber slice through an atomic pointer so it never blocks on
// writers and never observes a torn slice header.
type Bus struct {
	writeMu sync.Mutex
	subs    atomic.Pointer[[]*subscription]
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	b := &Bus{}
	empty := make([]*subscription, 0)
	b.subs.Store(&empty)
	return b
}

func (b *Bus) load() []*subscription {
	if p := b.subs.Load(); p != nil {
		return *p
	}
	return nil
}

// Subscribe registers callback for the given kinds (or every kind, if
// kinds is empty) and returns a Handle for later Unsubscribe.
func (b *Bus) Subscribe(kinds []Kind, callback Callback) Handle {
	var set map[Kind]bool
	if len(kinds) > 0 {
		set = make(map[Kind]bool, len(kinds))
		for _, k := range kinds {
			set[k] = true
		}
	}

	handle := Handle(uuid.New())
	sub := &subscription{handle: handle, kinds: set, callback: callback}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	cur := b.load()
	next := make([]*subscription, len(cur)+1)
	copy(next, cur)
	next[len(cur)] = sub
	b.subs.Store(&next)

	return handle
}

// Unsubscribe removes a previously-registered subscription. It is a
// no-op if the handle is unknown or already removed.
func (b *Bus) Unsubscribe(h Handle) {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	cur := b.load()
	next := make([]*subscription, 0, len(cur))
	for _, s := range cur {
		if s.handle != h {
			next = append(next, s)
		}
	}
	b.subs.Store(&next)
}

// Publish delivers evt synchronously to every matching subscriber, in
// registration order, on the caller's goroutine. Callers must not
// hold any core lock when calling Publish. A panicking subscriber is
// recovered and logged; it never propagates to the publisher or
// affects other subscribers.
func (b *Bus) Publish(evt Event) {
	for _, s := range b.load() {
		if !s.wants(evt.Kind) {
			continue
		}
		deliver(s, evt)
	}
}

func deliver(s *subscription, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			l2log.WithFields(map[string]interface{}{
				"event": evt.Kind.String(),
				"panic": r,
			}).Warn("event subscriber panicked, recovered")
		}
	}()
	s.callback(evt)
}
