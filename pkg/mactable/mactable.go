// Package mactable implements the MAC Table: a keyed store of
// (MAC, VLAN) -> (port, last-seen, kind) supporting O(1) average
// lookup/insert and bulk iteration.
//
// Entries live in a bucketed open-addressing hash table over a 32-bit
// fold of the MAC's bytes mixed with the VLAN ID, with a tombstone
// slot state so deletions don't break probe chains.
package mactable

import (
	"sync"
	"sync/atomic"

	"github.com/brindlenet/l2fabric/pkg/l2err"
	"github.com/brindlenet/l2fabric/pkg/macaddr"
	"github.com/brindlenet/l2fabric/pkg/ports"
	"github.com/brindlenet/l2fabric/pkg/vlan"
)

// Kind distinguishes how an entry was installed.
type Kind int

const (
	Dynamic Kind = iota
	Static
	Management
)

func (k Kind) String() string {
	switch k {
	case Dynamic:
		return "dynamic"
	case Static:
		return "static"
	case Management:
		return "management"
	default:
		return "unknown"
	}
}

// Entry is an immutable snapshot of one (MAC, VLAN) binding.
type Entry struct {
	MAC      macaddr.MAC
	Vlan     vlan.VlanId
	Port     ports.PortId
	Kind     Kind
	LastSeen int64
}

type key struct {
	mac macaddr.MAC
	vid vlan.VlanId
}

func (k key) hash() uint32 {
	h := k.mac.Fold32()
	h ^= uint32(k.vid) * 2654435761 // Knuth multiplicative mixing
	return h
}

type slotState uint8

const (
	slotEmpty slotState = iota
	slotOccupied
	slotTombstone
)

type slot struct {
	state    slotState
	key      key
	port     ports.PortId
	kind     Kind
	lastSeen int64
}

const initialCapacity = 64
const maxLoadFactorNum = 7 // 0.7 load factor, expressed as 7/10
const maxLoadFactorDen = 10

// Table is the concurrency-safe MAC table. Lookup also mutates
// last_seen, so every public operation (including reads) takes the
// same mutex; critical sections are kept short, "single
// lock with short critical sections is acceptable" allowance.
type Table struct {
	mu       sync.Mutex
	slots    []slot
	count    int // occupied, excludes tombstones
	occupied int // occupied + tombstone, for load-factor growth
	maxSize  int
	aging    int64 // seconds
	clock    int64 // atomic-accessed "now", set by Tick
}

// NewTable creates an empty table bounded to maxSize entries and
// aged out after agingSeconds of inactivity.
func NewTable(maxSize int, agingSeconds int64) *Table {
	return &Table{
		slots:   make([]slot, initialCapacity),
		maxSize: maxSize,
		aging:   agingSeconds,
	}
}

// Now returns the table's current logical clock, as last set by Tick.
func (t *Table) Now() int64 {
	return atomic.LoadInt64(&t.clock)
}

// SetAging changes the aging threshold used by Tick.
func (t *Table) SetAging(seconds int64) error {
	if seconds <= 0 {
		return l2err.Invalid("mac_set_aging", "", "aging threshold must be positive")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.aging = seconds
	return nil
}

func (t *Table) findSlotLocked(k key) (idx int, found bool) {
	mask := uint32(len(t.slots) - 1)
	i := k.hash() & mask
	firstTombstone := -1
	for probe := uint32(0); probe < uint32(len(t.slots)); probe++ {
		s := &t.slots[i]
		switch s.state {
		case slotEmpty:
			if firstTombstone >= 0 {
				return firstTombstone, false
			}
			return int(i), false
		case slotTombstone:
			if firstTombstone < 0 {
				firstTombstone = int(i)
			}
		case slotOccupied:
			if s.key == k {
				return int(i), true
			}
		}
		i = (i + probe + 1) & mask
	}
	// Table is saturated with occupied/tombstone slots; caller must
	// grow before inserting. Returning the tombstone we found (if
	// any) lets updates of an existing key still succeed.
	if firstTombstone >= 0 {
		return firstTombstone, false
	}
	return -1, false
}

func (t *Table) growLocked() {
	old := t.slots
	t.slots = make([]slot, len(old)*2)
	t.occupied = 0
	t.count = 0
	for _, s := range old {
		if s.state != slotOccupied {
			continue
		}
		idx, _ := t.findSlotLocked(s.key)
		t.slots[idx] = s
		t.count++
		t.occupied++
	}
}

func (t *Table) maybeGrowLocked() {
	if t.occupied*maxLoadFactorDen >= len(t.slots)*maxLoadFactorNum {
		t.growLocked()
	}
}

// UpsertResult describes the effect of an Upsert call.
type UpsertResult struct {
	New    bool
	Moved  bool
	OldPort ports.PortId
}

// Upsert installs or refreshes a binding. If an entry already exists
// and is Static (or Management) while the incoming kind is Dynamic,
// the existing port and kind are kept and only last_seen is
// refreshed — a Dynamic->Static promotion is allowed, a Static (or
// Management)->Dynamic demotion is not.
func (t *Table) Upsert(mac macaddr.MAC, vid vlan.VlanId, port ports.PortId, kind Kind) (UpsertResult, error) {
	k := key{mac: mac, vid: vid}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := atomic.LoadInt64(&t.clock)

	idx, found := t.findSlotLocked(k)
	if found {
		s := &t.slots[idx]
		if s.kind != Dynamic && kind == Dynamic {
			s.lastSeen = now
			return UpsertResult{}, nil
		}

		moved := s.port != port
		old := s.port
		s.port = port
		s.lastSeen = now
		s.kind = kind
		return UpsertResult{Moved: moved, OldPort: old}, nil
	}

	if t.count >= t.maxSize {
		return UpsertResult{}, l2err.TableFull("mac_upsert", mac.String())
	}

	t.maybeGrowLocked()
	idx, _ = t.findSlotLocked(k)
	wasTombstone := t.slots[idx].state == slotTombstone
	t.slots[idx] = slot{state: slotOccupied, key: k, port: port, kind: kind, lastSeen: now}
	t.count++
	if !wasTombstone {
		t.occupied++
	}
	return UpsertResult{New: true}, nil
}

// Lookup returns the port bound to (mac, vid). A successful lookup
// refreshes last_seen to the table's current clock.
func (t *Table) Lookup(mac macaddr.MAC, vid vlan.VlanId) (ports.PortId, bool) {
	k := key{mac: mac, vid: vid}

	t.mu.Lock()
	defer t.mu.Unlock()

	idx, found := t.findSlotLocked(k)
	if !found {
		return 0, false
	}
	t.slots[idx].lastSeen = atomic.LoadInt64(&t.clock)
	return t.slots[idx].port, true
}

// Get returns a full snapshot of the entry for (mac, vid) without
// refreshing last_seen, e.g. for inspection/CLI display.
func (t *Table) Get(mac macaddr.MAC, vid vlan.VlanId) (Entry, bool) {
	k := key{mac: mac, vid: vid}

	t.mu.Lock()
	defer t.mu.Unlock()

	idx, found := t.findSlotLocked(k)
	if !found {
		return Entry{}, false
	}
	s := t.slots[idx]
	return Entry{MAC: mac, Vlan: vid, Port: s.port, Kind: s.kind, LastSeen: s.lastSeen}, true
}

// Remove deletes the (mac, vid) binding unconditionally.
func (t *Table) Remove(mac macaddr.MAC, vid vlan.VlanId) bool {
	k := key{mac: mac, vid: vid}

	t.mu.Lock()
	defer t.mu.Unlock()

	idx, found := t.findSlotLocked(k)
	if !found {
		return false
	}
	t.slots[idx] = slot{state: slotTombstone}
	t.count--
	return true
}

// Filter selects which entries Flush removes.
type Filter struct {
	Vlan          *vlan.VlanId
	Port          *ports.PortId
	IncludeStatic bool
}

func (f Filter) matches(s slot) bool {
	if !f.IncludeStatic && s.kind != Dynamic {
		return false
	}
	if f.Vlan != nil && s.key.vid != *f.Vlan {
		return false
	}
	if f.Port != nil && s.port != *f.Port {
		return false
	}
	return true
}

// Flush removes every entry matching filter and returns them.
func (t *Table) Flush(filter Filter) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var removed []Entry
	for i := range t.slots {
		s := &t.slots[i]
		if s.state != slotOccupied || !filter.matches(*s) {
			continue
		}
		removed = append(removed, Entry{MAC: s.key.mac, Vlan: s.key.vid, Port: s.port, Kind: s.kind, LastSeen: s.lastSeen})
		*s = slot{state: slotTombstone}
		t.count--
	}
	return removed
}

// Tick advances the table's logical clock to now and ages out every
// Dynamic entry whose last_seen is more than the configured aging
// threshold behind it. It is the sole timer-like operation in the
// table, driven by an external scheduler rather than an internal
// goroutine.
func (t *Table) Tick(now int64) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	atomic.StoreInt64(&t.clock, now)

	var aged []Entry
	for i := range t.slots {
		s := &t.slots[i]
		if s.state != slotOccupied || s.kind != Dynamic {
			continue
		}
		if now-s.lastSeen > t.aging {
			aged = append(aged, Entry{MAC: s.key.mac, Vlan: s.key.vid, Port: s.port, Kind: s.kind, LastSeen: s.lastSeen})
			*s = slot{state: slotTombstone}
			t.count--
		}
	}
	return aged
}

// Count returns the number of live entries.
func (t *Table) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}

// Iterate visits every live entry in unspecified order, stopping
// early if fn returns false.
func (t *Table) Iterate(fn func(Entry) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.slots {
		s := &t.slots[i]
		if s.state != slotOccupied {
			continue
		}
		e := Entry{MAC: s.key.mac, Vlan: s.key.vid, Port: s.port, Kind: s.kind, LastSeen: s.lastSeen}
		if !fn(e) {
			return
		}
	}
}

// Snapshot returns a copy of every live entry.
func (t *Table) Snapshot() []Entry {
	out := make([]Entry, 0, t.Count())
	t.Iterate(func(e Entry) bool {
		out = append(out, e)
		return true
	})
	return out
}
