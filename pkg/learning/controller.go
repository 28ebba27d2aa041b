// Package learning implements the Learning Controller: the
// ingress pipeline stage that rate-limits learning, consults the STP
// gate, invokes the MAC Table upsert, and signals learn/move/
// rate-limit/table-full events (aging events come from the engine's
// Tick). It pulls the per-frame source-MAC learn step out of the
// forwarding loop into its own component with explicit per-port rate
// limiting and STP gating.
package learning

import (
	"sync"

	"github.com/brindlenet/l2fabric/pkg/events"
	"github.com/brindlenet/l2fabric/pkg/l2err"
	"github.com/brindlenet/l2fabric/pkg/mactable"
	"github.com/brindlenet/l2fabric/pkg/macaddr"
	"github.com/brindlenet/l2fabric/pkg/ports"
	"github.com/brindlenet/l2fabric/pkg/stp"
	"github.com/brindlenet/l2fabric/pkg/vlan"
)

// DefaultRate is the default per-port, per-second learning budget R.
const DefaultRate = 100

type rateWindow struct {
	start       int64
	count       int
	rateLimited bool
}

// Controller drives MAC learning for ingress frames.
type Controller struct {
	mu sync.Mutex

	table    *mactable.Table
	registry *ports.Registry
	policy   *vlan.Policy
	stpGate  stp.Gate
	bus      *events.Bus

	rate int64 // R, learn events per port per second
	now  int64

	globalLearningEnabled bool
	portLearningEnabled   map[ports.PortId]bool
	windows               map[ports.PortId]*rateWindow

	tableFullCount        uint64
	tableFullWarnedWindow bool
}

// NewController wires a Learning Controller over the given
// collaborators. gate may be nil, in which case stp.AlwaysForwarding
// is used (no spanning tree configured).
func NewController(table *mactable.Table, registry *ports.Registry, policy *vlan.Policy, gate stp.Gate, bus *events.Bus) *Controller {
	if gate == nil {
		gate = stp.AlwaysForwarding{}
	}
	return &Controller{
		table:                 table,
		registry:              registry,
		policy:                policy,
		stpGate:               gate,
		bus:                   bus,
		rate:                  DefaultRate,
		globalLearningEnabled: true,
		portLearningEnabled:   make(map[ports.PortId]bool),
		windows:               make(map[ports.PortId]*rateWindow),
	}
}

// SetGate swaps the STP gate consulted by Ingress, e.g. once an
// external spanning-tree implementation comes online after boot.
func (c *Controller) SetGate(gate stp.Gate) {
	if gate == nil {
		gate = stp.AlwaysForwarding{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stpGate = gate
}

// SetRate changes the per-port, per-second learning budget R.
func (c *Controller) SetRate(r int64) error {
	if r <= 0 {
		return l2err.Invalid("learning_set_rate", "", "rate must be positive")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rate = r
	return nil
}

// SetGlobalLearningEnabled toggles learning for the entire engine.
func (c *Controller) SetGlobalLearningEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.globalLearningEnabled = enabled
}

// SetPortLearningEnabled toggles learning for a single port.
func (c *Controller) SetPortLearningEnabled(port ports.PortId, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.portLearningEnabled[port] = enabled
}

func (c *Controller) portLearningEnabledLocked(port ports.PortId) bool {
	enabled, ok := c.portLearningEnabled[port]
	if !ok {
		return true
	}
	return enabled
}

// TableFullCount returns the number of TableFull occurrences observed
// on the learning path since start.
func (c *Controller) TableFullCount() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tableFullCount
}

// Tick advances the controller's logical clock, rolling over any
// per-port rate-limit window whose second has elapsed and resetting
// the TableFull warning-once-per-window flag.
func (c *Controller) Tick(now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
	for _, w := range c.windows {
		if now-w.start >= 1 {
			w.start = now
			w.count = 0
			w.rateLimited = false
		}
	}
	c.tableFullWarnedWindow = false
}

// windowLocked returns (and lazily creates) the rate window for port.
func (c *Controller) windowLocked(port ports.PortId) *rateWindow {
	w, ok := c.windows[port]
	if !ok {
		w = &rateWindow{start: c.now}
		c.windows[port] = w
	}
	return w
}

// Ingress runs the full learning pipeline for a classified frame's
// source MAC, steps 1-7.
func (c *Controller) Ingress(port ports.PortId, vid vlan.VlanId, src macaddr.MAC) {
	if src.IsMulticast() || src.IsBroadcast() {
		return
	}
	if !c.registry.OperUp(port) {
		return
	}
	if !c.policy.IsActive(vid) {
		return
	}

	c.mu.Lock()
	if !c.globalLearningEnabled {
		c.mu.Unlock()
		return
	}
	if !c.policy.LearningEnabled(vid) {
		c.mu.Unlock()
		return
	}
	if !c.portLearningEnabledLocked(port) {
		c.mu.Unlock()
		return
	}
	gate := c.stpGate
	c.mu.Unlock()

	if gate.State(port, uint16(vid)) != stp.Forwarding {
		return
	}

	// A refresh of an already-learned binding on the same port (or a
	// table-protected Static/Management entry) does not consume the
	// rate-limit window — only a new entry or a move does.
	existing, found := c.table.Get(src, vid)
	countsAgainstRate := !found || (existing.Kind == mactable.Dynamic && existing.Port != port)

	if countsAgainstRate {
		c.mu.Lock()
		w := c.windowLocked(port)
		alreadyLimited := w.rateLimited
		withinBudget := int64(w.count) < c.rate
		if withinBudget {
			w.count++
		} else if !alreadyLimited {
			w.rateLimited = true
		}
		rateLimitedNow := !withinBudget
		justTransitioned := rateLimitedNow && !alreadyLimited
		c.mu.Unlock()

		if rateLimitedNow {
			if justTransitioned && c.bus != nil {
				c.bus.Publish(events.Event{Kind: events.RateLimited, Port: port})
			}
			return
		}
	}

	res, err := c.table.Upsert(src, vid, port, mactable.Dynamic)
	if err != nil {
		c.mu.Lock()
		c.tableFullCount++
		warn := !c.tableFullWarnedWindow
		if warn {
			c.tableFullWarnedWindow = true
		}
		c.mu.Unlock()
		if warn && c.bus != nil {
			c.bus.Publish(events.Event{Kind: events.TableFull, MAC: src, Vlan: vid, Port: port})
		}
		return
	}

	if c.bus == nil {
		return
	}
	switch {
	case res.New:
		c.bus.Publish(events.Event{Kind: events.MacLearned, MAC: src, Vlan: vid, Port: port})
	case res.Moved:
		c.bus.Publish(events.Event{Kind: events.MacMoved, MAC: src, Vlan: vid, Port: port, OldPort: res.OldPort})
	}
}
