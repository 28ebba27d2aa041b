// Package engine wires the Port Registry, VLAN Policy, MAC Table,
// Learning Controller, Forwarding Decision resolver, STP gate, and
// Event Bus into a single administrative/data-plane facade, consumed
// by a SAI-style object adapter, a CLI, or the traffic pipeline. It
// gathers port/vlan/mactable state behind one type with a Start/Stop
// lifecycle. Start and Stop are logged through pkg/l2log; individual
// operations and published events are not logged.
package engine

import (
	"sync"

	"github.com/brindlenet/l2fabric/pkg/events"
	"github.com/brindlenet/l2fabric/pkg/forwarding"
	"github.com/brindlenet/l2fabric/pkg/l2config"
	"github.com/brindlenet/l2fabric/pkg/l2err"
	"github.com/brindlenet/l2fabric/pkg/l2log"
	"github.com/brindlenet/l2fabric/pkg/learning"
	"github.com/brindlenet/l2fabric/pkg/macaddr"
	"github.com/brindlenet/l2fabric/pkg/mactable"
	"github.com/brindlenet/l2fabric/pkg/ports"
	"github.com/brindlenet/l2fabric/pkg/stp"
	"github.com/brindlenet/l2fabric/pkg/vlan"
)

// Engine is the top-level L2 forwarding engine.
type Engine struct {
	mu      sync.RWMutex
	started bool

	cfg      l2config.Config
	registry *ports.Registry
	policy   *vlan.Policy
	mac      *mactable.Table
	bus      *events.Bus
	learn    *learning.Controller
	fwd      *forwarding.Resolver
}

// New constructs an Engine from cfg without starting it. Administrative
// and data-plane calls fail with ErrNotInitialized until Start is called;
// Tick, SetSTPGate, Subscribe and Unsubscribe work regardless.
func New(cfg l2config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	registry := ports.NewRegistry(cfg.PortMax)
	policy := vlan.NewPolicy(cfg.PortMax, registry)
	mac := mactable.NewTable(cfg.MacTableMax, int64(cfg.AgingSeconds))
	bus := events.NewBus()
	learn := learning.NewController(mac, registry, policy, stp.AlwaysForwarding{}, bus)
	if err := learn.SetRate(int64(cfg.LearnRate)); err != nil {
		return nil, err
	}
	fwd := forwarding.NewResolver(mac, policy)

	return &Engine{
		cfg:      cfg,
		registry: registry,
		policy:   policy,
		mac:      mac,
		bus:      bus,
		learn:    learn,
		fwd:      fwd,
	}, nil
}

// Start brings the engine into service.
func (e *Engine) Start() {
	e.mu.Lock()
	e.started = true
	e.mu.Unlock()
	l2log.WithField("port_max", e.cfg.PortMax).Info("engine started")
}

// Stop takes the engine out of service. Internal state is left
// intact; Start may be called again.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.started = false
	e.mu.Unlock()
	l2log.Logger.Info("engine stopped")
}

func (e *Engine) requireStarted(op string) error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.started {
		return l2err.NotInitialized(op)
	}
	return nil
}

// SetSTPGate installs an externally-driven STP gate, replacing the
// default AlwaysForwarding gate.
func (e *Engine) SetSTPGate(gate stp.Gate) {
	e.learn.SetGate(gate)
}

// ---- Port provisioning (bootstrap by the external config loader) ---------

// PortAdd registers a new port, administratively down until configured.
func (e *Engine) PortAdd(port ports.PortId) error {
	if err := e.requireStarted("port_add"); err != nil {
		return err
	}
	return e.registry.Add(port)
}

// PortRemove deregisters a port entirely.
func (e *Engine) PortRemove(port ports.PortId) error {
	if err := e.requireStarted("port_remove"); err != nil {
		return err
	}
	return e.registry.Remove(port)
}

// PortSetAdminState sets a port's administrative state.
func (e *Engine) PortSetAdminState(port ports.PortId, up bool) error {
	if err := e.requireStarted("port_set_admin_state"); err != nil {
		return err
	}
	return e.registry.SetAdminState(port, up)
}

// NotifyPortState records an operational link-state change. On a
// down-transition it flushes every Dynamic MAC binding on that port.
func (e *Engine) NotifyPortState(port ports.PortId, up bool) error {
	if err := e.requireStarted("notify_port_state"); err != nil {
		return err
	}
	was, now, err := e.registry.SetOperState(port, up)
	if err != nil {
		return err
	}
	e.bus.Publish(events.Event{Kind: events.PortStateChanged, Port: port})

	if was && !now {
		removed := e.mac.Flush(mactable.Filter{Port: &port})
		if len(removed) > 0 {
			e.bus.Publish(events.Event{Kind: events.MacFlushed, Port: port, Count: len(removed)})
		}
	}
	return nil
}

// ---- VLAN administrative operations ---------------------------------------

func (e *Engine) VlanCreate(vid vlan.VlanId, name string) error {
	if err := e.requireStarted("vlan_create"); err != nil {
		return err
	}
	if err := e.policy.Create(vid, name); err != nil {
		return err
	}
	e.bus.Publish(events.Event{Kind: events.VlanCreated, Vlan: vid, Name: name})
	return nil
}

func (e *Engine) VlanDelete(vid vlan.VlanId) error {
	if err := e.requireStarted("vlan_delete"); err != nil {
		return err
	}
	if err := e.policy.Delete(vid); err != nil {
		return err
	}
	e.mac.Flush(mactable.Filter{Vlan: &vid, IncludeStatic: true})
	e.bus.Publish(events.Event{Kind: events.VlanDeleted, Vlan: vid})
	return nil
}

func (e *Engine) VlanSetName(vid vlan.VlanId, name string) error {
	if err := e.requireStarted("vlan_set_name"); err != nil {
		return err
	}
	return e.policy.SetName(vid, name)
}

func (e *Engine) VlanAddPort(vid vlan.VlanId, port ports.PortId, tagged bool) error {
	if err := e.requireStarted("vlan_add_port"); err != nil {
		return err
	}
	if err := e.policy.AddPort(vid, port, tagged); err != nil {
		return err
	}
	e.bus.Publish(events.Event{Kind: events.VlanPortChanged, Vlan: vid, Port: port})
	return nil
}

func (e *Engine) VlanRemovePort(vid vlan.VlanId, port ports.PortId) error {
	if err := e.requireStarted("vlan_remove_port"); err != nil {
		return err
	}
	if err := e.policy.RemovePort(vid, port); err != nil {
		return err
	}
	e.bus.Publish(events.Event{Kind: events.VlanPortChanged, Vlan: vid, Port: port})
	return nil
}

func (e *Engine) VlanSetTagging(port ports.PortId, vid vlan.VlanId, tagged bool) error {
	if err := e.requireStarted("vlan_set_tagging"); err != nil {
		return err
	}
	if err := e.policy.SetTagging(port, vid, tagged); err != nil {
		return err
	}
	e.bus.Publish(events.Event{Kind: events.VlanPortChanged, Vlan: vid, Port: port})
	return nil
}

func (e *Engine) PortSetAccess(port ports.PortId, vid vlan.VlanId) error {
	if err := e.requireStarted("port_set_access"); err != nil {
		return err
	}
	if err := e.policy.SetModeAccess(port, vid); err != nil {
		return err
	}
	e.bus.Publish(events.Event{Kind: events.VlanPortChanged, Vlan: vid, Port: port})
	return nil
}

func (e *Engine) PortSetTrunk(port ports.PortId, native vlan.VlanId) error {
	if err := e.requireStarted("port_set_trunk"); err != nil {
		return err
	}
	if err := e.policy.SetModeTrunk(port, native); err != nil {
		return err
	}
	e.bus.Publish(events.Event{Kind: events.VlanPortChanged, Vlan: native, Port: port})
	return nil
}

func (e *Engine) PortSetHybrid(port ports.PortId, native vlan.VlanId) error {
	if err := e.requireStarted("port_set_hybrid"); err != nil {
		return err
	}
	if err := e.policy.SetModeHybrid(port, native); err != nil {
		return err
	}
	e.bus.Publish(events.Event{Kind: events.VlanPortChanged, Vlan: native, Port: port})
	return nil
}

func (e *Engine) PortSetTrunkAllowed(port ports.PortId, vid vlan.VlanId, allowed bool) error {
	if err := e.requireStarted("port_set_trunk_allowed"); err != nil {
		return err
	}
	if err := e.policy.SetTrunkAllowed(port, vid, allowed); err != nil {
		return err
	}
	e.bus.Publish(events.Event{Kind: events.VlanPortChanged, Vlan: vid, Port: port})
	return nil
}

func (e *Engine) VlanGet(vid vlan.VlanId) (vlan.VlanView, error) {
	if err := e.requireStarted("vlan_get"); err != nil {
		return vlan.VlanView{}, err
	}
	return e.policy.Get(vid)
}

func (e *Engine) VlanGetAll() ([]vlan.VlanView, error) {
	if err := e.requireStarted("vlan_get_all"); err != nil {
		return nil, err
	}
	return e.policy.GetAll(), nil
}

func (e *Engine) VlanGetByPort(port ports.PortId) ([]vlan.VlanId, error) {
	if err := e.requireStarted("vlan_get_by_port"); err != nil {
		return nil, err
	}
	return e.policy.GetByPort(port), nil
}

func (e *Engine) PortGetConfig(port ports.PortId) (vlan.PortConfigView, error) {
	if err := e.requireStarted("port_get_config"); err != nil {
		return vlan.PortConfigView{}, err
	}
	return e.policy.GetPortConfig(port)
}

// ---- MAC Table administrative operations -----------------------------------

func (e *Engine) MacAddStatic(mac macaddr.MAC, vid vlan.VlanId, port ports.PortId) error {
	if err := e.requireStarted("mac_add_static"); err != nil {
		return err
	}
	_, err := e.mac.Upsert(mac, vid, port, mactable.Static)
	return err
}

func (e *Engine) MacDelete(mac macaddr.MAC, vid vlan.VlanId) error {
	if err := e.requireStarted("mac_delete"); err != nil {
		return err
	}
	if !e.mac.Remove(mac, vid) {
		return l2err.NotFound("mac_delete", mac.String())
	}
	return nil
}

func (e *Engine) MacLookup(mac macaddr.MAC, vid vlan.VlanId) (ports.PortId, error) {
	if err := e.requireStarted("mac_lookup"); err != nil {
		return 0, err
	}
	port, found := e.mac.Lookup(mac, vid)
	if !found {
		return 0, l2err.NotFound("mac_lookup", mac.String())
	}
	return port, nil
}

// MacFlush removes entries matching filter and emits a single
// MacFlushed summary event when anything was removed.
func (e *Engine) MacFlush(filter mactable.Filter) (int, error) {
	if err := e.requireStarted("mac_flush"); err != nil {
		return 0, err
	}
	removed := e.mac.Flush(filter)
	if len(removed) > 0 {
		e.bus.Publish(events.Event{Kind: events.MacFlushed, Count: len(removed)})
	}
	return len(removed), nil
}

func (e *Engine) MacGetCount() (int, error) {
	if err := e.requireStarted("mac_get_count"); err != nil {
		return 0, err
	}
	return e.mac.Count(), nil
}

// MacIterate visits every live entry via fn, stopping early if fn
// returns false.
func (e *Engine) MacIterate(fn func(mactable.Entry) bool) error {
	if err := e.requireStarted("mac_iterate"); err != nil {
		return err
	}
	e.mac.Iterate(fn)
	return nil
}

func (e *Engine) MacSetAging(seconds int64) error {
	if err := e.requireStarted("mac_set_aging"); err != nil {
		return err
	}
	return e.mac.SetAging(seconds)
}

// ---- Pipeline operations ----------------------------------------------------

// IngressClassify resolves the VLAN for an ingress frame, or a drop
// reason if it cannot be classified.
func (e *Engine) IngressClassify(port ports.PortId, tagged bool, tagVid vlan.VlanId) (vlan.VlanId, vlan.DropReason, error) {
	if err := e.requireStarted("ingress_classify"); err != nil {
		return 0, vlan.NoDrop, err
	}
	vid, reason := e.policy.Classify(port, tagged, tagVid)
	return vid, reason, nil
}

// L2Process runs the full per-frame pipeline: learning on the source
// MAC, then a forwarding decision for the destination MAC, within an
// already-classified VLAN.
func (e *Engine) L2Process(port ports.PortId, src, dst macaddr.MAC, vid vlan.VlanId) (forwarding.Decision, error) {
	if err := e.requireStarted("l2_process"); err != nil {
		return forwarding.Decision{}, err
	}
	e.learn.Ingress(port, vid, src)
	return e.fwd.Resolve(port, vid, dst), nil
}

// EgressDecision resolves how a frame classified into vid should
// leave dstPort: untagged, tagged, or dropped.
func (e *Engine) EgressDecision(port ports.PortId, vid vlan.VlanId) (vlan.EgressAction, vlan.DropReason, error) {
	if err := e.requireStarted("egress_decision"); err != nil {
		return vlan.EgressDrop, vlan.NoDrop, err
	}
	action, reason := e.policy.Egress(port, vid)
	return action, reason, nil
}

// Tick drives aging and rate-limit window rollover from an external
// monotonic clock. It is the engine's only timer-like operation; the
// core has no timer of its own.
func (e *Engine) Tick(nowSeconds int64) {
	aged := e.mac.Tick(nowSeconds)
	for _, entry := range aged {
		e.bus.Publish(events.Event{Kind: events.MacAged, MAC: entry.MAC, Vlan: entry.Vlan, Port: entry.Port, At: nowSeconds})
	}
	e.learn.Tick(nowSeconds)
}

// ---- Event Bus --------------------------------------------------------------

// Subscribe registers callback for the given event kinds (or every
// kind, if none given).
func (e *Engine) Subscribe(kinds []events.Kind, callback events.Callback) events.Handle {
	return e.bus.Subscribe(kinds, callback)
}

// Unsubscribe removes a previously-registered subscription.
func (e *Engine) Unsubscribe(h events.Handle) {
	e.bus.Unsubscribe(h)
}
