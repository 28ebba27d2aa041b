// Package stp defines the Spanning Tree port-state gate consumed by
// the Learning Controller. The STP state machine itself is not
// computed here — only the per-(port, VLAN) state is modeled, treating
// link state as an externally-driven input rather than something the
// core computes.
package stp

import "github.com/brindlenet/l2fabric/pkg/ports"

// State is a spanning-tree port state for one VLAN instance.
type State int

const (
	Disabled State = iota
	Blocking
	Listening
	Learning
	Forwarding
)

func (s State) String() string {
	switch s {
	case Disabled:
		return "disabled"
	case Blocking:
		return "blocking"
	case Listening:
		return "listening"
	case Learning:
		return "learning"
	case Forwarding:
		return "forwarding"
	default:
		return "unknown"
	}
}

// Gate reports the current STP state for a (port, VLAN) pair. The
// Learning Controller only learns in Forwarding; every other state
// suppresses learning but is never itself an error condition. The
// forwarding decision does not consult the gate.
type Gate interface {
	State(port ports.PortId, vid uint16) State
}

// AlwaysForwarding is a Gate that reports every port Forwarding. It is
// the default gate when no spanning tree protocol is configured.
type AlwaysForwarding struct{}

func (AlwaysForwarding) State(ports.PortId, uint16) State { return Forwarding }

// StaticGate is a Gate backed by an explicit, externally-maintained
// table of per-(port, vid) states — the shape an external STP
// implementation would push updates into.
type StaticGate struct {
	states map[stateKey]State
}

type stateKey struct {
	port ports.PortId
	vid  uint16
}

// NewStaticGate creates a gate where every (port, vid) defaults to
// Forwarding until explicitly overridden with Set.
func NewStaticGate() *StaticGate {
	return &StaticGate{states: make(map[stateKey]State)}
}

// Set records the STP state an external protocol instance has
// computed for (port, vid).
func (g *StaticGate) Set(port ports.PortId, vid uint16, state State) {
	g.states[stateKey{port: port, vid: vid}] = state
}

// State implements Gate.
func (g *StaticGate) State(port ports.PortId, vid uint16) State {
	if s, ok := g.states[stateKey{port: port, vid: vid}]; ok {
		return s
	}
	return Forwarding
}
