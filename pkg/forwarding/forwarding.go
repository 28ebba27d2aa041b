// Package forwarding implements the Forwarding Decision: given
// a classified ingress frame, resolve either a single egress port (a
// known unicast destination) or a flood set (broadcast, multicast, or
// unknown unicast), deferring tag handling to the VLAN Policy's egress
// rule on each candidate port. The shape follows a classic forwarding
// loop (MAC table lookup, then unicast send or flood-to-all), carrying
// VLAN tag rewriting decisions alongside the destination instead of
// assuming a single untagged domain.
package forwarding

import (
	"github.com/brindlenet/l2fabric/pkg/mactable"
	"github.com/brindlenet/l2fabric/pkg/macaddr"
	"github.com/brindlenet/l2fabric/pkg/ports"
	"github.com/brindlenet/l2fabric/pkg/vlan"
)

// TagOpKind is the kind of 802.1Q tag rewrite to apply on egress.
type TagOpKind int

const (
	TagNone TagOpKind = iota
	TagAdd
	TagStrip
	TagRewrite
)

// TagOp is the tag rewrite to apply to one emission. Vid is only
// meaningful for TagAdd and TagRewrite.
type TagOp struct {
	Kind TagOpKind
	Vid  vlan.VlanId
}

// ActionKind distinguishes the shape of a Decision.
type ActionKind int

const (
	ActionDrop ActionKind = iota
	ActionUnicast
	ActionFlood
)

// Emission is one (port, tag operation) pair produced for a flooded
// frame.
type Emission struct {
	Port  ports.PortId
	TagOp TagOp
}

// Decision is the outcome of resolving a classified frame.
type Decision struct {
	Kind      ActionKind
	DropReason vlan.DropReason

	UnicastPort ports.PortId
	UnicastTag  TagOp

	Emissions []Emission
}

// Resolver combines the MAC Table and VLAN Policy to turn a
// classified (vid, dst, ingress_port) triple into a forwarding
// decision.
type Resolver struct {
	table  *mactable.Table
	policy *vlan.Policy
}

// NewResolver creates a Resolver over the given MAC table and VLAN
// policy.
func NewResolver(table *mactable.Table, policy *vlan.Policy) *Resolver {
	return &Resolver{table: table, policy: policy}
}

func tagOpFor(action vlan.EgressAction, vid vlan.VlanId) TagOp {
	switch action {
	case vlan.EgressUntagged:
		return TagOp{Kind: TagStrip}
	case vlan.EgressTagged:
		return TagOp{Kind: TagAdd, Vid: vid}
	default:
		return TagOp{Kind: TagNone}
	}
}

// Resolve decides the forwarding action for a frame already
// classified into vid, with destination dst and the given ingress
// port. Self-forwarding (egress == ingress) is never produced.
func (r *Resolver) Resolve(ingress ports.PortId, vid vlan.VlanId, dst macaddr.MAC) Decision {
	if dst.IsMulticast() || dst.IsBroadcast() {
		return r.flood(ingress, vid)
	}

	port, found := r.table.Lookup(dst, vid)
	if !found {
		return r.flood(ingress, vid)
	}
	if port == ingress {
		// Destination resolves back to the ingress port: nothing to
		// do, but this is not a drop condition — it simply yields a
		// flood decision with no emissions.
		return Decision{Kind: ActionFlood}
	}

	action, reason := r.policy.Egress(port, vid)
	if action == vlan.EgressDrop {
		return Decision{Kind: ActionDrop, DropReason: reason}
	}
	return Decision{Kind: ActionUnicast, UnicastPort: port, UnicastTag: tagOpFor(action, vid)}
}

func (r *Resolver) flood(ingress ports.PortId, vid vlan.VlanId) Decision {
	candidates := r.policy.FloodSet(vid, ingress)
	emissions := make([]Emission, 0, len(candidates))
	for _, c := range candidates {
		emissions = append(emissions, Emission{Port: c.Port, TagOp: tagOpFor(c.Action, vid)})
	}
	return Decision{Kind: ActionFlood, Emissions: emissions}
}
