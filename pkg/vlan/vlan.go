// Package vlan implements VLAN membership and tagging policy:
// per-VLAN membership and untagged-membership bitsets, per-port
// mode/PVID/native/allowed configuration, ingress classification, and
// egress tag decisions for access, trunk, and hybrid ports. Membership
// and trunk-allowed sets are represented with the fixed-capacity bitset
// in pkg/portset rather than a plain map, so membership tests are
// single bit operations.
package vlan

import (
	"fmt"
	"sync"

	"github.com/brindlenet/l2fabric/pkg/l2err"
	"github.com/brindlenet/l2fabric/pkg/portset"
	"github.com/brindlenet/l2fabric/pkg/ports"
)

// VlanId is a VLAN identifier in [1, 4094]; 0 and 4095 are reserved.
type VlanId uint16

const (
	VlanMin     VlanId = 1
	VlanMax     VlanId = 4094
	VlanDefault VlanId = 1

	// vlanCap sizes the allowed-VLAN bitset; indices run 0..VlanMax.
	vlanCap = int(VlanMax) + 1
)

// Valid reports whether v is in the legal VLAN ID range.
func (v VlanId) Valid() bool {
	return v >= VlanMin && v <= VlanMax
}

// PortMode is a port's VLAN participation mode.
type PortMode int

const (
	ModeAccess PortMode = iota
	ModeTrunk
	ModeHybrid
)

func (m PortMode) String() string {
	switch m {
	case ModeAccess:
		return "access"
	case ModeTrunk:
		return "trunk"
	case ModeHybrid:
		return "hybrid"
	default:
		return "unknown"
	}
}

// DropReason names why a frame failed ingress classification or
// egress filtering. The zero value NoDrop means "accepted".
type DropReason string

const (
	NoDrop               DropReason = ""
	DropInvalidTag       DropReason = "invalid_tag"
	DropUnknownVlan      DropReason = "unknown_vlan"
	DropNotMember        DropReason = "not_member"
	DropNotAllowed       DropReason = "not_allowed"
	DropUntaggedRejected DropReason = "untagged_rejected"
)

// vlanRecord is the internal, mutable representation of one active
// VLAN. Callers never see this type directly; VlanView is the
// read-only snapshot handed out by Get/GetAll.
type vlanRecord struct {
	id              VlanId
	name            string
	members         *portset.Set
	untagged        *portset.Set
	active          bool
	learningEnabled bool
	stpEnabled      bool
}

// VlanView is an immutable snapshot of a VLAN record.
type VlanView struct {
	ID              VlanId
	Name            string
	Members         *portset.Set // caller-owned clone
	Untagged        *portset.Set // caller-owned clone
	Active          bool
	LearningEnabled bool
	STPEnabled      bool
}

func (r *vlanRecord) view() VlanView {
	return VlanView{
		ID:              r.id,
		Name:            r.name,
		Members:         r.members.Clone(),
		Untagged:        r.untagged.Clone(),
		Active:          r.active,
		LearningEnabled: r.learningEnabled,
		STPEnabled:      r.stpEnabled,
	}
}

// portConfig is the internal, mutable per-port VLAN configuration.
type portConfig struct {
	mode           PortMode
	pvid           VlanId // meaningful iff mode == ModeAccess
	native         VlanId // meaningful iff mode in {ModeTrunk, ModeHybrid}
	allowed        *portset.Set
	acceptUntagged bool
	acceptTagged   bool
	ingressFilter  bool
}

// PortConfigView is an immutable snapshot of a port's VLAN config.
type PortConfigView struct {
	Mode           PortMode
	PVID           VlanId
	Native         VlanId
	Allowed        *portset.Set
	AcceptUntagged bool
	AcceptTagged   bool
	IngressFilter  bool
}

func (c *portConfig) view() PortConfigView {
	return PortConfigView{
		Mode:           c.mode,
		PVID:           c.pvid,
		Native:         c.native,
		Allowed:        c.allowed.Clone(),
		AcceptUntagged: c.acceptUntagged,
		AcceptTagged:   c.acceptTagged,
		IngressFilter:  c.ingressFilter,
	}
}

// Policy is the VLAN Policy component. It holds a single logical
// reader-writer lock: ingress classification and egress decisions
// take it as reader, administrative mutations take it as writer.
type Policy struct {
	mu       sync.RWMutex
	portMax  int
	registry *ports.Registry
	vlans    map[VlanId]*vlanRecord
	portCfg  map[ports.PortId]*portConfig
}

// NewPolicy creates a Policy with VLAN 1 already active per the
// invariant that the default VLAN always exists.
func NewPolicy(portMax int, registry *ports.Registry) *Policy {
	p := &Policy{
		portMax:  portMax,
		registry: registry,
		vlans:    make(map[VlanId]*vlanRecord),
		portCfg:  make(map[ports.PortId]*portConfig),
	}
	p.vlans[VlanDefault] = &vlanRecord{
		id:              VlanDefault,
		name:            "default",
		members:         portset.New(portMax),
		untagged:        portset.New(portMax),
		active:          true,
		learningEnabled: true,
		stpEnabled:      true,
	}
	return p
}

func resourceVlan(vid VlanId) string { return fmt.Sprintf("vlan %d", vid) }
func resourcePort(p ports.PortId) string { return fmt.Sprintf("port %d", p) }

// ---- Administrative operations --------------------------------------------

// Create activates a new VLAN record with empty membership.
func (p *Policy) Create(vid VlanId, name string) error {
	if !vid.Valid() {
		return l2err.Invalid("vlan_create", resourceVlan(vid), "out of range")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if rec, exists := p.vlans[vid]; exists && rec.active {
		return l2err.AlreadyExists("vlan_create", resourceVlan(vid))
	}

	p.vlans[vid] = &vlanRecord{
		id:              vid,
		name:            name,
		members:         portset.New(p.portMax),
		untagged:        portset.New(p.portMax),
		active:          true,
		learningEnabled: true,
		stpEnabled:      true,
	}
	return nil
}

// Delete deactivates vid: every port whose PVID or native VLAN is vid
// is migrated back to the default VLAN, vid is cleared from every
// port's allowed set, and the record is deactivated. Deleting the
// default VLAN is always forbidden; a full topology reset is handled
// by the caller replaying Delete over each non-default VLAN rather
// than by special-casing VLAN 1 here.
func (p *Policy) Delete(vid VlanId) error {
	if vid == VlanDefault {
		return l2err.Forbidden("vlan_delete", resourceVlan(vid), "default VLAN cannot be deleted")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	rec, exists := p.vlans[vid]
	if !exists || !rec.active {
		return l2err.NotFound("vlan_delete", resourceVlan(vid))
	}

	def := p.vlans[VlanDefault]
	for portID, cfg := range p.portCfg {
		migrated := false
		if cfg.mode == ModeAccess && cfg.pvid == vid {
			cfg.pvid = VlanDefault
			migrated = true
		}
		if cfg.mode != ModeAccess && cfg.native == vid {
			cfg.native = VlanDefault
			cfg.allowed.Add(int(VlanDefault))
			migrated = true
		}
		if migrated {
			def.members.Add(int(portID))
			def.untagged.Add(int(portID))
		}
		cfg.allowed.Remove(int(vid))
	}

	rec.active = false
	rec.members = portset.New(p.portMax)
	rec.untagged = portset.New(p.portMax)
	return nil
}

// SetName renames an active VLAN.
func (p *Policy) SetName(vid VlanId, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, err := p.activeLocked(vid, "vlan_set_name")
	if err != nil {
		return err
	}
	rec.name = name
	return nil
}

func (p *Policy) activeLocked(vid VlanId, op string) (*vlanRecord, error) {
	rec, exists := p.vlans[vid]
	if !exists || !rec.active {
		return nil, l2err.NotFound(op, resourceVlan(vid))
	}
	return rec, nil
}

func (p *Policy) portConfigLocked(port ports.PortId, op string) (*portConfig, error) {
	cfg, exists := p.portCfg[port]
	if !exists {
		return nil, l2err.NotFound(op, resourcePort(port))
	}
	return cfg, nil
}

func (p *Policy) ensurePortRegistered(port ports.PortId, op string) error {
	if p.registry != nil && !p.registry.Exists(port) {
		return l2err.NotFound(op, resourcePort(port))
	}
	return nil
}

// AddPort adds port to vid's membership, tagged or untagged.
func (p *Policy) AddPort(vid VlanId, port ports.PortId, tagged bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensurePortRegistered(port, "vlan_add_port"); err != nil {
		return err
	}
	rec, err := p.activeLocked(vid, "vlan_add_port")
	if err != nil {
		return err
	}

	rec.members.Add(int(port))
	if tagged {
		rec.untagged.Remove(int(port))
	} else {
		rec.untagged.Add(int(port))
	}
	return nil
}

// RemovePort removes port from vid's membership (and untagged set).
// It refuses to remove a port from its own access VLAN or
// trunk/hybrid native VLAN, since that would violate the invariant
// that those VLANs always contain the port.
func (p *Policy) RemovePort(vid VlanId, port ports.PortId) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, err := p.activeLocked(vid, "vlan_remove_port")
	if err != nil {
		return err
	}

	if cfg, exists := p.portCfg[port]; exists {
		if cfg.mode == ModeAccess && cfg.pvid == vid {
			return l2err.Forbidden("vlan_remove_port", resourceVlan(vid), "port's access VLAN cannot be removed")
		}
		if cfg.mode != ModeAccess && cfg.native == vid {
			return l2err.Forbidden("vlan_remove_port", resourceVlan(vid), "port's native VLAN cannot be removed")
		}
	}

	rec.members.Remove(int(port))
	rec.untagged.Remove(int(port))
	return nil
}

// SetTagging flips whether port sends/receives vid tagged or
// untagged. It is Forbidden for a port's own access or native VLAN,
// whose tagging state is fixed by the mode invariants.
func (p *Policy) SetTagging(port ports.PortId, vid VlanId, tagged bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, err := p.activeLocked(vid, "vlan_set_tagging")
	if err != nil {
		return err
	}

	if cfg, exists := p.portCfg[port]; exists {
		if (cfg.mode == ModeAccess && cfg.pvid == vid) ||
			(cfg.mode != ModeAccess && cfg.native == vid) {
			return l2err.Forbidden("vlan_set_tagging", resourceVlan(vid), "cannot tag a port's access/native VLAN")
		}
	}

	if !rec.members.Contains(int(port)) {
		return l2err.NotFound("vlan_set_tagging", resourcePort(port))
	}

	if tagged {
		rec.untagged.Remove(int(port))
	} else {
		rec.untagged.Add(int(port))
	}
	return nil
}

// SetTrunkAllowed adds or removes vid from port's trunk/hybrid allowed
// set. Allowing an active VLAN also makes the port a tagged member of
// it; disallowing removes the port from that VLAN's membership.
// Disallowing the native VLAN is Forbidden.
func (p *Policy) SetTrunkAllowed(port ports.PortId, vid VlanId, allowed bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cfg, err := p.portConfigLocked(port, "port_set_trunk_allowed")
	if err != nil {
		return err
	}
	if cfg.mode == ModeAccess {
		return l2err.InvalidState("port_set_trunk_allowed", resourcePort(port), "port is in access mode")
	}
	if !allowed && vid == cfg.native {
		return l2err.Forbidden("port_set_trunk_allowed", resourceVlan(vid), "native VLAN is always allowed")
	}

	rec, exists := p.vlans[vid]
	if allowed {
		cfg.allowed.Add(int(vid))
		if exists && rec.active {
			rec.members.Add(int(port))
		}
	} else {
		cfg.allowed.Remove(int(vid))
		if exists {
			rec.members.Remove(int(port))
			rec.untagged.Remove(int(port))
		}
	}
	return nil
}

// SetModeAccess atomically swaps port into access mode on vid. Any
// prior access VLAN's untagged membership for this port is cleared
// before the new one is added.
func (p *Policy) SetModeAccess(port ports.PortId, vid VlanId) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensurePortRegistered(port, "port_set_access"); err != nil {
		return err
	}
	rec, err := p.activeLocked(vid, "port_set_access")
	if err != nil {
		return err
	}

	p.clearPriorModeMembershipLocked(port)

	p.portCfg[port] = &portConfig{
		mode:           ModeAccess,
		pvid:           vid,
		allowed:        portset.New(vlanCap),
		acceptUntagged: true,
		acceptTagged:   false,
		ingressFilter:  true,
	}
	rec.members.Add(int(port))
	rec.untagged.Add(int(port))
	return nil
}

// SetModeTrunk atomically swaps port into trunk mode with the given
// native VLAN (defaulting to VlanDefault when native == 0).
func (p *Policy) SetModeTrunk(port ports.PortId, native VlanId) error {
	return p.setModeTrunkOrHybrid(port, native, ModeTrunk, "port_set_trunk")
}

// SetModeHybrid atomically swaps port into hybrid mode with the given
// native VLAN (defaulting to VlanDefault when native == 0).
func (p *Policy) SetModeHybrid(port ports.PortId, native VlanId) error {
	return p.setModeTrunkOrHybrid(port, native, ModeHybrid, "port_set_hybrid")
}

func (p *Policy) setModeTrunkOrHybrid(port ports.PortId, native VlanId, mode PortMode, op string) error {
	if native == 0 {
		native = VlanDefault
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensurePortRegistered(port, op); err != nil {
		return err
	}
	rec, err := p.activeLocked(native, op)
	if err != nil {
		return err
	}

	p.clearPriorModeMembershipLocked(port)

	allowed := portset.New(vlanCap)
	allowed.Add(int(native))

	p.portCfg[port] = &portConfig{
		mode:           mode,
		native:         native,
		allowed:        allowed,
		acceptUntagged: true,
		acceptTagged:   true,
		ingressFilter:  true,
	}
	rec.members.Add(int(port))
	rec.untagged.Add(int(port))
	return nil
}

// clearPriorModeMembershipLocked removes a port from the member and
// untagged sets of its previous access/native VLAN (including the
// default VLAN) before a mode swap. The port remains a member of any
// other VLAN it was separately added to.
func (p *Policy) clearPriorModeMembershipLocked(port ports.PortId) {
	cfg, exists := p.portCfg[port]
	if !exists {
		return
	}

	var priorVid VlanId
	switch cfg.mode {
	case ModeAccess:
		priorVid = cfg.pvid
	default:
		priorVid = cfg.native
	}

	if priorVid == 0 {
		return
	}
	if rec, ok := p.vlans[priorVid]; ok {
		rec.untagged.Remove(int(port))
		rec.members.Remove(int(port))
	}
}

// Get returns a read-only snapshot of vid's record.
func (p *Policy) Get(vid VlanId) (VlanView, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rec, exists := p.vlans[vid]
	if !exists || !rec.active {
		return VlanView{}, l2err.NotFound("vlan_get", resourceVlan(vid))
	}
	return rec.view(), nil
}

// GetAll returns a snapshot of every active VLAN record.
func (p *Policy) GetAll() []VlanView {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]VlanView, 0, len(p.vlans))
	for _, rec := range p.vlans {
		if rec.active {
			out = append(out, rec.view())
		}
	}
	return out
}

// GetByPort returns the VLAN IDs port is a member of.
func (p *Policy) GetByPort(port ports.PortId) []VlanId {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []VlanId
	for vid, rec := range p.vlans {
		if rec.active && rec.members.Contains(int(port)) {
			out = append(out, vid)
		}
	}
	return out
}

// GetPortConfig returns a read-only snapshot of port's VLAN config.
func (p *Policy) GetPortConfig(port ports.PortId) (PortConfigView, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	cfg, exists := p.portCfg[port]
	if !exists {
		return PortConfigView{}, l2err.NotFound("port_get_config", resourcePort(port))
	}
	return cfg.view(), nil
}

// IsActive reports whether vid exists and is active.
func (p *Policy) IsActive(vid VlanId) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rec, exists := p.vlans[vid]
	return exists && rec.active
}

// ---- Ingress classification & egress decision -----------------------------

// Classify resolves the VLAN for an ingress frame according to the
// port's mode, PVID/native VLAN, and accept-tagged setting. tagVid is
// only consulted when tagged is true.
func (p *Policy) Classify(port ports.PortId, tagged bool, tagVid VlanId) (VlanId, DropReason) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	cfg, exists := p.portCfg[port]
	if !exists {
		return 0, DropNotMember
	}

	if tagged {
		if !cfg.acceptTagged || cfg.mode == ModeAccess {
			return 0, DropInvalidTag
		}
		if !tagVid.Valid() {
			return 0, DropUnknownVlan
		}
		rec, ok := p.vlans[tagVid]
		if !ok || !rec.active {
			return 0, DropUnknownVlan
		}
		if cfg.ingressFilter && !rec.members.Contains(int(port)) {
			return 0, DropNotMember
		}
		if (cfg.mode == ModeTrunk || cfg.mode == ModeHybrid) && !cfg.allowed.Contains(int(tagVid)) {
			return 0, DropNotAllowed
		}
		return tagVid, NoDrop
	}

	if !cfg.acceptUntagged {
		return 0, DropUntaggedRejected
	}
	if cfg.mode == ModeAccess {
		return cfg.pvid, NoDrop
	}
	return cfg.native, NoDrop
}

// EgressAction is the outcome of an egress tagging decision.
type EgressAction int

const (
	EgressDrop EgressAction = iota
	EgressUntagged
	EgressTagged
)

// Egress resolves how a frame classified into vid should leave
// dstPort: untagged if dstPort is an untagged member, tagged if it is
// a tagged-only member, or dropped if it is not a member at all.
func (p *Policy) Egress(dstPort ports.PortId, vid VlanId) (EgressAction, DropReason) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rec, exists := p.vlans[vid]
	if !exists || !rec.active || !rec.members.Contains(int(dstPort)) {
		return EgressDrop, DropNotMember
	}
	if rec.untagged.Contains(int(dstPort)) {
		return EgressUntagged, NoDrop
	}
	return EgressTagged, NoDrop
}

// PortEgress pairs a flood-set member with its egress action.
type PortEgress struct {
	Port   ports.PortId
	Action EgressAction
}

// FloodSet computes members(vid) \ {ingress}, excluding
// administratively-disabled or operationally-down ports, and resolves
// the egress action for each survivor independently. Self-forwarding
// exclusion of the ingress port is handled here so the forwarding
// decision component never needs to re-derive it.
func (p *Policy) FloodSet(vid VlanId, ingress ports.PortId) []PortEgress {
	p.mu.RLock()
	defer p.mu.RUnlock()

	rec, exists := p.vlans[vid]
	if !exists || !rec.active {
		return nil
	}

	members := rec.members.Ports()
	out := make([]PortEgress, 0, len(members))
	for _, portInt := range members {
		port := ports.PortId(portInt)
		if port == ingress {
			continue
		}
		if p.registry != nil && !p.registry.OperUp(port) {
			continue
		}
		if rec.untagged.Contains(portInt) {
			out = append(out, PortEgress{Port: port, Action: EgressUntagged})
		} else {
			out = append(out, PortEgress{Port: port, Action: EgressTagged})
		}
	}
	return out
}

// SetLearningEnabled toggles learning for a VLAN.
func (p *Policy) SetLearningEnabled(vid VlanId, enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec, err := p.activeLocked(vid, "vlan_set_learning")
	if err != nil {
		return err
	}
	rec.learningEnabled = enabled
	return nil
}

// LearningEnabled reports a VLAN's learning flag; an inactive or
// unknown VLAN reports false.
func (p *Policy) LearningEnabled(vid VlanId) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	rec, exists := p.vlans[vid]
	return exists && rec.active && rec.learningEnabled
}
