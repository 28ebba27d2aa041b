package vlan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brindlenet/l2fabric/pkg/l2err"
	"github.com/brindlenet/l2fabric/pkg/ports"
	"github.com/brindlenet/l2fabric/pkg/vlan"
)

func newPolicyWithPorts(t *testing.T, n int) (*vlan.Policy, *ports.Registry) {
	t.Helper()
	reg := ports.NewRegistry(64)
	for i := 0; i < n; i++ {
		require.NoError(t, reg.Add(ports.PortId(i)))
		require.NoError(t, reg.SetAdminState(ports.PortId(i), true))
		_, _, err := reg.SetOperState(ports.PortId(i), true)
		require.NoError(t, err)
	}
	return vlan.NewPolicy(64, reg), reg
}

func TestDefaultVlanAlwaysActive(t *testing.T) {
	p, _ := newPolicyWithPorts(t, 1)
	v, err := p.Get(vlan.VlanDefault)
	require.NoError(t, err)
	assert.True(t, v.Active)
}

func TestCreateDuplicateFails(t *testing.T) {
	p, _ := newPolicyWithPorts(t, 1)
	require.NoError(t, p.Create(10, "ten"))
	err := p.Create(10, "ten-again")
	assert.ErrorIs(t, err, l2err.ErrAlreadyExists)
}

func TestDeleteDefaultForbidden(t *testing.T) {
	p, _ := newPolicyWithPorts(t, 1)
	err := p.Delete(vlan.VlanDefault)
	assert.ErrorIs(t, err, l2err.ErrForbidden)
}

func TestDeleteMigratesAccessPortsToDefault(t *testing.T) {
	p, _ := newPolicyWithPorts(t, 1)
	require.NoError(t, p.Create(10, "ten"))
	require.NoError(t, p.SetModeAccess(0, 10))

	require.NoError(t, p.Delete(10))

	cfg, err := p.GetPortConfig(0)
	require.NoError(t, err)
	assert.Equal(t, vlan.VlanDefault, cfg.PVID)

	def, err := p.Get(vlan.VlanDefault)
	require.NoError(t, err)
	assert.True(t, def.Members.Contains(0))
	assert.True(t, def.Untagged.Contains(0))

	_, err = p.Get(10)
	assert.ErrorIs(t, err, l2err.ErrNotFound)
}

func TestAccessModeInvariant(t *testing.T) {
	p, _ := newPolicyWithPorts(t, 1)
	require.NoError(t, p.Create(10, "ten"))
	require.NoError(t, p.SetModeAccess(0, 10))

	v, err := p.Get(10)
	require.NoError(t, err)
	assert.True(t, v.Members.Contains(0))
	assert.True(t, v.Untagged.Contains(0))
}

func TestTrunkModeNativeAlwaysAllowed(t *testing.T) {
	p, _ := newPolicyWithPorts(t, 1)
	require.NoError(t, p.SetModeTrunk(0, vlan.VlanDefault))

	cfg, err := p.GetPortConfig(0)
	require.NoError(t, err)
	assert.True(t, cfg.Allowed.Contains(int(vlan.VlanDefault)))

	err = p.SetTrunkAllowed(0, vlan.VlanDefault, false)
	assert.ErrorIs(t, err, l2err.ErrForbidden)
}

func TestSetTaggingForbiddenOnNativeVlan(t *testing.T) {
	p, _ := newPolicyWithPorts(t, 1)
	require.NoError(t, p.SetModeTrunk(0, vlan.VlanDefault))
	err := p.SetTagging(0, vlan.VlanDefault, true)
	assert.ErrorIs(t, err, l2err.ErrForbidden)
}

// TestTrunkTagRewriting is scenario S3: a trunk port with native=1,
// allowed={1,10,20} emits tagged vid=10 for a frame that arrived
// untagged on an access port in VLAN 10, and symmetrically strips the
// tag for the reverse direction.
func TestTrunkTagRewriting(t *testing.T) {
	p, reg := newPolicyWithPorts(t, 2)
	require.NoError(t, reg.Add(4))
	require.NoError(t, reg.SetAdminState(4, true))
	_, _, err := reg.SetOperState(4, true)
	require.NoError(t, err)

	require.NoError(t, p.Create(10, "ten"))
	require.NoError(t, p.Create(20, "twenty"))
	require.NoError(t, p.SetModeAccess(0, 10))
	require.NoError(t, p.SetModeTrunk(4, vlan.VlanDefault))
	require.NoError(t, p.SetTrunkAllowed(4, 10, true))
	require.NoError(t, p.SetTrunkAllowed(4, 20, true))

	vidIn, reason := p.Classify(0, false, 0)
	require.Equal(t, vlan.NoDrop, reason)
	assert.Equal(t, vlan.VlanId(10), vidIn)

	action, reason := p.Egress(4, vidIn)
	require.Equal(t, vlan.NoDrop, reason)
	assert.Equal(t, vlan.EgressTagged, action)

	vidBack, reason := p.Classify(4, true, 10)
	require.Equal(t, vlan.NoDrop, reason)
	action, reason = p.Egress(0, vidBack)
	require.Equal(t, vlan.NoDrop, reason)
	assert.Equal(t, vlan.EgressUntagged, action)
}

// TestVlanIsolation is scenario S4: port 0 in VLAN 10, port 2 in VLAN
// 20 only; egress for VLAN 10 never includes port 2.
func TestVlanIsolation(t *testing.T) {
	p, _ := newPolicyWithPorts(t, 3)
	require.NoError(t, p.Create(10, "ten"))
	require.NoError(t, p.Create(20, "twenty"))
	require.NoError(t, p.SetModeAccess(0, 10))
	require.NoError(t, p.SetModeAccess(2, 20))

	flood := p.FloodSet(10, 0)
	for _, pe := range flood {
		assert.NotEqual(t, ports.PortId(2), pe.Port)
	}

	_, reason := p.Egress(2, 10)
	assert.Equal(t, vlan.DropNotMember, reason)
}

func TestIngressTaggedNotAllowedOnTrunk(t *testing.T) {
	p, _ := newPolicyWithPorts(t, 1)
	require.NoError(t, p.Create(30, "thirty"))
	require.NoError(t, p.SetModeTrunk(0, vlan.VlanDefault))
	require.NoError(t, p.AddPort(30, 0, true))
	// port 0 is a member of 30, but 30 is not in the allowed set
	_, reason := p.Classify(0, true, 30)
	assert.Equal(t, vlan.DropNotAllowed, reason)
}

func TestIngressTaggedRejectedOnAccessPort(t *testing.T) {
	p, _ := newPolicyWithPorts(t, 1)
	require.NoError(t, p.SetModeAccess(0, vlan.VlanDefault))
	_, reason := p.Classify(0, true, vlan.VlanDefault)
	assert.Equal(t, vlan.DropInvalidTag, reason)
}

func TestFloodSetExcludesIngressAndOperDownPorts(t *testing.T) {
	p, reg := newPolicyWithPorts(t, 3)
	require.NoError(t, p.SetModeAccess(0, vlan.VlanDefault))
	require.NoError(t, p.SetModeAccess(1, vlan.VlanDefault))
	require.NoError(t, p.SetModeAccess(2, vlan.VlanDefault))

	_, _, err := reg.SetOperState(2, false)
	require.NoError(t, err)

	flood := p.FloodSet(vlan.VlanDefault, 0)
	var seen []ports.PortId
	for _, pe := range flood {
		seen = append(seen, pe.Port)
	}
	assert.Equal(t, []ports.PortId{1}, seen)
}

func TestUntaggedSubsetOfMembersInvariant(t *testing.T) {
	p, _ := newPolicyWithPorts(t, 1)
	require.NoError(t, p.Create(10, "ten"))
	require.NoError(t, p.AddPort(10, 0, true))

	v, err := p.Get(10)
	require.NoError(t, err)
	assert.True(t, v.Untagged.IsSubsetOf(v.Members))
}
