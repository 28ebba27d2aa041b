package mactable_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brindlenet/l2fabric/pkg/l2err"
	"github.com/brindlenet/l2fabric/pkg/macaddr"
	"github.com/brindlenet/l2fabric/pkg/mactable"
	"github.com/brindlenet/l2fabric/pkg/ports"
	"github.com/brindlenet/l2fabric/pkg/vlan"
)

func mustMAC(t *testing.T, s string) macaddr.MAC {
	t.Helper()
	m, err := macaddr.Parse(s)
	require.NoError(t, err)
	return m
}

func TestUpsertNewEntryLearned(t *testing.T) {
	tbl := mactable.NewTable(16, 300)
	m := mustMAC(t, "00:11:22:33:44:55")

	res, err := tbl.Upsert(m, 10, 0, mactable.Dynamic)
	require.NoError(t, err)
	assert.True(t, res.New)
	assert.False(t, res.Moved)

	port, found := tbl.Lookup(m, 10)
	require.True(t, found)
	assert.Equal(t, ports.PortId(0), port)
}

// TestUpsertMoveDetection is scenario S2: a second upsert of the same
// (mac, vid) on a different port reports Moved with the old port.
func TestUpsertMoveDetection(t *testing.T) {
	tbl := mactable.NewTable(16, 300)
	m := mustMAC(t, "00:11:22:33:44:55")

	_, err := tbl.Upsert(m, 10, 0, mactable.Dynamic)
	require.NoError(t, err)

	res, err := tbl.Upsert(m, 10, 1, mactable.Dynamic)
	require.NoError(t, err)
	assert.True(t, res.Moved)
	assert.Equal(t, ports.PortId(0), res.OldPort)

	port, found := tbl.Lookup(m, 10)
	require.True(t, found)
	assert.Equal(t, ports.PortId(1), port)
}

// TestStaticNeverDemoted covers invariant: kind=Static is never
// overwritten by learning (a Dynamic upsert of an existing Static
// entry keeps the existing port and kind).
func TestStaticNeverDemoted(t *testing.T) {
	tbl := mactable.NewTable(16, 300)
	m := mustMAC(t, "00:11:22:33:44:66")

	_, err := tbl.Upsert(m, 10, 5, mactable.Static)
	require.NoError(t, err)

	res, err := tbl.Upsert(m, 10, 9, mactable.Dynamic)
	require.NoError(t, err)
	assert.False(t, res.Moved)

	port, found := tbl.Lookup(m, 10)
	require.True(t, found)
	assert.Equal(t, ports.PortId(5), port, "static entry's port must survive a dynamic learn")
}

func TestDynamicToStaticPromotionAllowed(t *testing.T) {
	tbl := mactable.NewTable(16, 300)
	m := mustMAC(t, "00:11:22:33:44:77")

	_, err := tbl.Upsert(m, 10, 2, mactable.Dynamic)
	require.NoError(t, err)

	_, err = tbl.Upsert(m, 10, 2, mactable.Static)
	require.NoError(t, err)

	e, found := tbl.Get(m, 10)
	require.True(t, found)
	assert.Equal(t, mactable.Static, e.Kind)
}

// TestAtMostOneEntryPerKey covers invariant: the table contains at
// most one entry per (MAC, VlanId); the same MAC on two VLANs are
// distinct entries.
func TestAtMostOneEntryPerKey(t *testing.T) {
	tbl := mactable.NewTable(16, 300)
	m := mustMAC(t, "00:11:22:33:44:88")

	_, err := tbl.Upsert(m, 10, 0, mactable.Dynamic)
	require.NoError(t, err)
	_, err = tbl.Upsert(m, 20, 1, mactable.Dynamic)
	require.NoError(t, err)

	p10, found := tbl.Lookup(m, 10)
	require.True(t, found)
	assert.Equal(t, ports.PortId(0), p10)

	p20, found := tbl.Lookup(m, 20)
	require.True(t, found)
	assert.Equal(t, ports.PortId(1), p20)

	assert.Equal(t, 2, tbl.Count())
}

func TestTableFullOnNewEntry(t *testing.T) {
	tbl := mactable.NewTable(2, 300)
	m1 := mustMAC(t, "00:11:22:33:44:01")
	m2 := mustMAC(t, "00:11:22:33:44:02")
	m3 := mustMAC(t, "00:11:22:33:44:03")

	_, err := tbl.Upsert(m1, 10, 0, mactable.Dynamic)
	require.NoError(t, err)
	_, err = tbl.Upsert(m2, 10, 0, mactable.Dynamic)
	require.NoError(t, err)

	_, err = tbl.Upsert(m3, 10, 0, mactable.Dynamic)
	assert.ErrorIs(t, err, l2err.ErrTableFull)
}

func TestRemoveAndLookupNotFound(t *testing.T) {
	tbl := mactable.NewTable(16, 300)
	m := mustMAC(t, "00:11:22:33:44:99")

	_, err := tbl.Upsert(m, 10, 0, mactable.Dynamic)
	require.NoError(t, err)

	assert.True(t, tbl.Remove(m, 10))
	_, found := tbl.Lookup(m, 10)
	assert.False(t, found)
	assert.False(t, tbl.Remove(m, 10))
}

func TestFlushExcludesStaticUnlessIncluded(t *testing.T) {
	tbl := mactable.NewTable(16, 300)
	dyn := mustMAC(t, "00:11:22:33:44:aa")
	stat := mustMAC(t, "00:11:22:33:44:bb")

	_, err := tbl.Upsert(dyn, 10, 0, mactable.Dynamic)
	require.NoError(t, err)
	_, err = tbl.Upsert(stat, 10, 0, mactable.Static)
	require.NoError(t, err)

	removed := tbl.Flush(mactable.Filter{Port: portPtr(0)})
	require.Len(t, removed, 1)
	assert.Equal(t, dyn, removed[0].MAC)

	_, found := tbl.Get(stat, 10)
	assert.True(t, found, "static entry must survive a non-include_static flush")

	removed = tbl.Flush(mactable.Filter{Port: portPtr(0), IncludeStatic: true})
	require.Len(t, removed, 1)
	assert.Equal(t, stat, removed[0].MAC)
}

func portPtr(p ports.PortId) *ports.PortId { return &p }
func vlanPtr(v vlan.VlanId) *vlan.VlanId   { return &v }

func TestFlushByVlan(t *testing.T) {
	tbl := mactable.NewTable(16, 300)
	a := mustMAC(t, "00:11:22:33:44:cc")
	b := mustMAC(t, "00:11:22:33:44:dd")

	_, err := tbl.Upsert(a, 10, 0, mactable.Dynamic)
	require.NoError(t, err)
	_, err = tbl.Upsert(b, 20, 0, mactable.Dynamic)
	require.NoError(t, err)

	removed := tbl.Flush(mactable.Filter{Vlan: vlanPtr(10)})
	require.Len(t, removed, 1)
	assert.Equal(t, a, removed[0].MAC)
	assert.Equal(t, 1, tbl.Count())
}

// TestAgingScenario is scenario S6: an entry learned at t=0 survives a
// tick at exactly the threshold, a lookup then refreshes last_seen, and
// a tick more than the threshold past that lookup ages it out.
func TestAgingScenario(t *testing.T) {
	const threshold = 300
	tbl := mactable.NewTable(16, threshold)
	m := mustMAC(t, "00:11:22:33:44:ee")

	tbl.Tick(0)
	_, err := tbl.Upsert(m, 10, 0, mactable.Dynamic)
	require.NoError(t, err)

	aged := tbl.Tick(threshold)
	assert.Empty(t, aged, "entry should not age out before crossing the threshold")

	_, found := tbl.Lookup(m, 10)
	assert.True(t, found)

	aged = tbl.Tick(2*threshold + 2)
	require.Len(t, aged, 1)
	assert.Equal(t, m, aged[0].MAC)

	_, found = tbl.Lookup(m, 10)
	assert.False(t, found)
}

func TestAgingRefreshedByIntermediateLookup(t *testing.T) {
	const threshold = 10
	tbl := mactable.NewTable(16, threshold)
	m := mustMAC(t, "00:11:22:33:44:ff")

	tbl.Tick(0)
	_, err := tbl.Upsert(m, 10, 0, mactable.Dynamic)
	require.NoError(t, err)

	tbl.Tick(threshold / 2)
	_, found := tbl.Lookup(m, 10)
	require.True(t, found)

	aged := tbl.Tick(threshold/2 + threshold)
	assert.Empty(t, aged, "a lookup at the midpoint must refresh last_seen")
}

func TestStaticEntriesNeverAge(t *testing.T) {
	const threshold = 5
	tbl := mactable.NewTable(16, threshold)
	m := mustMAC(t, "00:11:22:33:45:00")

	tbl.Tick(0)
	_, err := tbl.Upsert(m, 10, 0, mactable.Static)
	require.NoError(t, err)

	aged := tbl.Tick(1000)
	assert.Empty(t, aged)

	_, found := tbl.Lookup(m, 10)
	assert.True(t, found)
}

func TestIterateEarlyStop(t *testing.T) {
	tbl := mactable.NewTable(16, 300)
	for i := 0; i < 5; i++ {
		m := macaddr.MAC{0, 0, 0, 0, 0, byte(i)}
		_, err := tbl.Upsert(m, 10, ports.PortId(i), mactable.Dynamic)
		require.NoError(t, err)
	}

	visited := 0
	tbl.Iterate(func(mactable.Entry) bool {
		visited++
		return visited < 2
	})
	assert.Equal(t, 2, visited)
}

func TestSnapshotReturnsAllEntries(t *testing.T) {
	tbl := mactable.NewTable(16, 300)
	for i := 0; i < 5; i++ {
		m := macaddr.MAC{0, 0, 0, 0, 0, byte(i)}
		_, err := tbl.Upsert(m, 10, ports.PortId(i), mactable.Dynamic)
		require.NoError(t, err)
	}
	assert.Len(t, tbl.Snapshot(), 5)
}

func TestGrowthPreservesEntries(t *testing.T) {
	tbl := mactable.NewTable(1024, 300)
	const n = 200
	for i := 0; i < n; i++ {
		m := macaddr.MAC{0, 0, 0, byte(i >> 16), byte(i >> 8), byte(i)}
		_, err := tbl.Upsert(m, 10, ports.PortId(i%64), mactable.Dynamic)
		require.NoError(t, err)
	}
	assert.Equal(t, n, tbl.Count())

	for i := 0; i < n; i++ {
		m := macaddr.MAC{0, 0, 0, byte(i >> 16), byte(i >> 8), byte(i)}
		port, found := tbl.Lookup(m, 10)
		require.True(t, found)
		assert.Equal(t, ports.PortId(i%64), port)
	}
}
