package vpc

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projecteru2/vpcctl/iptables"
	"github.com/projecteru2/vpcctl/types"
)

func TestDeleteRemovesDocument(t *testing.T) {
	f := newFixture(t)
	f.mustCreate(t, "myvpc", "10.10.0.0/16")

	require.NoError(t, f.m.Delete(f.ctx(), "myvpc"))
	assert.False(t, f.m.store.Exists("myvpc"))

	assert.ErrorIs(t, f.m.Delete(f.ctx(), "myvpc"), types.ErrNotFound)
}

func TestDeleteReplaysRulesInReverse(t *testing.T) {
	f := newFixture(t)
	f.mustCreate(t, "myvpc", "10.10.0.0/16")
	recorded := f.load(t, "myvpc").HostIptables
	require.Len(t, recorded, 2)

	// Teardown finds every recorded rule present.
	f.rec.DefaultProbe = true
	f.rec.Ran = nil
	require.NoError(t, f.m.Delete(f.ctx(), "myvpc"))

	lines := f.rec.RanLines()
	intraDel := strings.Join(iptables.DeleteFromAdd(recorded[1]), " ")
	jumpDel := strings.Join(iptables.DeleteFromAdd(recorded[0]), " ")
	intraIdx := indexOf(lines, intraDel)
	jumpIdx := indexOf(lines, jumpDel)
	require.GreaterOrEqual(t, intraIdx, 0)
	require.GreaterOrEqual(t, jumpIdx, 0)
	// The jump was recorded first, so it is deleted last.
	assert.Less(t, intraIdx, jumpIdx)
}

func TestDeleteTearsDownKernelObjects(t *testing.T) {
	f := newFixture(t)
	f.mustCreate(t, "myvpc", "10.10.0.0/16")
	f.mustAddSubnet(t, "myvpc", "public", "10.10.1.0/24")

	f.rec.DefaultProbe = true
	f.probe.Namespaces["ns-myvpc-public"] = true
	f.probe.Links["br-myvpc"] = true
	f.rec.Ran = nil
	require.NoError(t, f.m.Delete(f.ctx(), "myvpc"))

	lines := f.rec.RanLines()
	assert.Contains(t, lines, "ip netns exec ns-myvpc-public iptables -F")
	assert.Contains(t, lines, "ip netns exec ns-myvpc-public iptables -t nat -F")
	assert.Contains(t, lines, "ip netns del ns-myvpc-public")
	assert.Contains(t, lines, "ip link set br-myvpc down")
	assert.Contains(t, lines, "ip link del br-myvpc type bridge")
	assert.Contains(t, lines, "iptables -F vpc-myvpc")
	assert.Contains(t, lines, "iptables -X vpc-myvpc")
}

func TestDeleteStopsApps(t *testing.T) {
	f := newFixture(t)
	f.mustCreate(t, "myvpc", "10.10.0.0/16")
	f.mustAddSubnet(t, "myvpc", "public", "10.10.1.0/24")
	require.NoError(t, f.m.DeployApp(f.ctx(), "myvpc", "public", 8080))

	var killed []int
	f.m.terminate = func(pid int, _ time.Duration) error {
		killed = append(killed, pid)
		return nil
	}
	require.NoError(t, f.m.Delete(f.ctx(), "myvpc"))
	assert.Equal(t, []int{4001}, killed)
}

func TestDeleteScrubsPeerDocument(t *testing.T) {
	f := newFixture(t)
	f.mustCreate(t, "alpha", "10.10.0.0/16")
	f.mustCreate(t, "beta", "10.20.0.0/16")
	require.NoError(t, f.m.Peer(f.ctx(), "alpha", "beta", nil))

	f.probe.Links[f.load(t, "alpha").Peers[0].LocalVeth] = true
	f.rec.DefaultProbe = true

	require.NoError(t, f.m.Delete(f.ctx(), "alpha"))

	docB := f.load(t, "beta")
	assert.Empty(t, docB.Peers)
	// Beta's replay log keeps its own rules but not the peering's.
	for _, tokens := range docB.HostIptables {
		comment := iptables.CommentOf(tokens)
		assert.NotContains(t, comment, "peer", "stale peering rule: %v", tokens)
	}
	require.Len(t, docB.HostIptables, 2) // jump + intra survive
}

func TestDeleteDryRunKeepsDocument(t *testing.T) {
	f := newFixture(t)
	f.mustCreate(t, "myvpc", "10.10.0.0/16")
	f.conf.DryRun = true
	require.NoError(t, f.m.Delete(f.ctx(), "myvpc"))
	assert.True(t, f.m.store.Exists("myvpc"))
}

func TestDeleteContinuesPastRuleFailures(t *testing.T) {
	f := newFixture(t)
	f.mustCreate(t, "myvpc", "10.10.0.0/16")

	// Every recorded-rule probe answers absent, so each replay step fails;
	// teardown still completes and the document is removed.
	require.NoError(t, f.m.Delete(f.ctx(), "myvpc"))
	assert.False(t, f.m.store.Exists("myvpc"))
}

func TestCleanupAllDeletesEverything(t *testing.T) {
	f := newFixture(t)
	f.mustCreate(t, "alpha", "10.10.0.0/16")
	f.mustCreate(t, "beta", "10.20.0.0/16")
	require.NoError(t, f.m.Peer(f.ctx(), "alpha", "beta", nil))

	require.NoError(t, f.m.CleanupAll(f.ctx()))

	names, err := f.m.store.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestCleanupAllEmptyStore(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.m.CleanupAll(f.ctx()))
}

func indexOf(lines []string, want string) int {
	for i, l := range lines {
		if l == want {
			return i
		}
	}
	return -1
}
