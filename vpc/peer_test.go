package vpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projecteru2/vpcctl/types"
)

func peerFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)
	f.mustCreate(t, "alpha", "10.10.0.0/16")
	f.mustCreate(t, "beta", "10.20.0.0/16")
	return f
}

func TestPeerMirrorsRecords(t *testing.T) {
	f := peerFixture(t)
	allow := []string{"10.10.1.0/24", "10.20.1.0/24"}
	require.NoError(t, f.m.Peer(f.ctx(), "alpha", "beta", allow))

	docA := f.load(t, "alpha")
	docB := f.load(t, "beta")
	require.Len(t, docA.Peers, 1)
	require.Len(t, docB.Peers, 1)

	pa, pb := docA.Peers[0], docB.Peers[0]
	assert.Equal(t, "beta", pa.PeerVPC)
	assert.Equal(t, "alpha", pb.PeerVPC)
	assert.Equal(t, allow, pa.AllowCIDRs)
	assert.Equal(t, allow, pb.AllowCIDRs)
	// The two records name opposite ends of the same pair.
	assert.Equal(t, pa.LocalVeth, pb.RemoteVeth)
	assert.Equal(t, pa.RemoteVeth, pb.LocalVeth)
}

func TestPeerDefaultAllowIsBothCIDRs(t *testing.T) {
	f := peerFixture(t)
	require.NoError(t, f.m.Peer(f.ctx(), "alpha", "beta", nil))

	docA := f.load(t, "alpha")
	assert.Equal(t, []string{"10.10.0.0/16", "10.20.0.0/16"}, docA.Peers[0].AllowCIDRs)
}

func TestPeerInstallsAcceptAndDropRules(t *testing.T) {
	f := peerFixture(t)
	allow := []string{"10.10.1.0/24", "10.20.1.0/24"}
	require.NoError(t, f.m.Peer(f.ctx(), "alpha", "beta", allow))

	// Every ordered pair of distinct allow-set CIDRs per chain: 2 accepts each.
	assert.Len(t, f.ranContaining("iptables -A vpc-alpha -o br-beta", "ACCEPT"), 2)
	assert.Len(t, f.ranContaining("iptables -A vpc-beta -o br-alpha", "ACCEPT"), 2)

	// A trailing drop per chain isolates everything outside the allow set.
	assert.Len(t, f.ranContaining("iptables -A vpc-alpha -o br-beta", "DROP", "peer-drop"), 1)
	assert.Len(t, f.ranContaining("iptables -A vpc-beta -o br-alpha", "DROP", "peer-drop"), 1)

	// The link ends are mastered to each bridge.
	docA := f.load(t, "alpha")
	veth := docA.Peers[0].LocalVeth
	assert.Len(t, f.ranContaining("ip link set "+veth+" master br-alpha"), 1)
}

func TestPeerRulesRecordedOnBothDocuments(t *testing.T) {
	f := peerFixture(t)
	require.NoError(t, f.m.Peer(f.ctx(), "alpha", "beta", []string{"10.10.1.0/24", "10.20.1.0/24"}))

	// 2 accepts + 1 drop on top of jump+intra from create.
	assert.Len(t, f.load(t, "alpha").HostIptables, 2+3)
	assert.Len(t, f.load(t, "beta").HostIptables, 2+3)
}

func TestPeerSelfFails(t *testing.T) {
	f := peerFixture(t)
	assert.ErrorIs(t, f.m.Peer(f.ctx(), "alpha", "alpha", nil), types.ErrSelfPeer)
}

func TestPeerMissingVPCFails(t *testing.T) {
	f := peerFixture(t)
	assert.ErrorIs(t, f.m.Peer(f.ctx(), "alpha", "ghost", nil), types.ErrNotFound)
	assert.ErrorIs(t, f.m.Peer(f.ctx(), "ghost", "beta", nil), types.ErrNotFound)
}

func TestPeerTwiceFails(t *testing.T) {
	f := peerFixture(t)
	require.NoError(t, f.m.Peer(f.ctx(), "alpha", "beta", nil))
	before := len(f.rec.Ran)

	assert.ErrorIs(t, f.m.Peer(f.ctx(), "alpha", "beta", nil), types.ErrAlreadyPeered)
	// Also rejected from the other side, with no further kernel work.
	assert.ErrorIs(t, f.m.Peer(f.ctx(), "beta", "alpha", nil), types.ErrAlreadyPeered)
	assert.Len(t, f.rec.Ran, before)
}

func TestPeerInvalidAllowCIDR(t *testing.T) {
	f := peerFixture(t)
	assert.ErrorIs(t, f.m.Peer(f.ctx(), "alpha", "beta", []string{"nope"}), types.ErrCidrInvalid)
}
