package vpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projecteru2/vpcctl/types"
)

func TestEnableNATDefaultScopeTargetsPublic(t *testing.T) {
	f := newFixture(t)
	f.mustCreate(t, "myvpc", "10.10.0.0/16")
	f.mustAddSubnet(t, "myvpc", "public", "10.10.1.0/24")
	f.mustAddSubnet(t, "myvpc", "private", "10.10.2.0/24")

	require.NoError(t, f.m.EnableNAT(f.ctx(), "myvpc", "eth0", NATScope{}))

	// MASQUERADE matches the subnet CIDR, not the VPC CIDR.
	assert.Len(t, f.ranContaining("-t nat -A POSTROUTING -s 10.10.1.0/24 -o eth0", "MASQUERADE"), 1)
	assert.Empty(t, f.ranContaining("POSTROUTING -s 10.10.2.0/24"))

	// Forward path plus conntrack return path.
	assert.Len(t, f.ranContaining("-A FORWARD -i br-myvpc -o eth0", "ACCEPT"), 1)
	assert.Len(t, f.ranContaining("-A FORWARD -i eth0 -o br-myvpc", "ESTABLISHED,RELATED", "ACCEPT"), 1)

	doc := f.load(t, "myvpc")
	require.NotNil(t, doc.NAT)
	assert.Equal(t, "eth0", doc.NAT.Interface)
	assert.Equal(t, []string{"public"}, doc.NAT.Subnets)
}

func TestEnableNATDefaultScopeWithoutPublicSubnet(t *testing.T) {
	f := newFixture(t)
	f.mustCreate(t, "myvpc", "10.10.0.0/16")
	f.mustAddSubnet(t, "myvpc", "backend", "10.10.1.0/24")

	err := f.m.EnableNAT(f.ctx(), "myvpc", "eth0", NATScope{})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestEnableNATNamedSubnet(t *testing.T) {
	f := newFixture(t)
	f.mustCreate(t, "myvpc", "10.10.0.0/16")
	f.mustAddSubnet(t, "myvpc", "backend", "10.10.1.0/24")

	require.NoError(t, f.m.EnableNAT(f.ctx(), "myvpc", "eth0", NATScope{Subnet: "backend"}))
	assert.Len(t, f.ranContaining("POSTROUTING -s 10.10.1.0/24 -o eth0"), 1)

	err := f.m.EnableNAT(f.ctx(), "myvpc", "eth0", NATScope{Subnet: "ghost"})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestEnableNATAllSubnets(t *testing.T) {
	f := newFixture(t)
	f.mustCreate(t, "myvpc", "10.10.0.0/16")
	f.mustAddSubnet(t, "myvpc", "a", "10.10.1.0/24")
	f.mustAddSubnet(t, "myvpc", "b", "10.10.2.0/24")

	require.NoError(t, f.m.EnableNAT(f.ctx(), "myvpc", "wlan0", NATScope{All: true}))
	assert.Len(t, f.ranContaining("POSTROUTING -s 10.10.1.0/24 -o wlan0"), 1)
	assert.Len(t, f.ranContaining("POSTROUTING -s 10.10.2.0/24 -o wlan0"), 1)

	doc := f.load(t, "myvpc")
	assert.ElementsMatch(t, []string{"a", "b"}, doc.NAT.Subnets)
}

func TestEnableNATRecordsRules(t *testing.T) {
	f := newFixture(t)
	f.mustCreate(t, "myvpc", "10.10.0.0/16")
	f.mustAddSubnet(t, "myvpc", "public", "10.10.1.0/24")

	before := len(f.load(t, "myvpc").HostIptables)
	require.NoError(t, f.m.EnableNAT(f.ctx(), "myvpc", "eth0", NATScope{}))

	doc := f.load(t, "myvpc")
	// One MASQUERADE plus the two forward rules.
	assert.Len(t, doc.HostIptables, before+3)
}

func TestEnableNATMergesRepeatScopes(t *testing.T) {
	f := newFixture(t)
	f.mustCreate(t, "myvpc", "10.10.0.0/16")
	f.mustAddSubnet(t, "myvpc", "a", "10.10.1.0/24")
	f.mustAddSubnet(t, "myvpc", "b", "10.10.2.0/24")

	require.NoError(t, f.m.EnableNAT(f.ctx(), "myvpc", "eth0", NATScope{Subnet: "a"}))
	require.NoError(t, f.m.EnableNAT(f.ctx(), "myvpc", "eth0", NATScope{Subnet: "b"}))

	doc := f.load(t, "myvpc")
	assert.ElementsMatch(t, []string{"a", "b"}, doc.NAT.Subnets)
	assert.Equal(t, "eth0", doc.NAT.Interface)
}
