package vpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projecteru2/vpcctl/types"
)

func policyDoc() *types.Policy {
	return &types.Policy{
		Subnet: "10.10.1.0/24",
		Ingress: []types.PolicyRule{
			{Port: 80, Protocol: "tcp", Action: "allow"},
			{Port: 22, Protocol: "tcp", Action: "deny"},
		},
		Egress: []types.PolicyRule{},
	}
}

func TestApplyPolicyInstallsNamespaceRules(t *testing.T) {
	f := newFixture(t)
	f.mustCreate(t, "myvpc", "10.10.0.0/16")
	f.mustAddSubnet(t, "myvpc", "public", "10.10.1.0/24")
	f.rec.Ran = nil

	require.NoError(t, f.m.ApplyPolicy(f.ctx(), "myvpc", policyDoc()))

	assert.Len(t, f.ranContaining("ns-myvpc-public", "-A INPUT", "--dport 80", "ACCEPT"), 1)
	assert.Len(t, f.ranContaining("ns-myvpc-public", "-A INPUT", "--dport 22", "DROP"), 1)

	// Applied on top of the default policy from add-subnet.
	doc := f.load(t, "myvpc")
	require.Len(t, doc.Policies, 2)
	assert.Equal(t, "10.10.1.0/24", doc.Policies[1].Subnet)
	assert.Len(t, doc.Policies[1].Policy.Ingress, 2)
}

func TestApplyPolicyIsAdditive(t *testing.T) {
	f := newFixture(t)
	f.mustCreate(t, "myvpc", "10.10.0.0/16")
	f.mustAddSubnet(t, "myvpc", "public", "10.10.1.0/24")
	f.rec.Ran = nil

	require.NoError(t, f.m.ApplyPolicy(f.ctx(), "myvpc", policyDoc()))
	// Nothing is flushed when applying.
	assert.Empty(t, f.ranContaining("iptables -F"))
}

func TestApplyPolicyReapplyIsNoop(t *testing.T) {
	f := newFixture(t)
	f.mustCreate(t, "myvpc", "10.10.0.0/16")
	f.mustAddSubnet(t, "myvpc", "public", "10.10.1.0/24")

	require.NoError(t, f.m.ApplyPolicy(f.ctx(), "myvpc", policyDoc()))

	// Second apply: every rule probe now answers "exists".
	f.rec.DefaultProbe = true
	f.rec.Ran = nil
	require.NoError(t, f.m.ApplyPolicy(f.ctx(), "myvpc", policyDoc()))
	assert.Empty(t, f.rec.Ran)
}

func TestApplyPolicyNoMatchingSubnet(t *testing.T) {
	f := newFixture(t)
	f.mustCreate(t, "myvpc", "10.10.0.0/16")
	f.mustAddSubnet(t, "myvpc", "public", "10.10.1.0/24")

	p := policyDoc()
	p.Subnet = "10.10.9.0/24"
	assert.ErrorIs(t, f.m.ApplyPolicy(f.ctx(), "myvpc", p), types.ErrNoMatchingSubnet)
}

func TestApplyPolicyMalformed(t *testing.T) {
	f := newFixture(t)
	f.mustCreate(t, "myvpc", "10.10.0.0/16")

	p := &types.Policy{Subnet: "10.10.1.0/24", Ingress: []types.PolicyRule{{Port: 80, Protocol: "tcp", Action: "maybe"}}}
	assert.ErrorIs(t, f.m.ApplyPolicy(f.ctx(), "myvpc", p), types.ErrPolicyMalformed)

	p2 := &types.Policy{Subnet: "not-a-cidr"}
	assert.ErrorIs(t, f.m.ApplyPolicy(f.ctx(), "myvpc", p2), types.ErrPolicyMalformed)
}

func TestApplyPolicyMissingVPC(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.m.ApplyPolicy(f.ctx(), "ghost", policyDoc()), types.ErrNotFound)
}
