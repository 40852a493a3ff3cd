package iptables

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAddTokensHostRule(t *testing.T) {
	r := Rule{
		Chain:     "vpc-myvpc",
		Selectors: []string{"-s", "10.10.0.0/16", "-d", "10.10.0.0/16"},
		Verdict:   VerdictAccept,
		Comment:   "vpcctl:myvpc:intra",
	}
	assert.Equal(t, []string{
		"iptables", "-A", "vpc-myvpc",
		"-s", "10.10.0.0/16", "-d", "10.10.0.0/16",
		"-m", "comment", "--comment", "vpcctl:myvpc:intra",
		"-j", "ACCEPT",
	}, r.AddTokens())
}

func TestInsertVerb(t *testing.T) {
	r := Rule{Chain: "FORWARD", Insert: true, Selectors: []string{"-i", "br-x"}, Verdict: "vpc-x"}
	assert.Equal(t, "-I", r.AddTokens()[1])
}

func TestNatTableTokens(t *testing.T) {
	r := Rule{
		Table:     "nat",
		Chain:     "POSTROUTING",
		Selectors: []string{"-s", "10.10.1.0/24", "-o", "eth0"},
		Verdict:   VerdictMasquerade,
		Comment:   "vpcctl:myvpc:nat:public",
	}
	tokens := r.AddTokens()
	assert.Equal(t, []string{"iptables", "-t", "nat", "-A", "POSTROUTING"}, tokens[:5])
}

func TestNetnsScopedTokens(t *testing.T) {
	r := Rule{
		Netns:     "ns-myvpc-public",
		Chain:     "INPUT",
		Selectors: []string{"-p", "tcp", "--dport", "80"},
		Verdict:   VerdictAccept,
	}
	tokens := r.AddTokens()
	assert.Equal(t, []string{"ip", "netns", "exec", "ns-myvpc-public", "iptables", "-A", "INPUT"}, tokens[:7])
}

func TestCheckAndDeleteForms(t *testing.T) {
	r := Rule{Chain: "FORWARD", Insert: true, Selectors: []string{"-i", "br-x"}, Verdict: "vpc-x"}
	add := r.AddTokens()
	check := CheckFromAdd(add)
	del := DeleteFromAdd(add)

	assert.Equal(t, "-C", check[1])
	assert.Equal(t, "-D", del[1])
	// The transform must not mutate the recorded form.
	assert.Equal(t, "-I", add[1])
	// Both derived forms agree with the Rule methods.
	assert.Equal(t, r.CheckTokens(), check)
	assert.Equal(t, r.DeleteTokens(), del)
}

func TestStripComment(t *testing.T) {
	r := Rule{Chain: "X", Selectors: []string{"-s", "10.0.0.0/8"}, Verdict: VerdictDrop, Comment: "vpcctl:x:drop"}
	stripped := StripComment(r.AddTokens())
	assert.Equal(t, []string{"iptables", "-A", "X", "-s", "10.0.0.0/8", "-j", "DROP"}, stripped)
}

func TestStripCommentNoComment(t *testing.T) {
	tokens := []string{"iptables", "-A", "X", "-j", "ACCEPT"}
	assert.Equal(t, tokens, StripComment(tokens))
}

func TestCommentOf(t *testing.T) {
	r := Rule{Chain: "X", Verdict: VerdictAccept, Comment: "vpcctl:a:intra"}
	assert.Equal(t, "vpcctl:a:intra", CommentOf(r.AddTokens()))
	assert.Equal(t, "", CommentOf([]string{"iptables", "-A", "X"}))
}

func TestHasVerb(t *testing.T) {
	assert.True(t, HasVerb([]string{"iptables", "-A", "X"}))
	assert.True(t, HasVerb([]string{"iptables", "-I", "FORWARD"}))
	assert.False(t, HasVerb([]string{"iptables", "-F", "X"}))
}
