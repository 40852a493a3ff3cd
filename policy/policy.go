// Package policy translates declarative ingress/egress policy documents into
// namespace-scoped filter rules. Compilation is pure; applying the result is
// the Filter-Rule Manager's job, whose existence probes make re-application
// a no-op.
package policy

import (
	"fmt"
	"strconv"

	"github.com/projecteru2/vpcctl/iptables"
	"github.com/projecteru2/vpcctl/types"
)

// Default returns the policy auto-applied to every new subnet: web ports
// open, ssh closed, egress unrestricted.
func Default(subnetCIDR string) *types.Policy {
	return &types.Policy{
		Subnet: subnetCIDR,
		Ingress: []types.PolicyRule{
			{Port: 80, Protocol: types.ProtocolTCP, Action: types.ActionAllow},
			{Port: 443, Protocol: types.ProtocolTCP, Action: types.ActionAllow},
			{Port: 22, Protocol: types.ProtocolTCP, Action: types.ActionDeny},
		},
		Egress: []types.PolicyRule{},
	}
}

// Compile plans the rule additions for applying p inside namespace ns.
// Baseline rules (loopback and established traffic) come first so that the
// first-match policy body cannot cut off return traffic; then ingress rules
// against INPUT and egress rules against OUTPUT, in document order.
// Application is additive: nothing is flushed.
func Compile(vpc, subnet, ns string, p *types.Policy) ([]iptables.Rule, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	baseComment := fmt.Sprintf("%s%s:policy-base:%s", iptables.CommentPrefix, vpc, subnet)
	ruleComment := fmt.Sprintf("%s%s:policy:%s", iptables.CommentPrefix, vpc, subnet)

	rules := []iptables.Rule{
		{
			Netns:     ns,
			Chain:     "INPUT",
			Selectors: []string{"-i", "lo"},
			Verdict:   iptables.VerdictAccept,
			Comment:   baseComment,
		},
		{
			Netns:     ns,
			Chain:     "INPUT",
			Selectors: []string{"-m", "state", "--state", "ESTABLISHED,RELATED"},
			Verdict:   iptables.VerdictAccept,
			Comment:   baseComment,
		},
	}

	for _, r := range p.Ingress {
		rules = append(rules, compileRule("INPUT", ns, ruleComment, r))
	}
	for _, r := range p.Egress {
		rules = append(rules, compileRule("OUTPUT", ns, ruleComment, r))
	}
	return rules, nil
}

func compileRule(chain, ns, comment string, r types.PolicyRule) iptables.Rule {
	selectors := []string{"-p", r.Protocol}
	if r.Protocol != types.ProtocolICMP {
		selectors = append(selectors, "--dport", strconv.Itoa(r.Port))
	}
	verdict := iptables.VerdictAccept
	if r.Action == types.ActionDeny {
		verdict = iptables.VerdictDrop
	}
	return iptables.Rule{
		Netns:     ns,
		Chain:     chain,
		Selectors: selectors,
		Verdict:   verdict,
		Comment:   comment,
	}
}
