package vpc

import (
	"context"
	"fmt"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/vpcctl/policy"
	"github.com/projecteru2/vpcctl/types"
)

// ApplyPolicy applies a declarative policy to the subnet whose CIDR matches
// the policy's subnet field. Application is additive; re-applying the same
// policy is a no-op thanks to the rule existence probes.
func (m *Manager) ApplyPolicy(ctx context.Context, vpcName string, p *types.Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if _, err := parseIPv4CIDR(p.Subnet); err != nil {
		return fmt.Errorf("%w: subnet: %s", types.ErrPolicyMalformed, err)
	}

	return m.mutate(ctx, func() error {
		doc, err := m.store.Load(vpcName)
		if err != nil {
			return err
		}
		sub := doc.FindSubnetByCIDR(p.Subnet)
		if sub == nil {
			return fmt.Errorf("VPC %q has no subnet %s: %w", vpcName, p.Subnet, types.ErrNoMatchingSubnet)
		}
		if err := m.applyPolicyToSubnet(ctx, doc, sub, p); err != nil {
			return m.savePartial(ctx, doc, err)
		}
		log.WithFunc("vpc.ApplyPolicy").Infof(ctx, "applied policy to subnet %s (ns %s) in VPC %q",
			p.Subnet, sub.NS, vpcName)
		return m.store.Save(doc)
	})
}

// applyPolicyToSubnet compiles and installs the policy's rules in the
// subnet's namespace and records the application on the document. Namespace
// rules are not added to the host replay log: they die with the namespace.
func (m *Manager) applyPolicyToSubnet(ctx context.Context, doc *types.VPC, sub *types.Subnet, p *types.Policy) error {
	rules, err := policy.Compile(doc.Name, sub.Name, sub.NS, p)
	if err != nil {
		return err
	}
	for _, r := range rules {
		if _, _, err := m.ipt.Ensure(ctx, r); err != nil {
			return err
		}
	}

	doc.Policies = append(doc.Policies, types.AppliedPolicy{
		Subnet:    sub.CIDR,
		Policy:    *p,
		AppliedAt: now(),
	})

	// Persist the document for inspection; the VPC record stays authoritative.
	if _, err := m.store.SavePolicy(doc.Name, sub.Name, p); err != nil {
		log.WithFunc("vpc.applyPolicyToSubnet").Warnf(ctx, "persist policy file: %v", err)
	}
	return nil
}
