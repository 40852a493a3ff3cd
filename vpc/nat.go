package vpc

import (
	"context"
	"fmt"
	"slices"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/vpcctl/iptables"
	"github.com/projecteru2/vpcctl/types"
)

// NATScope selects the subnets to translate. Zero value is the default
// heuristic: subnets literally named "public". There is no per-subnet public
// flag, so anything else requires explicit operator intent.
type NATScope struct {
	Subnet string
	All    bool
}

// EnableNAT installs source-address translation for the selected subnets out
// of the given host interface, plus the forward rules for the bridge/iface
// path and the conntrack return path.
func (m *Manager) EnableNAT(ctx context.Context, vpcName, iface string, scope NATScope) error {
	if iface == "" {
		return fmt.Errorf("NAT requires an egress interface")
	}

	return m.mutate(ctx, func() error {
		doc, err := m.store.Load(vpcName)
		if err != nil {
			return err
		}
		targets, err := resolveNATTargets(doc, scope)
		if err != nil {
			return err
		}

		if _, err := m.net.EnableIPForward(ctx); err != nil {
			return m.savePartial(ctx, doc, err)
		}

		for _, sub := range targets {
			masq := iptables.Rule{
				Table:     "nat",
				Chain:     "POSTROUTING",
				Selectors: []string{"-s", sub.CIDR, "-o", iface},
				Verdict:   iptables.VerdictMasquerade,
				Comment:   fmt.Sprintf("%s%s:nat:%s", iptables.CommentPrefix, doc.Name, sub.Name),
			}
			if err := m.ensureRecorded(ctx, doc, masq); err != nil {
				return m.savePartial(ctx, doc, err)
			}
		}

		out := iptables.Rule{
			Chain:     "FORWARD",
			Selectors: []string{"-i", doc.Bridge, "-o", iface},
			Verdict:   iptables.VerdictAccept,
			Comment:   fmt.Sprintf("%s%s:fwd-out", iptables.CommentPrefix, doc.Name),
		}
		if err := m.ensureRecorded(ctx, doc, out); err != nil {
			return m.savePartial(ctx, doc, err)
		}
		// Return path for established flows.
		in := iptables.Rule{
			Chain:     "FORWARD",
			Selectors: []string{"-i", iface, "-o", doc.Bridge, "-m", "state", "--state", "ESTABLISHED,RELATED"},
			Verdict:   iptables.VerdictAccept,
			Comment:   fmt.Sprintf("%s%s:fwd-in", iptables.CommentPrefix, doc.Name),
		}
		if err := m.ensureRecorded(ctx, doc, in); err != nil {
			return m.savePartial(ctx, doc, err)
		}

		if doc.NAT == nil {
			doc.NAT = &types.NATConfig{Interface: iface}
		}
		doc.NAT.Interface = iface
		for _, sub := range targets {
			if !slices.Contains(doc.NAT.Subnets, sub.Name) {
				doc.NAT.Subnets = append(doc.NAT.Subnets, sub.Name)
			}
		}

		log.WithFunc("vpc.EnableNAT").Infof(ctx, "enabled NAT for VPC %q via %s (subnets %v)",
			vpcName, iface, doc.NAT.Subnets)
		return m.store.Save(doc)
	})
}

func resolveNATTargets(doc *types.VPC, scope NATScope) ([]types.Subnet, error) {
	switch {
	case scope.All:
		if len(doc.Subnets) == 0 {
			return nil, fmt.Errorf("VPC %q has no subnets: %w", doc.Name, types.ErrNotFound)
		}
		return doc.Subnets, nil
	case scope.Subnet != "":
		sub := doc.FindSubnet(scope.Subnet)
		if sub == nil {
			return nil, fmt.Errorf("subnet %q in VPC %q: %w", scope.Subnet, doc.Name, types.ErrNotFound)
		}
		return []types.Subnet{*sub}, nil
	default:
		// Heuristic scope: subnets literally named "public".
		var targets []types.Subnet
		for _, s := range doc.Subnets {
			if s.Name == "public" {
				targets = append(targets, s)
			}
		}
		if len(targets) == 0 {
			return nil, fmt.Errorf("VPC %q has no subnet named \"public\"; pass an explicit subnet or all-subnets scope: %w",
				doc.Name, types.ErrNotFound)
		}
		return targets, nil
	}
}
