package vpc

import (
	"context"
	"fmt"
	"net"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/vpcctl/names"
	"github.com/projecteru2/vpcctl/policy"
	"github.com/projecteru2/vpcctl/types"
)

// AddSubnet attaches a new namespace to the VPC bridge: netns, veth pair,
// gateway address on the bridge, host address and default route inside the
// namespace. The default subnet policy is applied before the record is
// persisted.
func (m *Manager) AddSubnet(ctx context.Context, vpcName, subName, cidr, gw string) error {
	if err := validateName(subName); err != nil {
		return err
	}
	ipnet, err := parseIPv4CIDR(cidr)
	if err != nil {
		return err
	}

	return m.mutate(ctx, func() error {
		doc, err := m.store.Load(vpcName)
		if err != nil {
			return err
		}
		if doc.FindSubnet(subName) != nil {
			return fmt.Errorf("subnet %q in VPC %q: %w", subName, vpcName, types.ErrExists)
		}

		vpcNet, err := parseIPv4CIDR(doc.CIDR)
		if err != nil {
			return fmt.Errorf("%w: VPC %q: %s", types.ErrStateCorrupt, vpcName, err)
		}
		if !containsNet(vpcNet, ipnet) {
			return fmt.Errorf("subnet %s vs VPC %s: %w", cidr, doc.CIDR, types.ErrCidrOutOfRange)
		}
		var siblings []string
		for _, s := range doc.Subnets {
			siblings = append(siblings, s.CIDR)
		}
		overlap, err := overlapsAny(ipnet, siblings)
		if err != nil {
			return err
		}
		if overlap {
			return fmt.Errorf("subnet %s: %w", cidr, types.ErrCidrOverlap)
		}

		gwIP, hostIP, err := pickAddresses(ipnet, gw)
		if err != nil {
			return err
		}

		vethBridge, vethNS := names.VethPair(vpcName, subName)
		sub := types.Subnet{
			Name:    subName,
			CIDR:    ipnet.String(),
			NS:      names.Namespace(vpcName, subName),
			Gateway: gwIP.String(),
			HostIP:  hostIP.String(),
			Veth:    types.Veth{Bridge: vethBridge, Namespace: vethNS},
		}

		if err := m.subnetKernel(ctx, doc, &sub, ipnet); err != nil {
			doc.Subnets = append(doc.Subnets, sub)
			return m.savePartial(ctx, doc, err)
		}
		doc.Subnets = append(doc.Subnets, sub)

		// Every subnet starts under the default policy (web open, ssh shut).
		if err := m.applyPolicyToSubnet(ctx, doc, &sub, policy.Default(sub.CIDR)); err != nil {
			return m.savePartial(ctx, doc, err)
		}

		log.WithFunc("vpc.AddSubnet").Infof(ctx, "created subnet %q (%s) in VPC %q: ns %s, gw %s",
			subName, sub.CIDR, vpcName, sub.NS, sub.Gateway)
		return m.store.Save(doc)
	})
}

func (m *Manager) subnetKernel(ctx context.Context, doc *types.VPC, sub *types.Subnet, ipnet *net.IPNet) error {
	ones, _ := ipnet.Mask.Size()

	if _, err := m.net.EnsureNamespace(ctx, sub.NS); err != nil {
		return err
	}
	if _, err := m.net.EnsureVethPair(ctx, sub.Veth.Bridge, sub.Veth.Namespace); err != nil {
		return err
	}
	if _, err := m.net.AttachToBridge(ctx, sub.Veth.Bridge, doc.Bridge); err != nil {
		return err
	}
	if _, err := m.net.MoveToNamespace(ctx, sub.Veth.Namespace, sub.NS); err != nil {
		return err
	}
	// The bridge carries the subnet gateway address.
	if _, err := m.net.EnsureBridgeAddr(ctx, doc.Bridge, fmt.Sprintf("%s/%d", sub.Gateway, ones)); err != nil {
		return err
	}
	_, err := m.net.ConfigureInNamespace(ctx, sub.NS, sub.Veth.Namespace,
		fmt.Sprintf("%s/%d", sub.HostIP, ones), sub.Gateway)
	return err
}

// pickAddresses resolves the gateway (operator-supplied or first usable) and
// the namespace host address (second usable, or the first usable address
// distinct from the gateway).
func pickAddresses(ipnet *net.IPNet, gw string) (gwIP, hostIP net.IP, err error) {
	first, second, err := usableRange(ipnet)
	if err != nil {
		return nil, nil, err
	}
	if gw == "" {
		return first, second, nil
	}
	gwIP = net.ParseIP(gw)
	if gwIP == nil || gwIP.To4() == nil || !ipnet.Contains(gwIP) {
		return nil, nil, fmt.Errorf("%w: gateway %q not inside %s", types.ErrCidrInvalid, gw, ipnet)
	}
	if gwIP.Equal(first) {
		return gwIP, second, nil
	}
	return gwIP, first, nil
}
