package vpc

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/vpcctl/iptables"
	"github.com/projecteru2/vpcctl/names"
	"github.com/projecteru2/vpcctl/types"
)

// Create materializes a new VPC: bridge, address, forwarding, dedicated
// filter chain with a FORWARD jump, and an intra-VPC accept rule. The
// initial document is written last; on partial failure the document still
// records what was done so delete can unwind it.
func (m *Manager) Create(ctx context.Context, name, cidr string) error {
	if err := validateName(name); err != nil {
		return err
	}
	ipnet, err := parseIPv4CIDR(cidr)
	if err != nil {
		return err
	}
	if _, _, err := usableRange(ipnet); err != nil {
		return err
	}

	return m.mutate(ctx, func() error {
		if m.store.Exists(name) {
			return fmt.Errorf("VPC %q: %w", name, types.ErrExists)
		}

		doc := &types.VPC{
			Name:      name,
			CIDR:      ipnet.String(),
			Bridge:    names.Bridge(name),
			Chain:     names.Chain(name),
			Subnets:   []types.Subnet{},
			Apps:      []types.App{},
			Peers:     []types.Peering{},
			CreatedAt: now(),
		}

		if err := m.createKernel(ctx, doc, ipnet); err != nil {
			return m.savePartial(ctx, doc, err)
		}

		log.WithFunc("vpc.Create").Infof(ctx, "created VPC %q (bridge %s, chain %s, cidr %s)",
			name, doc.Bridge, doc.Chain, doc.CIDR)
		return m.store.Save(doc)
	})
}

func (m *Manager) createKernel(ctx context.Context, doc *types.VPC, ipnet *net.IPNet) error {
	if _, err := m.net.EnsureBridge(ctx, doc.Bridge); err != nil {
		return err
	}
	gw, _, err := usableRange(ipnet)
	if err != nil {
		return err
	}
	ones, _ := ipnet.Mask.Size()
	if _, err := m.net.EnsureBridgeAddr(ctx, doc.Bridge, fmt.Sprintf("%s/%d", gw, ones)); err != nil {
		return err
	}
	if _, err := m.net.EnableIPForward(ctx); err != nil {
		return err
	}

	if err := m.ipt.EnsureChain(ctx, doc.Chain); err != nil {
		return err
	}

	// Jump from the host FORWARD chain into the VPC chain for packets
	// entering via the bridge.
	jump := iptables.Rule{
		Chain:     "FORWARD",
		Insert:    true,
		Selectors: []string{"-i", doc.Bridge},
		Verdict:   doc.Chain,
		Comment:   fmt.Sprintf("%s%s:jump", iptables.CommentPrefix, doc.Name),
	}
	if err := m.ensureRecorded(ctx, doc, jump); err != nil {
		return err
	}

	// Intra-VPC traffic is accepted even when the host FORWARD policy drops
	// by default.
	intra := iptables.Rule{
		Chain:     doc.Chain,
		Selectors: []string{"-s", doc.CIDR, "-d", doc.CIDR},
		Verdict:   iptables.VerdictAccept,
		Comment:   fmt.Sprintf("%s%s:intra", iptables.CommentPrefix, doc.Name),
	}
	return m.ensureRecorded(ctx, doc, intra)
}

// ensureRecorded applies a host rule idempotently and appends its add-form
// to the document's replay log unless it is already recorded.
func (m *Manager) ensureRecorded(ctx context.Context, doc *types.VPC, r iptables.Rule) error {
	recorded, _, err := m.ipt.Ensure(ctx, r)
	if err != nil {
		return err
	}
	for _, have := range doc.HostIptables {
		if tokensEqual(have, recorded) {
			return nil
		}
	}
	doc.HostIptables = append(doc.HostIptables, recorded)
	return nil
}

// savePartial persists whatever progress the document records so a later
// delete can unwind it, then returns the original failure.
func (m *Manager) savePartial(ctx context.Context, doc *types.VPC, cause error) error {
	if saveErr := m.store.Save(doc); saveErr != nil {
		return errors.Join(cause, saveErr)
	}
	log.WithFunc("vpc.savePartial").Warnf(ctx, "operation on VPC %q failed midway; partial state recorded: %v",
		doc.Name, cause)
	return cause
}

func tokensEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// validateName accepts printable-ASCII names of at least one character.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("VPC name must not be empty")
	}
	for _, r := range name {
		if r < 0x20 || r > 0x7e {
			return fmt.Errorf("VPC name %q contains non-printable characters", name)
		}
	}
	return nil
}
