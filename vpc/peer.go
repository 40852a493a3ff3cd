package vpc

import (
	"context"
	"fmt"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/vpcctl/iptables"
	"github.com/projecteru2/vpcctl/names"
	"github.com/projecteru2/vpcctl/types"
)

// Peer connects two VPC bridges with a veth pair and installs accept rules
// for the allowed CIDR pairs, finishing each chain with a drop toward the
// peer bridge so only the allow set crosses. Both documents record the
// peering symmetrically.
func (m *Manager) Peer(ctx context.Context, vpcA, vpcB string, allowCIDRs []string) error {
	if vpcA == vpcB {
		return fmt.Errorf("%q: %w", vpcA, types.ErrSelfPeer)
	}
	for _, c := range allowCIDRs {
		if _, err := parseIPv4CIDR(c); err != nil {
			return err
		}
	}

	return m.mutate(ctx, func() error {
		docA, err := m.store.Load(vpcA)
		if err != nil {
			return err
		}
		docB, err := m.store.Load(vpcB)
		if err != nil {
			return err
		}
		if docA.FindPeering(vpcB) != nil || docB.FindPeering(vpcA) != nil {
			return fmt.Errorf("%q and %q: %w", vpcA, vpcB, types.ErrAlreadyPeered)
		}

		allow := allowCIDRs
		if len(allow) == 0 {
			allow = []string{docA.CIDR, docB.CIDR}
		}

		vethA, vethB := names.PeerVethPair(vpcA, vpcB)
		if err := m.peerKernel(ctx, docA, docB, vethA, vethB, allow); err != nil {
			// Record both halves so either side's delete unwinds the link.
			m.recordPeering(docA, docB, vethA, vethB, allow)
			saveErr := m.savePartial(ctx, docA, err)
			_ = m.store.Save(docB)
			return saveErr
		}
		m.recordPeering(docA, docB, vethA, vethB, allow)

		if err := m.store.Save(docA); err != nil {
			return err
		}
		if err := m.store.Save(docB); err != nil {
			return err
		}
		log.WithFunc("vpc.Peer").Infof(ctx, "peered %q <-> %q via %s/%s, allowed %v",
			vpcA, vpcB, vethA, vethB, allow)
		return nil
	})
}

func (m *Manager) peerKernel(ctx context.Context, docA, docB *types.VPC, vethA, vethB string, allow []string) error {
	if _, err := m.net.EnsureVethPair(ctx, vethA, vethB); err != nil {
		return err
	}
	if _, err := m.net.AttachToBridge(ctx, vethA, docA.Bridge); err != nil {
		return err
	}
	if _, err := m.net.AttachToBridge(ctx, vethB, docB.Bridge); err != nil {
		return err
	}

	comment := fmt.Sprintf("%speer:%s:%s", iptables.CommentPrefix, docA.Name, docB.Name)
	for _, src := range allow {
		for _, dst := range allow {
			if src == dst && len(allow) > 1 {
				continue
			}
			ruleA := iptables.Rule{
				Chain:     docA.Chain,
				Selectors: []string{"-o", docB.Bridge, "-s", src, "-d", dst},
				Verdict:   iptables.VerdictAccept,
				Comment:   comment,
			}
			if err := m.ensureRecorded(ctx, docA, ruleA); err != nil {
				return err
			}
			ruleB := iptables.Rule{
				Chain:     docB.Chain,
				Selectors: []string{"-o", docA.Bridge, "-s", src, "-d", dst},
				Verdict:   iptables.VerdictAccept,
				Comment:   comment,
			}
			if err := m.ensureRecorded(ctx, docB, ruleB); err != nil {
				return err
			}
		}
	}

	// Everything else headed for the peer bridge is dropped.
	dropComment := fmt.Sprintf("%speer-drop:%s:%s", iptables.CommentPrefix, docA.Name, docB.Name)
	dropA := iptables.Rule{
		Chain:     docA.Chain,
		Selectors: []string{"-o", docB.Bridge},
		Verdict:   iptables.VerdictDrop,
		Comment:   dropComment,
	}
	if err := m.ensureRecorded(ctx, docA, dropA); err != nil {
		return err
	}
	dropB := iptables.Rule{
		Chain:     docB.Chain,
		Selectors: []string{"-o", docA.Bridge},
		Verdict:   iptables.VerdictDrop,
		Comment:   dropComment,
	}
	return m.ensureRecorded(ctx, docB, dropB)
}

func (m *Manager) recordPeering(docA, docB *types.VPC, vethA, vethB string, allow []string) {
	if docA.FindPeering(docB.Name) == nil {
		docA.Peers = append(docA.Peers, types.Peering{
			PeerVPC:    docB.Name,
			LocalVeth:  vethA,
			RemoteVeth: vethB,
			AllowCIDRs: allow,
		})
	}
	if docB.FindPeering(docA.Name) == nil {
		docB.Peers = append(docB.Peers, types.Peering{
			PeerVPC:    docA.Name,
			LocalVeth:  vethB,
			RemoteVeth: vethA,
			AllowCIDRs: allow,
		})
	}
}

// peeringComments returns the comment tags a peering between a and b may
// carry, in either creation order.
func peeringComments(a, b string) []string {
	return []string{
		fmt.Sprintf("%speer:%s:%s", iptables.CommentPrefix, a, b),
		fmt.Sprintf("%speer:%s:%s", iptables.CommentPrefix, b, a),
		fmt.Sprintf("%speer-drop:%s:%s", iptables.CommentPrefix, a, b),
		fmt.Sprintf("%speer-drop:%s:%s", iptables.CommentPrefix, b, a),
	}
}
