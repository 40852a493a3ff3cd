package vpc

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/vpcctl/iptables"
	"github.com/projecteru2/vpcctl/types"
)

// Delete unwinds a VPC: apps are stopped, the host rule replay log is
// reversed, peerings are dismantled on both sides, then namespaces, bridge,
// and the dedicated chain are removed. Every kernel step is best-effort
// (failures are logged and teardown continues); the only hard failure is
// being unable to remove the document itself.
func (m *Manager) Delete(ctx context.Context, name string) error {
	return m.mutate(ctx, func() error {
		return m.deleteLocked(ctx, name)
	})
}

func (m *Manager) deleteLocked(ctx context.Context, name string) error {
	logger := log.WithFunc("vpc.Delete")
	doc, err := m.store.Load(name)
	if err != nil {
		return err
	}

	// Apps first: nothing should be listening while the namespace dies.
	for _, app := range doc.Apps {
		m.stopOne(ctx, app)
	}

	// Reverse the host rule replay log. The FORWARD jump was recorded first,
	// so it is removed last, after the chain's own rules.
	for i := len(doc.HostIptables) - 1; i >= 0; i-- {
		if err := m.ipt.DeleteRecorded(ctx, doc.HostIptables[i]); err != nil {
			logger.Warnf(ctx, "remove recorded rule: %v", err)
		}
	}

	// Peerings are co-owned: drop the link and scrub the other side's
	// document (its mirror record and its recorded rules for this peering).
	for _, p := range doc.Peers {
		if _, err := m.net.DeleteLink(ctx, p.LocalVeth); err != nil {
			logger.Warnf(ctx, "remove peering link %s: %v", p.LocalVeth, err)
		}
		if err := m.scrubPeer(ctx, name, p.PeerVPC); err != nil {
			logger.Warnf(ctx, "scrub peer %q: %v", p.PeerVPC, err)
		}
	}

	for _, s := range doc.Subnets {
		// Flush namespace-local tables, then drop the namespace; the veth
		// pair dies with its namespace end. The bridge side is removed
		// explicitly in case an earlier run never completed the move.
		for _, table := range []string{"filter", "nat"} {
			if err := m.ipt.FlushNamespace(ctx, s.NS, table); err != nil {
				logger.Warnf(ctx, "flush %s table in %s: %v", table, s.NS, err)
			}
		}
		if _, err := m.net.DeleteNamespace(ctx, s.NS); err != nil {
			logger.Warnf(ctx, "remove namespace %s: %v", s.NS, err)
		}
		if _, err := m.net.DeleteLink(ctx, s.Veth.Bridge); err != nil {
			logger.Warnf(ctx, "remove veth %s: %v", s.Veth.Bridge, err)
		}
	}

	if _, err := m.net.DeleteBridge(ctx, doc.Bridge); err != nil {
		logger.Warnf(ctx, "remove bridge %s: %v", doc.Bridge, err)
	}

	if err := m.ipt.FlushChain(ctx, doc.Chain); err != nil {
		logger.Warnf(ctx, "flush chain %s: %v", doc.Chain, err)
	}
	if err := m.ipt.DeleteChain(ctx, doc.Chain); err != nil {
		logger.Warnf(ctx, "delete chain %s: %v", doc.Chain, err)
	}

	if m.conf.DryRun {
		logger.Infof(ctx, "dry-run: keeping document for VPC %q", name)
		return nil
	}
	if err := m.store.Delete(name); err != nil {
		return fmt.Errorf("VPC %q torn down but document not removed: %w", name, err)
	}
	logger.Infof(ctx, "deleted VPC %q", name)
	return nil
}

// scrubPeer removes the mirror peering record from the peer's document along
// with the peer-side rules recorded for this peering, deleting those rules
// from the kernel as it goes.
func (m *Manager) scrubPeer(ctx context.Context, deleted, peerName string) error {
	logger := log.WithFunc("vpc.scrubPeer")
	peerDoc, err := m.store.Load(peerName)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil
		}
		return err
	}

	comments := peeringComments(deleted, peerName)
	var keptRules [][]string
	for _, tokens := range peerDoc.HostIptables {
		if !slices.Contains(comments, iptables.CommentOf(tokens)) {
			keptRules = append(keptRules, tokens)
			continue
		}
		if err := m.ipt.DeleteRecorded(ctx, tokens); err != nil {
			logger.Warnf(ctx, "remove peer-side rule: %v", err)
		}
	}
	peerDoc.HostIptables = keptRules

	var keptPeers []types.Peering
	for _, p := range peerDoc.Peers {
		if p.PeerVPC != deleted {
			keptPeers = append(keptPeers, p)
		}
	}
	peerDoc.Peers = keptPeers
	if peerDoc.Peers == nil {
		peerDoc.Peers = []types.Peering{}
	}

	if m.conf.DryRun {
		return nil
	}
	return m.store.Save(peerDoc)
}

// CleanupAll deletes every VPC in the store, in name order. Per-VPC failures
// are collected; the remaining VPCs are still attempted.
func (m *Manager) CleanupAll(ctx context.Context) error {
	return m.mutate(ctx, func() error {
		names, err := m.store.List()
		if err != nil {
			return err
		}
		var errs []error
		for _, name := range names {
			if err := m.deleteLocked(ctx, name); err != nil {
				errs = append(errs, fmt.Errorf("VPC %q: %w", name, err))
			}
		}
		return errors.Join(errs...)
	})
}
