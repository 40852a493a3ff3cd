package vpc

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/projecteru2/vpcctl/names"
)

// Resource is one kernel object (or the record of one) examined by Verify.
type Resource struct {
	// Kind is one of "namespace", "link", "bridge", "chain".
	Kind string `json:"kind"`
	Name string `json:"name"`
	// VPC is the owning VPC for accounted resources.
	VPC string `json:"vpc,omitempty"`
	// Missing marks a metadata-referenced object absent from the kernel.
	Missing bool `json:"missing,omitempty"`
}

// Report is the outcome of Verify: resources accounted for by some VPC
// document, and orphans — live objects with vpcctl naming that no document
// claims, or recorded objects the kernel no longer has.
type Report struct {
	Accounted []Resource `json:"accounted"`
	Orphans   []Resource `json:"orphans"`
}

// Clean reports whether no orphans were found.
func (r *Report) Clean() bool { return len(r.Orphans) == 0 }

// Verify cross-checks metadata against live kernel state. It performs no
// mutation and takes no lock, so it may observe an operation in flight.
func (m *Manager) Verify(ctx context.Context) (*Report, error) {
	var nsNames, linkNames, chains []string

	// The three enumerations are independent and read-only.
	eg, _ := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		nsNames, err = m.probe.ListNamespaces()
		return err
	})
	eg.Go(func() (err error) {
		linkNames, err = m.probe.ListLinks()
		return err
	})
	eg.Go(func() (err error) {
		chains, err = m.ipt.ListUserChains(ctx, "filter")
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	vpcNames, err := m.store.List()
	if err != nil {
		return nil, err
	}

	// owner maps kind/name → VPC for every object the documents claim.
	type key struct{ kind, name string }
	owner := map[key]string{}
	var claimed []key
	claim := func(kind, name, vpc string) {
		k := key{kind, name}
		owner[k] = vpc
		claimed = append(claimed, k)
	}
	for _, vn := range vpcNames {
		doc, err := m.store.Load(vn)
		if err != nil {
			return nil, err
		}
		claim("bridge", doc.Bridge, vn)
		claim("chain", doc.Chain, vn)
		for _, s := range doc.Subnets {
			claim("namespace", s.NS, vn)
			// The namespace-side veth end lives inside the netns and is not
			// visible to a host link listing.
			claim("link", s.Veth.Bridge, vn)
		}
		for _, p := range doc.Peers {
			claim("link", p.LocalVeth, vn)
		}
	}

	report := &Report{}
	live := map[key]bool{}
	account := func(kind, name string) {
		k := key{kind, name}
		live[k] = true
		if vpc, ok := owner[k]; ok {
			report.Accounted = append(report.Accounted, Resource{Kind: kind, Name: name, VPC: vpc})
		} else {
			report.Orphans = append(report.Orphans, Resource{Kind: kind, Name: name})
		}
	}

	for _, n := range nsNames {
		if strings.HasPrefix(n, names.NamespacePrefix) {
			account("namespace", n)
		}
	}
	for _, l := range linkNames {
		switch {
		case strings.HasPrefix(l, names.BridgePrefix):
			account("bridge", l)
		case strings.HasPrefix(l, names.VethPrefix), strings.HasPrefix(l, names.PeerVethPrefix):
			account("link", l)
		}
	}
	for _, c := range chains {
		if strings.HasPrefix(c, names.ChainPrefix) {
			account("chain", c)
		}
	}

	// The reverse direction: recorded objects the kernel does not have.
	for _, k := range claimed {
		if !live[k] {
			report.Orphans = append(report.Orphans, Resource{
				Kind: k.kind, Name: k.name, VPC: owner[k], Missing: true,
			})
		}
	}

	sortResources(report.Accounted)
	sortResources(report.Orphans)
	return report, nil
}

func sortResources(rs []Resource) {
	sort.Slice(rs, func(i, j int) bool {
		if rs[i].Kind != rs[j].Kind {
			return rs[i].Kind < rs[j].Kind
		}
		return rs[i].Name < rs[j].Name
	})
}
