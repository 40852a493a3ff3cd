package vpc

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/yl2chen/cidranger"

	"github.com/projecteru2/vpcctl/types"
)

// parseIPv4CIDR parses s as an IPv4 prefix in canonical form.
func parseIPv4CIDR(s string) (*net.IPNet, error) {
	ip, ipnet, err := net.ParseCIDR(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", types.ErrCidrInvalid, s)
	}
	if ip.To4() == nil {
		return nil, fmt.Errorf("%w: %q is not IPv4", types.ErrCidrInvalid, s)
	}
	if !ip.Equal(ipnet.IP) {
		return nil, fmt.Errorf("%w: %q has host bits set", types.ErrCidrInvalid, s)
	}
	return ipnet, nil
}

// usableRange returns the first and second usable host addresses of an IPv4
// network. Prefixes shorter than two usable addresses (/31, /32) are
// rejected: a subnet needs a gateway plus at least one host.
func usableRange(n *net.IPNet) (first, second net.IP, err error) {
	ones, bits := n.Mask.Size()
	if bits != 32 || ones > 30 {
		return nil, nil, fmt.Errorf("%w: %s has no room for gateway and host", types.ErrCidrInvalid, n)
	}
	base := binary.BigEndian.Uint32(n.IP.To4())
	return u32ToIP(base + 1), u32ToIP(base + 2), nil
}

func u32ToIP(v uint32) net.IP {
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, v)
	return ip
}

// containsNet reports whether outer wholly contains inner. CIDRs either nest
// or are disjoint, so containment of the network address with a wider or
// equal mask is sufficient.
func containsNet(outer, inner *net.IPNet) bool {
	outerOnes, _ := outer.Mask.Size()
	innerOnes, _ := inner.Mask.Size()
	return outerOnes <= innerOnes && outer.Contains(inner.IP)
}

// overlapsAny reports whether candidate overlaps any of the existing CIDRs.
func overlapsAny(candidate *net.IPNet, existing []string) (bool, error) {
	ranger := cidranger.NewPCTrieRanger()
	for _, cidr := range existing {
		n, err := parseIPv4CIDR(cidr)
		if err != nil {
			return false, err
		}
		if err := ranger.Insert(cidranger.NewBasicRangerEntry(*n)); err != nil {
			return false, fmt.Errorf("index %s: %w", cidr, err)
		}
	}
	// An existing subnet containing the candidate's network address…
	containing, err := ranger.ContainingNetworks(candidate.IP)
	if err != nil {
		return false, fmt.Errorf("overlap query: %w", err)
	}
	if len(containing) > 0 {
		return true, nil
	}
	// …or an existing subnet nested inside the candidate.
	covered, err := ranger.CoveredNetworks(*candidate)
	if err != nil {
		return false, fmt.Errorf("overlap query: %w", err)
	}
	return len(covered) > 0, nil
}
