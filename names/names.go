// Package names derives kernel-safe identifiers from logical VPC and subnet
// names. Encoding is pure: the same logical input always yields the same
// identifier, so identifiers can be recomputed instead of stored where
// convenient.
package names

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
)

// IfNameMax is the kernel interface-name limit (IFNAMSIZ minus the NUL).
const IfNameMax = 15

// chainMax keeps chain identifiers within iptables' 28-character bound.
const chainMax = 28

// Reserved identifier prefixes. Other host components must not use these.
const (
	BridgePrefix    = "br-"
	NamespacePrefix = "ns-"
	ChainPrefix     = "vpc-"
	VethPrefix      = "v-"
	PeerVethPrefix  = "pv-"
)

var invalidChars = regexp.MustCompile(`[^A-Za-z0-9-]`)
var dashRuns = regexp.MustCompile(`-{2,}`)

// Bridge returns the bridge identifier for a VPC.
func Bridge(vpc string) string {
	return encode(BridgePrefix, "", IfNameMax, vpc)
}

// Namespace returns the netns identifier for a subnet. Namespace names are
// not subject to IFNAMSIZ, but they are bounded anyway so every derived
// identifier obeys one limit.
func Namespace(vpc, subnet string) string {
	return encode(NamespacePrefix, "", IfNameMax, vpc, subnet)
}

// Chain returns the VPC's dedicated filter chain identifier.
func Chain(vpc string) string {
	return encode(ChainPrefix, "", chainMax, vpc)
}

// VethPair returns the (bridge side, namespace side) veth identifiers for a
// subnet link.
func VethPair(vpc, subnet string) (bridgeSide, nsSide string) {
	return encode(VethPrefix, "b", IfNameMax, vpc, subnet),
		encode(VethPrefix, "n", IfNameMax, vpc, subnet)
}

// PeerVethPair returns the two ends of a peering link. The "a" end belongs
// to vpcA's bridge and the "b" end to vpcB's.
func PeerVethPair(vpcA, vpcB string) (aSide, bSide string) {
	return encode(PeerVethPrefix, "a", IfNameMax, vpcA, vpcB),
		encode(PeerVethPrefix, "b", IfNameMax, vpcA, vpcB)
}

// encode joins parts with '-', sanitizes to [A-Za-z0-9-], and truncates from
// the right so prefix+core+suffix fits maxlen. When truncation would discard
// information, the tail of the core is replaced with a 4-hex FNV-1a digest of
// the full logical input so distinct long names stay distinct.
func encode(prefix, suffix string, maxlen int, parts ...string) string {
	core := strings.Join(parts, "-")
	core = invalidChars.ReplaceAllString(core, "-")
	core = dashRuns.ReplaceAllString(core, "-")
	core = strings.Trim(core, "-")

	avail := maxlen - len(prefix) - len(suffix)
	if avail <= 0 {
		return (prefix + suffix)[:maxlen]
	}
	if len(core) > avail {
		h := shortHash(strings.Join(parts, "\x00"))
		if avail > len(h) {
			core = core[:avail-len(h)] + h
		} else {
			core = h[:avail]
		}
	}
	return prefix + core + suffix
}

func shortHash(s string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return fmt.Sprintf("%04x", h.Sum32()&0xffff)
}
