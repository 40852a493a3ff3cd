//go:build linux

package netops

import (
	"fmt"
	"net"
	"os"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"
)

// namedNsDir is where iproute2 keeps references to named namespaces.
const namedNsDir = "/var/run/netns"

// KernelProber implements Prober against the live kernel via netlink.
type KernelProber struct{}

var _ Prober = KernelProber{}

// LinkExists implements Prober.
func (KernelProber) LinkExists(name string) bool {
	_, err := netlink.LinkByName(name)
	return err == nil
}

// LinkIsUp implements Prober.
func (KernelProber) LinkIsUp(name string) bool {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return false
	}
	return link.Attrs().Flags&net.FlagUp != 0
}

// LinkHasMaster implements Prober.
func (KernelProber) LinkHasMaster(name, master string) bool {
	link, err := netlink.LinkByName(name)
	if err != nil || link.Attrs().MasterIndex == 0 {
		return false
	}
	m, err := netlink.LinkByIndex(link.Attrs().MasterIndex)
	if err != nil {
		return false
	}
	return m.Attrs().Name == master
}

// LinkHasAddr implements Prober.
func (KernelProber) LinkHasAddr(name, addrCIDR string) bool {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return false
	}
	want, err := netlink.ParseAddr(addrCIDR)
	if err != nil {
		return false
	}
	addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return false
	}
	for _, a := range addrs {
		if a.IPNet.String() == want.IPNet.String() {
			return true
		}
	}
	return false
}

// NamespaceExists implements Prober.
func (KernelProber) NamespaceExists(name string) bool {
	ns, err := netns.GetFromName(name)
	if err != nil {
		return false
	}
	_ = ns.Close()
	return true
}

// ListLinks implements Prober: names of every link in the host namespace.
func (KernelProber) ListLinks() ([]string, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("netlink link list: %w", err)
	}
	names := make([]string, 0, len(links))
	for _, l := range links {
		names = append(names, l.Attrs().Name)
	}
	return names, nil
}

// ListNamespaces implements Prober: every named netns on the host.
func (KernelProber) ListNamespaces() ([]string, error) {
	entries, err := os.ReadDir(namedNsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", namedNsDir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
