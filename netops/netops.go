// Package netops wraps the link, namespace, address, and route mutations
// vpcctl performs. Most primitives probe the target condition first and skip
// the mutation when it is already satisfied; moving a link into a namespace
// and the address/route steps instead tolerate the "already done" error.
// Bringing loopback or the namespace-side link up and enabling forwarding
// run every time, and DeleteBridge runs without a probe. Mutations are tokenized
// ip/sysctl commands run through the executor (so dry-run traces them);
// probes read kernel state directly.
package netops

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/projecteru2/vpcctl/executor"
	"github.com/projecteru2/vpcctl/types"
)

// Prober answers read-only questions about live kernel state.
type Prober interface {
	LinkExists(name string) bool
	LinkIsUp(name string) bool
	LinkHasMaster(name, master string) bool
	LinkHasAddr(name, addrCIDR string) bool
	NamespaceExists(name string) bool

	// Enumerations used by verify.
	ListLinks() ([]string, error)
	ListNamespaces() ([]string, error)
}

// Ops executes network primitives. Each method returns the command token
// sequences it actually ran, in order, so callers can log or record them.
type Ops struct {
	exec  executor.Executor
	probe Prober
}

// New returns an Ops running mutations on exec and probing via p.
func New(exec executor.Executor, p Prober) *Ops {
	return &Ops{exec: exec, probe: p}
}

func (o *Ops) run(ctx context.Context, ran [][]string, tokens ...string) ([][]string, error) {
	if err := o.exec.Run(ctx, tokens); err != nil {
		return ran, err
	}
	return append(ran, tokens), nil
}

// runTolerating runs tokens but treats a failure whose stderr contains
// fragment as the target condition already holding.
func (o *Ops) runTolerating(ctx context.Context, ran [][]string, fragment string, tokens ...string) ([][]string, error) {
	err := o.exec.Run(ctx, tokens)
	if err == nil {
		return append(ran, tokens), nil
	}
	var execErr *types.ExecError
	if errors.As(err, &execErr) && strings.Contains(execErr.Stderr, fragment) {
		return ran, nil
	}
	return ran, err
}

// EnsureBridge creates the bridge and brings it up.
func (o *Ops) EnsureBridge(ctx context.Context, name string) ([][]string, error) {
	var ran [][]string
	var err error
	if !o.probe.LinkExists(name) {
		if ran, err = o.run(ctx, ran, "ip", "link", "add", "name", name, "type", "bridge"); err != nil {
			return ran, fmt.Errorf("create bridge %s: %w", name, err)
		}
	}
	if !o.probe.LinkIsUp(name) {
		if ran, err = o.run(ctx, ran, "ip", "link", "set", name, "up"); err != nil {
			return ran, fmt.Errorf("bridge %s up: %w", name, err)
		}
	}
	return ran, nil
}

// DeleteBridge brings the bridge down and removes it.
func (o *Ops) DeleteBridge(ctx context.Context, name string) ([][]string, error) {
	var ran [][]string
	var err error
	if ran, err = o.run(ctx, ran, "ip", "link", "set", name, "down"); err != nil {
		return ran, fmt.Errorf("bridge %s down: %w", name, err)
	}
	if ran, err = o.run(ctx, ran, "ip", "link", "del", name, "type", "bridge"); err != nil {
		return ran, fmt.Errorf("delete bridge %s: %w", name, err)
	}
	return ran, nil
}

// EnsureBridgeAddr assigns addrCIDR to the bridge unless already present.
// The bridge carries one gateway address per attached subnet.
func (o *Ops) EnsureBridgeAddr(ctx context.Context, bridge, addrCIDR string) ([][]string, error) {
	if o.probe.LinkHasAddr(bridge, addrCIDR) {
		return nil, nil
	}
	ran, err := o.runTolerating(ctx, nil, "File exists", "ip", "addr", "add", addrCIDR, "dev", bridge)
	if err != nil {
		return ran, fmt.Errorf("assign %s to %s: %w", addrCIDR, bridge, err)
	}
	return ran, nil
}

// EnsureNamespace creates the named netns and brings its loopback up.
func (o *Ops) EnsureNamespace(ctx context.Context, ns string) ([][]string, error) {
	var ran [][]string
	var err error
	if !o.probe.NamespaceExists(ns) {
		if ran, err = o.run(ctx, ran, "ip", "netns", "add", ns); err != nil {
			return ran, fmt.Errorf("create netns %s: %w", ns, err)
		}
	}
	if ran, err = o.run(ctx, ran, "ip", "netns", "exec", ns, "ip", "link", "set", "lo", "up"); err != nil {
		return ran, fmt.Errorf("netns %s loopback up: %w", ns, err)
	}
	return ran, nil
}

// DeleteNamespace removes the named netns; links moved into it die with it.
func (o *Ops) DeleteNamespace(ctx context.Context, ns string) ([][]string, error) {
	if !o.probe.NamespaceExists(ns) {
		return nil, nil
	}
	ran, err := o.run(ctx, nil, "ip", "netns", "del", ns)
	if err != nil {
		return ran, fmt.Errorf("delete netns %s: %w", ns, err)
	}
	return ran, nil
}

// EnsureVethPair creates the a/b veth pair unless either end already exists
// (an end may have been moved into a namespace, making it invisible here).
func (o *Ops) EnsureVethPair(ctx context.Context, a, b string) ([][]string, error) {
	if o.probe.LinkExists(a) || o.probe.LinkExists(b) {
		return nil, nil
	}
	ran, err := o.run(ctx, nil, "ip", "link", "add", a, "type", "veth", "peer", "name", b)
	if err != nil {
		return ran, fmt.Errorf("create veth %s/%s: %w", a, b, err)
	}
	return ran, nil
}

// DeleteLink removes a link by name. Deleting either end of a veth pair
// removes both.
func (o *Ops) DeleteLink(ctx context.Context, name string) ([][]string, error) {
	if !o.probe.LinkExists(name) {
		return nil, nil
	}
	ran, err := o.run(ctx, nil, "ip", "link", "del", name)
	if err != nil {
		return ran, fmt.Errorf("delete link %s: %w", name, err)
	}
	return ran, nil
}

// AttachToBridge enslaves the link to the bridge and brings it up.
func (o *Ops) AttachToBridge(ctx context.Context, link, bridge string) ([][]string, error) {
	var ran [][]string
	var err error
	if !o.probe.LinkHasMaster(link, bridge) {
		if ran, err = o.run(ctx, ran, "ip", "link", "set", link, "master", bridge); err != nil {
			return ran, fmt.Errorf("attach %s to %s: %w", link, bridge, err)
		}
	}
	if !o.probe.LinkIsUp(link) {
		if ran, err = o.run(ctx, ran, "ip", "link", "set", link, "up"); err != nil {
			return ran, fmt.Errorf("link %s up: %w", link, err)
		}
	}
	return ran, nil
}

// MoveToNamespace moves the link into ns. A link the host can no longer see
// was moved by an earlier run; that failure is tolerated.
func (o *Ops) MoveToNamespace(ctx context.Context, link, ns string) ([][]string, error) {
	ran, err := o.runTolerating(ctx, nil, "Cannot find device", "ip", "link", "set", link, "netns", ns)
	if err != nil {
		return ran, fmt.Errorf("move %s into %s: %w", link, ns, err)
	}
	return ran, nil
}

// ConfigureInNamespace assigns addrCIDR to dev inside ns, brings it up, and
// installs the default route via gw.
func (o *Ops) ConfigureInNamespace(ctx context.Context, ns, dev, addrCIDR, gw string) ([][]string, error) {
	var ran [][]string
	var err error
	if ran, err = o.runTolerating(ctx, ran, "File exists",
		"ip", "netns", "exec", ns, "ip", "addr", "add", addrCIDR, "dev", dev); err != nil {
		return ran, fmt.Errorf("assign %s in %s: %w", addrCIDR, ns, err)
	}
	if ran, err = o.run(ctx, ran, "ip", "netns", "exec", ns, "ip", "link", "set", dev, "up"); err != nil {
		return ran, fmt.Errorf("link %s up in %s: %w", dev, ns, err)
	}
	if ran, err = o.runTolerating(ctx, ran, "File exists",
		"ip", "netns", "exec", ns, "ip", "route", "add", "default", "via", gw); err != nil {
		return ran, fmt.Errorf("default route via %s in %s: %w", gw, ns, err)
	}
	return ran, nil
}

// EnableIPForward turns on host-global IPv4 forwarding.
func (o *Ops) EnableIPForward(ctx context.Context) ([][]string, error) {
	ran, err := o.run(ctx, nil, "sysctl", "-w", "net.ipv4.ip_forward=1")
	if err != nil {
		return ran, fmt.Errorf("enable ip_forward: %w", err)
	}
	return ran, nil
}
