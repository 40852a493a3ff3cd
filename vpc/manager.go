// Package vpc implements the VPC control plane: it owns the durable VPC
// documents, plans and executes the kernel mutations that converge the host
// to them, and drives metadata-guided teardown.
package vpc

import (
	"context"
	"os"
	"time"

	"github.com/projecteru2/vpcctl/config"
	"github.com/projecteru2/vpcctl/executor"
	"github.com/projecteru2/vpcctl/iptables"
	"github.com/projecteru2/vpcctl/lock"
	lockflock "github.com/projecteru2/vpcctl/lock/flock"
	"github.com/projecteru2/vpcctl/netops"
	"github.com/projecteru2/vpcctl/store"
	"github.com/projecteru2/vpcctl/types"
	"github.com/projecteru2/vpcctl/utils"
)

// Manager composes the control-plane components behind the operations API.
// Operations are strictly sequential; mutating operations hold an exclusive
// flock on the data directory for their full read-plan-execute-persist cycle.
type Manager struct {
	conf     *config.Config
	store    *store.Store
	exec     executor.Executor
	ipt      *iptables.Manager
	net      *netops.Ops
	probe    netops.Prober
	locker   lock.Locker
	launcher AppLauncher

	// Test seams: privilege gate and process control.
	euid      func() int
	alive     func(pid int) bool
	terminate func(pid int, grace time.Duration) error
}

// New builds a Manager for the host, honoring conf.DryRun.
func New(conf *config.Config) (*Manager, error) {
	if err := conf.EnsureDirsExist(); err != nil {
		return nil, err
	}
	var exec executor.Executor
	if conf.DryRun {
		exec = executor.NewDry(os.Stdout, conf.CommandTimeout())
	} else {
		exec = executor.NewLive(conf.CommandTimeout())
	}
	return newManager(conf, exec, netops.KernelProber{}, &detachedLauncher{}), nil
}

// NewWithDeps builds a Manager with injected executor, prober, and launcher.
// Used by tests; the data and log directories must exist.
func NewWithDeps(conf *config.Config, exec executor.Executor, probe netops.Prober, launcher AppLauncher) *Manager {
	return newManager(conf, exec, probe, launcher)
}

func newManager(conf *config.Config, exec executor.Executor, probe netops.Prober, launcher AppLauncher) *Manager {
	return &Manager{
		conf:      conf,
		store:     store.New(conf.DataDir),
		exec:      exec,
		ipt:       iptables.NewManager(exec),
		net:       netops.New(exec, probe),
		probe:     probe,
		locker:    lockflock.New(conf.StoreLockPath()),
		launcher:  launcher,
		euid:      os.Geteuid,
		alive:     utils.IsProcessAlive,
		terminate: utils.TerminateProcess,
	}
}

// Store exposes the metadata store for read-only callers.
func (m *Manager) Store() *store.Store { return m.store }

// mutate runs fn as one exclusive control-plane operation: privilege gate,
// then the store lock for the duration.
func (m *Manager) mutate(ctx context.Context, fn func() error) error {
	if err := m.requirePrivilege(); err != nil {
		return err
	}
	return lock.WithLock(ctx, m.locker, fn)
}

// requirePrivilege rejects live mutations without root. Dry runs only trace,
// so they are allowed for any user.
func (m *Manager) requirePrivilege() error {
	if m.conf.DryRun {
		return nil
	}
	if m.euid() != 0 {
		return types.ErrPrivilege
	}
	return nil
}

// List returns the names of all stored VPCs. Lock-free.
func (m *Manager) List(_ context.Context) ([]string, error) {
	return m.store.List()
}

// Inspect returns the VPC document verbatim. Lock-free.
func (m *Manager) Inspect(_ context.Context, name string) (*types.VPC, error) {
	return m.store.Load(name)
}

func now() time.Time { return time.Now() }
