package vpc

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/projecteru2/vpcctl/config"
	"github.com/projecteru2/vpcctl/executor"
	"github.com/projecteru2/vpcctl/netops"
	"github.com/projecteru2/vpcctl/types"
)

// fakeLauncher records launches without spawning processes.
type fakeLauncher struct {
	pid      int
	launched [][]string
	logPaths []string
}

func (f *fakeLauncher) Launch(_ context.Context, tokens []string, logPath string) (int, error) {
	f.launched = append(f.launched, tokens)
	f.logPaths = append(f.logPaths, logPath)
	f.pid++
	return f.pid, nil
}

type fixture struct {
	m        *Manager
	rec      *executor.Recorder
	probe    *netops.FakeProber
	launcher *fakeLauncher
	conf     *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conf := config.DefaultConfig()
	conf.DataDir = t.TempDir()
	conf.LogDir = t.TempDir()

	rec := &executor.Recorder{ProbeResults: map[string]bool{}}
	probe := netops.NewFakeProber()
	launcher := &fakeLauncher{pid: 4000}

	m := NewWithDeps(conf, rec, probe, launcher)
	m.euid = func() int { return 0 }
	// Never signal real processes from tests.
	m.alive = func(int) bool { return true }
	m.terminate = func(int, time.Duration) error { return nil }
	return &fixture{m: m, rec: rec, probe: probe, launcher: launcher, conf: conf}
}

func (f *fixture) ctx() context.Context { return context.Background() }

func (f *fixture) mustCreate(t *testing.T, name, cidr string) {
	t.Helper()
	require.NoError(t, f.m.Create(f.ctx(), name, cidr))
}

func (f *fixture) mustAddSubnet(t *testing.T, vpc, sub, cidr string) {
	t.Helper()
	require.NoError(t, f.m.AddSubnet(f.ctx(), vpc, sub, cidr, ""))
}

func (f *fixture) load(t *testing.T, name string) *types.VPC {
	t.Helper()
	doc, err := f.m.store.Load(name)
	require.NoError(t, err)
	return doc
}

// ranContaining returns the recorded command lines containing every fragment.
func (f *fixture) ranContaining(fragments ...string) []string {
	var out []string
line:
	for _, l := range f.rec.RanLines() {
		for _, frag := range fragments {
			if !strings.Contains(l, frag) {
				continue line
			}
		}
		out = append(out, l)
	}
	return out
}

func TestPrivilegeGate(t *testing.T) {
	f := newFixture(t)
	f.m.euid = func() int { return 1000 }
	err := f.m.Create(f.ctx(), "myvpc", "10.10.0.0/16")
	require.ErrorIs(t, err, types.ErrPrivilege)
}

func TestPrivilegeGateSkippedInDryRun(t *testing.T) {
	f := newFixture(t)
	f.m.euid = func() int { return 1000 }
	f.conf.DryRun = true
	require.NoError(t, f.m.Create(f.ctx(), "myvpc", "10.10.0.0/16"))
}
