package vpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projecteru2/vpcctl/names"
	"github.com/projecteru2/vpcctl/types"
)

func appFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)
	f.mustCreate(t, "myvpc", "10.10.0.0/16")
	f.mustAddSubnet(t, "myvpc", "public", "10.10.1.0/24")
	f.mustAddSubnet(t, "myvpc", "private", "10.10.2.0/24")
	return f
}

func TestDeployAppRecordsListener(t *testing.T) {
	f := appFixture(t)
	require.NoError(t, f.m.DeployApp(f.ctx(), "myvpc", "public", 8080))

	require.Len(t, f.launcher.launched, 1)
	assert.Equal(t, []string{"ip", "netns", "exec", "ns-myvpc-public", "python3", "-m", "http.server", "8080"},
		f.launcher.launched[0])
	assert.Equal(t, f.conf.AppLogPath("ns-myvpc-public"), f.launcher.logPaths[0])

	doc := f.load(t, "myvpc")
	require.Len(t, doc.Apps, 1)
	app := doc.Apps[0]
	assert.NotEmpty(t, app.ID)
	assert.Equal(t, "ns-myvpc-public", app.NS)
	assert.Equal(t, 8080, app.Port)
	assert.Equal(t, 4001, app.PID)
	assert.False(t, app.StartedAt.IsZero())
}

func TestDeployAppUnknownSubnet(t *testing.T) {
	f := appFixture(t)
	assert.ErrorIs(t, f.m.DeployApp(f.ctx(), "myvpc", "ghost", 8080), types.ErrNotFound)
	assert.Empty(t, f.launcher.launched)
}

func TestDeployAppBadPort(t *testing.T) {
	f := appFixture(t)
	assert.Error(t, f.m.DeployApp(f.ctx(), "myvpc", "public", 0))
	assert.Error(t, f.m.DeployApp(f.ctx(), "myvpc", "public", 70000))
}

func TestDeployAppDryRunTracesOnly(t *testing.T) {
	f := appFixture(t)
	f.conf.DryRun = true
	require.NoError(t, f.m.DeployApp(f.ctx(), "myvpc", "public", 8080))

	assert.Empty(t, f.launcher.launched)
	assert.Empty(t, f.load(t, "myvpc").Apps)
	assert.Len(t, f.ranContaining("python3 -m http.server 8080"), 1)
}

func TestStopAppByNamespace(t *testing.T) {
	f := appFixture(t)
	require.NoError(t, f.m.DeployApp(f.ctx(), "myvpc", "public", 8080))
	require.NoError(t, f.m.DeployApp(f.ctx(), "myvpc", "private", 9090))

	stopped, err := f.m.StopApp(f.ctx(), "myvpc", "ns-myvpc-public", 0)
	require.NoError(t, err)
	require.Len(t, stopped, 1)
	assert.Equal(t, "ns-myvpc-public", stopped[0].NS)

	doc := f.load(t, "myvpc")
	require.Len(t, doc.Apps, 1)
	// "ns-myvpc-private" is one over the 15-char bound, so it carries a hash tail.
	assert.Equal(t, names.Namespace("myvpc", "private"), doc.Apps[0].NS)
}

func TestStopAppByPID(t *testing.T) {
	f := appFixture(t)
	require.NoError(t, f.m.DeployApp(f.ctx(), "myvpc", "public", 8080))
	pid := f.load(t, "myvpc").Apps[0].PID

	stopped, err := f.m.StopApp(f.ctx(), "myvpc", "", pid)
	require.NoError(t, err)
	require.Len(t, stopped, 1)
	assert.Empty(t, f.load(t, "myvpc").Apps)
}

func TestStopAppAllWhenUnselected(t *testing.T) {
	f := appFixture(t)
	require.NoError(t, f.m.DeployApp(f.ctx(), "myvpc", "public", 8080))
	require.NoError(t, f.m.DeployApp(f.ctx(), "myvpc", "private", 9090))

	stopped, err := f.m.StopApp(f.ctx(), "myvpc", "", 0)
	require.NoError(t, err)
	assert.Len(t, stopped, 2)
	assert.Empty(t, f.load(t, "myvpc").Apps)
}

func TestStopAppNoMatch(t *testing.T) {
	f := appFixture(t)
	_, err := f.m.StopApp(f.ctx(), "myvpc", "ns-ghost", 0)
	assert.ErrorIs(t, err, types.ErrNotFound)
}
