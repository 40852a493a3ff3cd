package vpc

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/projecteru2/core/log"

	"github.com/projecteru2/vpcctl/types"
)

// AppLauncher starts a detached workload process. It exists as a seam so
// tests can deploy without spawning listeners.
type AppLauncher interface {
	Launch(ctx context.Context, tokens []string, logPath string) (pid int, err error)
}

// detachedLauncher starts the workload in its own process group with output
// redirected to the log file, then releases the handle so the listener
// outlives this process.
type detachedLauncher struct{}

func (detachedLauncher) Launch(_ context.Context, tokens []string, logPath string) (int, error) {
	logFile, err := os.Create(logPath) //nolint:gosec // path derived from vpcctl log dir
	if err != nil {
		return 0, fmt.Errorf("create app log %s: %w", logPath, err)
	}
	defer logFile.Close() //nolint:errcheck

	cmd := exec.Command(tokens[0], tokens[1:]...) //nolint:gosec // tokens are built by vpcctl
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start app: %w", err)
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()
	return pid, nil
}

// DeployApp launches a minimal HTTP listener inside the subnet's namespace
// and records its identity so stop-app and delete can reap it.
func (m *Manager) DeployApp(ctx context.Context, vpcName, subName string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port %d out of range", port)
	}

	return m.mutate(ctx, func() error {
		doc, err := m.store.Load(vpcName)
		if err != nil {
			return err
		}
		sub := doc.FindSubnet(subName)
		if sub == nil {
			return fmt.Errorf("subnet %q in VPC %q: %w", subName, vpcName, types.ErrNotFound)
		}

		tokens := []string{"ip", "netns", "exec", sub.NS, "python3", "-m", "http.server", strconv.Itoa(port)}
		logPath := m.conf.AppLogPath(sub.NS)

		if m.conf.DryRun {
			// Trace through the executor; nothing is recorded.
			return m.exec.Run(ctx, tokens)
		}

		pid, err := m.launcher.Launch(ctx, tokens, logPath)
		if err != nil {
			return fmt.Errorf("deploy app in %s: %w", sub.NS, err)
		}

		doc.Apps = append(doc.Apps, types.App{
			ID:        uuid.NewString(),
			NS:        sub.NS,
			Port:      port,
			PID:       pid,
			Cmd:       tokens,
			LogPath:   logPath,
			StartedAt: now(),
		})
		log.WithFunc("vpc.DeployApp").Infof(ctx, "app listening in %s on port %d (pid %d, logs %s)",
			sub.NS, port, pid, logPath)
		return m.store.Save(doc)
	})
}

// StopApp terminates deployed apps selected by namespace and/or pid; with
// neither given, every app in the VPC is stopped. Matching records are
// removed from the document. Returns the records that were stopped.
func (m *Manager) StopApp(ctx context.Context, vpcName, ns string, pid int) ([]types.App, error) {
	var stopped []types.App
	err := m.mutate(ctx, func() error {
		doc, err := m.store.Load(vpcName)
		if err != nil {
			return err
		}

		var kept []types.App
		for _, app := range doc.Apps {
			if (ns != "" && app.NS != ns) || (pid != 0 && app.PID != pid) {
				kept = append(kept, app)
				continue
			}
			m.stopOne(ctx, app)
			stopped = append(stopped, app)
		}
		if len(stopped) == 0 {
			return fmt.Errorf("no matching app in VPC %q: %w", vpcName, types.ErrNotFound)
		}
		doc.Apps = kept
		if doc.Apps == nil {
			doc.Apps = []types.App{}
		}
		return m.store.Save(doc)
	})
	return stopped, err
}

// stopOne reaps one app process: TERM, bounded wait, then KILL. Failures are
// warnings — the record is dropped regardless so teardown converges.
func (m *Manager) stopOne(ctx context.Context, app types.App) {
	logger := log.WithFunc("vpc.stopOne")
	if m.conf.DryRun {
		_ = m.exec.Run(ctx, []string{"kill", "-TERM", strconv.Itoa(app.PID)})
		return
	}
	if !m.alive(app.PID) {
		logger.Infof(ctx, "app %s (pid %d) already gone", app.ID, app.PID)
		return
	}
	if err := m.terminate(app.PID, m.conf.StopTimeout()); err != nil {
		logger.Warnf(ctx, "stop app %s (pid %d): %v", app.ID, app.PID, err)
		return
	}
	logger.Infof(ctx, "stopped app %s (ns %s, pid %d)", app.ID, app.NS, app.PID)
}
