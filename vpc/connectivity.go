package vpc

import (
	"context"
	"fmt"
	"strconv"
)

// connectTimeoutSeconds bounds the reachability probe itself; the executor's
// command timeout still applies on top.
const connectTimeoutSeconds = 5

// TestConnectivity issues an HTTP GET against target:port, optionally from
// inside a namespace, and returns the response body. It reads no metadata
// and takes no lock; in dry-run mode the probe command is traced and an
// empty body returned.
func (m *Manager) TestConnectivity(ctx context.Context, target string, port int, fromNS string) (string, error) {
	url := fmt.Sprintf("http://%s:%d", target, port)
	tokens := []string{"curl", "-sS", "--max-time", strconv.Itoa(connectTimeoutSeconds), url}
	if fromNS != "" {
		tokens = append([]string{"ip", "netns", "exec", fromNS}, tokens...)
	}

	if m.conf.DryRun {
		return "", m.exec.Run(ctx, tokens)
	}
	body, err := m.exec.Output(ctx, tokens)
	if err != nil {
		return "", fmt.Errorf("connectivity probe %s: %w", url, err)
	}
	return body, nil
}
