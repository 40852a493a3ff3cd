package iptables

import (
	"context"
	"fmt"
	"strings"

	"github.com/projecteru2/core/log"

	"github.com/projecteru2/vpcctl/executor"
)

// Manager applies and reverses rules through an Executor.
type Manager struct {
	exec executor.Executor
}

// NewManager returns a Manager running commands on exec.
func NewManager(exec executor.Executor) *Manager {
	return &Manager{exec: exec}
}

// Ensure adds the rule unless an identical rule (comment included) already
// exists. It returns the exact add-form tokens for persistence in the replay
// log and whether the rule was actually added.
func (m *Manager) Ensure(ctx context.Context, r Rule) (recorded []string, added bool, err error) {
	tokens := r.AddTokens()
	if m.exec.Probe(ctx, r.CheckTokens()) {
		log.WithFunc("iptables.Ensure").Infof(ctx, "rule exists, skipping: %s", joined(tokens))
		return tokens, false, nil
	}
	if err := m.exec.Run(ctx, tokens); err != nil {
		return nil, false, fmt.Errorf("add rule: %w", err)
	}
	return tokens, true, nil
}

// DeleteRecorded reverses a recorded add-form. The exact form (comment
// included) is attempted first; if its existence check fails, a second
// attempt is made with the comment matcher stripped. An error is returned
// when neither form could be deleted — callers doing teardown downgrade it
// to a warning.
func (m *Manager) DeleteRecorded(ctx context.Context, tokens []string) error {
	if !HasVerb(tokens) {
		return fmt.Errorf("recorded tokens carry no add verb: %s", joined(tokens))
	}
	if m.exec.Probe(ctx, CheckFromAdd(tokens)) {
		return m.exec.Run(ctx, DeleteFromAdd(tokens))
	}

	stripped := StripComment(tokens)
	if len(stripped) == len(tokens) {
		return fmt.Errorf("rule not present: %s", joined(tokens))
	}
	if m.exec.Probe(ctx, CheckFromAdd(stripped)) {
		return m.exec.Run(ctx, DeleteFromAdd(stripped))
	}
	return fmt.Errorf("rule not present: %s", joined(tokens))
}

// EnsureChain creates a user chain if it does not exist.
func (m *Manager) EnsureChain(ctx context.Context, chain string) error {
	if m.exec.Probe(ctx, []string{"iptables", "-S", chain}) {
		return nil
	}
	return m.exec.Run(ctx, []string{"iptables", "-N", chain})
}

// FlushChain removes every rule in a host chain.
func (m *Manager) FlushChain(ctx context.Context, chain string) error {
	return m.exec.Run(ctx, []string{"iptables", "-F", chain})
}

// DeleteChain removes an (empty) host chain.
func (m *Manager) DeleteChain(ctx context.Context, chain string) error {
	return m.exec.Run(ctx, []string{"iptables", "-X", chain})
}

// FlushNamespace flushes a table inside a namespace. Used during teardown
// before the namespace itself is removed.
func (m *Manager) FlushNamespace(ctx context.Context, ns, table string) error {
	tokens := []string{"ip", "netns", "exec", ns, "iptables"}
	if table != "" && table != "filter" {
		tokens = append(tokens, "-t", table)
	}
	tokens = append(tokens, "-F")
	return m.exec.Run(ctx, tokens)
}

// ListUserChains returns the user-defined chains of a host table, parsed
// from `iptables -S` output ("-N <name>" lines). Read-only.
func (m *Manager) ListUserChains(ctx context.Context, table string) ([]string, error) {
	tokens := []string{"iptables"}
	if table != "" && table != "filter" {
		tokens = append(tokens, "-t", table)
	}
	tokens = append(tokens, "-S")
	out, err := m.exec.Output(ctx, tokens)
	if err != nil {
		return nil, fmt.Errorf("list chains: %w", err)
	}
	var chains []string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 2 && fields[0] == "-N" {
			chains = append(chains, fields[1])
		}
	}
	return chains, nil
}
