// Package iptables applies, probes, and reverses packet-filter rules. The
// kernel is the source of truth; the VPC document's recorded add-forms are
// the replay log for teardown. No rule state is kept in process.
package iptables

import "strings"

// Verdicts used by vpcctl rules.
const (
	VerdictAccept     = "ACCEPT"
	VerdictDrop       = "DROP"
	VerdictMasquerade = "MASQUERADE"
)

// CommentPrefix tags every rule vpcctl owns. The comment is part of the rule
// identity: existence checks and deletions include it.
const CommentPrefix = "vpcctl:"

// Rule is one packet-filter rule. It serializes to command tokens at the
// boundary; the check and delete forms are derived from the same record so
// the three forms can never drift apart.
type Rule struct {
	// Netns scopes the rule to a namespace's tables; empty means the host.
	Netns string
	// Table is the iptables table; empty means filter.
	Table string
	Chain string
	// Insert prepends (-I) instead of appending (-A).
	Insert bool
	// Selectors are the match tokens, e.g. ["-s", cidr, "-d", cidr].
	Selectors []string
	Verdict   string
	// Comment is the vpcctl:<info> ownership tag.
	Comment string
}

// AddTokens returns the tokenized add-form of the rule.
func (r Rule) AddTokens() []string {
	verb := "-A"
	if r.Insert {
		verb = "-I"
	}
	return r.tokens(verb)
}

// CheckTokens returns the existence-check form (-C).
func (r Rule) CheckTokens() []string {
	return r.tokens("-C")
}

// DeleteTokens returns the delete form (-D).
func (r Rule) DeleteTokens() []string {
	return r.tokens("-D")
}

func (r Rule) tokens(verb string) []string {
	var out []string
	if r.Netns != "" {
		out = append(out, "ip", "netns", "exec", r.Netns)
	}
	out = append(out, "iptables")
	if r.Table != "" && r.Table != "filter" {
		out = append(out, "-t", r.Table)
	}
	out = append(out, verb, r.Chain)
	out = append(out, r.Selectors...)
	if r.Comment != "" {
		out = append(out, "-m", "comment", "--comment", r.Comment)
	}
	if r.Verdict != "" {
		out = append(out, "-j", r.Verdict)
	}
	return out
}

// CheckFromAdd transforms a recorded add-form into its existence-check form.
func CheckFromAdd(tokens []string) []string {
	return swapVerb(tokens, "-C")
}

// DeleteFromAdd transforms a recorded add-form into its delete form.
func DeleteFromAdd(tokens []string) []string {
	return swapVerb(tokens, "-D")
}

func swapVerb(tokens []string, verb string) []string {
	out := append([]string(nil), tokens...)
	for i, t := range out {
		if t == "-A" || t == "-I" {
			out[i] = verb
			break
		}
	}
	return out
}

// StripComment returns the tokens with any comment matcher removed. Used as
// the fallback delete form when the tagged rule no longer matches (e.g. the
// comment was hand-edited away).
func StripComment(tokens []string) []string {
	var out []string
	for i := 0; i < len(tokens); i++ {
		if tokens[i] == "-m" && i+1 < len(tokens) && tokens[i+1] == "comment" {
			i += 3 // skip -m comment --comment <value>
			continue
		}
		out = append(out, tokens[i])
	}
	return out
}

// CommentOf extracts the comment value from recorded tokens, or "".
func CommentOf(tokens []string) string {
	for i, t := range tokens {
		if t == "--comment" && i+1 < len(tokens) {
			return tokens[i+1]
		}
	}
	return ""
}

// HasVerb reports whether the tokens contain an append or insert verb, i.e.
// whether they are a replayable add-form.
func HasVerb(tokens []string) bool {
	for _, t := range tokens {
		if t == "-A" || t == "-I" {
			return true
		}
	}
	return false
}

// joined is a tiny helper for diagnostics.
func joined(tokens []string) string { return strings.Join(tokens, " ") }
