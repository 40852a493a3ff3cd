package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Protocols and actions accepted in policy rules.
const (
	ProtocolTCP  = "tcp"
	ProtocolUDP  = "udp"
	ProtocolICMP = "icmp"

	ActionAllow = "allow"
	ActionDeny  = "deny"
)

// PolicyRule is one ingress or egress entry. Port is ignored for icmp.
type PolicyRule struct {
	Port     int    `json:"port,omitempty"`
	Protocol string `json:"protocol"`
	Action   string `json:"action"`
}

// Policy is the declarative security policy for a single subnet, selected by
// CIDR. Rules apply first-match in document order.
type Policy struct {
	Subnet  string       `json:"subnet"`
	Ingress []PolicyRule `json:"ingress"`
	Egress  []PolicyRule `json:"egress"`
}

// ParsePolicy decodes and validates a policy document. Unknown fields are
// rejected; schema violations return ErrPolicyMalformed.
func ParsePolicy(data []byte) (*Policy, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	p := &Policy{}
	if err := dec.Decode(p); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrPolicyMalformed, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the policy against the schema constraints.
func (p *Policy) Validate() error {
	if p.Subnet == "" {
		return fmt.Errorf("%w: missing subnet", ErrPolicyMalformed)
	}
	for _, set := range []struct {
		dir   string
		rules []PolicyRule
	}{{"ingress", p.Ingress}, {"egress", p.Egress}} {
		for i, r := range set.rules {
			if err := r.validate(); err != nil {
				return fmt.Errorf("%w: %s[%d]: %s", ErrPolicyMalformed, set.dir, i, err)
			}
		}
	}
	return nil
}

func (r PolicyRule) validate() error {
	switch r.Protocol {
	case ProtocolTCP, ProtocolUDP:
		if r.Port < 1 || r.Port > 65535 {
			return fmt.Errorf("port %d out of range", r.Port)
		}
	case ProtocolICMP:
		// port is ignored
	default:
		return fmt.Errorf("unknown protocol %q", r.Protocol)
	}
	switch r.Action {
	case ActionAllow, ActionDeny:
	default:
		return fmt.Errorf("unknown action %q", r.Action)
	}
	return nil
}
