package types

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds returned by vpcctl operations. Callers classify with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrExists           = errors.New("already exists")
	ErrCidrInvalid      = errors.New("invalid CIDR")
	ErrCidrOverlap      = errors.New("CIDR overlaps an existing subnet")
	ErrCidrOutOfRange   = errors.New("CIDR not contained in VPC range")
	ErrPolicyMalformed  = errors.New("malformed policy")
	ErrNoMatchingSubnet = errors.New("no subnet matches policy CIDR")
	ErrExec             = errors.New("command failed")
	ErrTimeout          = errors.New("command timed out")
	ErrStateCorrupt     = errors.New("metadata corrupt")
	ErrPrivilege        = errors.New("operation requires root")
	ErrSelfPeer         = errors.New("cannot peer a VPC with itself")
	ErrAlreadyPeered    = errors.New("VPCs are already peered")
)

// ExecError reports a failed external command with the original tokens and
// captured stderr preserved for diagnostics. It matches ErrExec via errors.Is.
type ExecError struct {
	Tokens   []string
	Stderr   string
	ExitCode int
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("command failed (exit %d): %s", e.ExitCode, strings.Join(e.Tokens, " "))
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// Is reports ErrExec so callers can classify without knowing the concrete type.
func (e *ExecError) Is(target error) bool { return target == ErrExec }
