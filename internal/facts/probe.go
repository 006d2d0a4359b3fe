package facts

import (
	"context"
	"fmt"

	"github.com/flotilla-dev/flotilla/internal/transport"
	fleeterrors "github.com/flotilla-dev/flotilla/pkg/errors"
)

// BaselineTool is the interpreter every role depends on; the probe makes
// sure it is present before fact gathering begins.
const BaselineTool = "python3"

// ProbeCandidate is one package-manager attempt in the bootstrap chain.
type ProbeCandidate struct {
	Manager string
	Install string
}

// DefaultProbeChain tries the common package managers in fixed priority
// order, stopping at the first success.
func DefaultProbeChain() []ProbeCandidate {
	return []ProbeCandidate{
		{Manager: "apt-get", Install: "apt-get update -qq && apt-get install -y " + BaselineTool},
		{Manager: "yum", Install: "yum install -y " + BaselineTool},
	}
}

// EnsureBaseline runs the install-or-already-present chain: each candidate in
// order, then an existence check. The probe succeeds if any step succeeds,
// so a host with the tool preinstalled passes even when every package
// manager attempt fails. A full miss returns a ProbeError; callers treat it
// as non-fatal and proceed.
func (c *Collector) EnsureBaseline(ctx context.Context, host string, runner transport.Runner) error {
	var lastErr error

	for _, candidate := range c.probeChain {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, err := runner.Run(ctx, candidate.Install); err == nil {
			c.log(host, "bootstrap install via "+candidate.Manager+" succeeded")
			return nil
		} else {
			lastErr = err
			c.log(host, "bootstrap install via "+candidate.Manager+" failed")
		}
	}

	if _, err := runner.Run(ctx, "command -v "+BaselineTool); err == nil {
		c.log(host, BaselineTool+" already present")
		return nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("%s absent and no package manager available", BaselineTool)
	}
	return fleeterrors.NewProbeError(host, lastErr)
}
