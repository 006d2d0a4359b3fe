// Package transport abstracts remote command execution so the engine and
// roles stay independent of the wire mechanism.
package transport

import (
	"context"
)

// Runner executes shell commands on a single target host. Implementations
// must be safe for sequential reuse; a host's executor never issues
// concurrent commands to the same runner.
type Runner interface {
	// Run executes the command and returns its combined output. A non-zero
	// exit status is returned as an error with the output preserved.
	Run(ctx context.Context, command string) (string, error)

	// Close releases any underlying connection state.
	Close() error
}

// Dialer produces a connected Runner for a host address. The engine calls it
// once per host run.
type Dialer func(ctx context.Context, address string) (Runner, error)
