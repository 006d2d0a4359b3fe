// Package facts discovers a minimal set of host properties used for
// conditional step selection. Gathering happens exactly once per host run,
// before any predicate is evaluated.
package facts

import (
	"context"
	"strings"

	"github.com/flotilla-dev/flotilla/internal/logger"
	"github.com/flotilla-dev/flotilla/internal/model"
	"github.com/flotilla-dev/flotilla/internal/transport"
)

// Introspection is one fact-gathering command.
type Introspection struct {
	Key     string
	Command string
}

// DefaultBattery is the fixed set of inexpensive introspection commands run
// against every host.
func DefaultBattery() []Introspection {
	return []Introspection{
		{Key: model.FactOS, Command: "uname -s"},
		{Key: model.FactArch, Command: "uname -m"},
		{Key: model.FactKernel, Command: "uname -r"},
		{Key: model.FactHostname, Command: "hostname"},
		{Key: model.FactOSFamily, Command: `. /etc/os-release 2>/dev/null && echo "$ID"`},
	}
}

// Collector gathers facts and runs the bootstrap probe. Zero value is not
// usable; construct with NewCollector.
type Collector struct {
	probeChain []ProbeCandidate
	battery    []Introspection
	logger     *logger.Logger
}

// Option customizes a Collector.
type Option func(*Collector)

// WithProbeChain overrides the bootstrap candidates.
func WithProbeChain(chain []ProbeCandidate) Option {
	return func(c *Collector) {
		c.probeChain = chain
	}
}

// WithBattery overrides the introspection commands.
func WithBattery(battery []Introspection) Option {
	return func(c *Collector) {
		c.battery = battery
	}
}

// NewCollector creates a Collector with the default probe chain and battery.
func NewCollector(log *logger.Logger, opts ...Option) *Collector {
	c := &Collector{
		probeChain: DefaultProbeChain(),
		battery:    DefaultBattery(),
		logger:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Gather runs the battery and returns the discovered facts. Individual
// command failures leave that fact absent rather than failing the host; the
// battery itself is read-only on the target.
func (c *Collector) Gather(ctx context.Context, host string, runner transport.Runner) (model.Facts, error) {
	facts := make(model.Facts, len(c.battery))

	for _, probe := range c.battery {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		output, err := runner.Run(ctx, probe.Command)
		if err != nil {
			c.log(host, "fact "+probe.Key+" unavailable")
			continue
		}

		value := firstLine(output)
		if value == "" {
			continue
		}
		facts[probe.Key] = value
	}

	return facts, nil
}

func (c *Collector) log(host, msg string) {
	if c.logger == nil {
		return
	}
	c.logger.WithHost(host).Debug(msg)
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
