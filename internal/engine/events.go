package engine

import (
	"github.com/flotilla-dev/flotilla/internal/model"
)

// Notifier receives execution events as they happen, e.g. to drive a
// progress UI. May be nil. Calls arrive from multiple goroutines under
// batched policies; implementations must be safe for that.
type Notifier func(event any)

// HostStateEvent reports a host executor state transition.
type HostStateEvent struct {
	Address string
	State   model.HostState
}

// StepCompleteEvent reports a finished step on a host.
type StepCompleteEvent struct {
	Address string
	Result  model.StepResult
}

// HostDoneEvent reports a host's terminal result.
type HostDoneEvent struct {
	Result *model.HostResult
}

// FleetDoneEvent reports the aggregate result once every host is accounted for.
type FleetDoneEvent struct {
	Result *model.FleetResult
}

func (e *Executor) notifyState(address string, state model.HostState) {
	if e.notify != nil {
		e.notify(HostStateEvent{Address: address, State: state})
	}
}

func (e *Executor) notifyStep(address string, result model.StepResult) {
	if e.notify != nil {
		e.notify(StepCompleteEvent{Address: address, Result: result})
	}
}
