// Package unit defines the uniform handle over one isolated execution unit
// and the factory that constructs concrete units for the host's native
// mechanism. The two native styles differ structurally: dedicated
// bidirectional channels with additive listeners on one side, a single
// assignable message slot on the other. The factory normalises both so
// the coordinator never knows which is in use.
package unit

import (
	"context"

	"github.com/wavepool/wavepool/internal/hostinfo"
	"github.com/wavepool/wavepool/model/protocol"
)

// Unit is an opaque handle over one isolated execution unit, exclusively
// owned by the pool that created it.
type Unit interface {
	// ID returns the unit identifier.
	ID() string

	// Send delivers an envelope to the unit. It returns once the transport
	// accepted the message; completion surfaces through the message
	// callback.
	Send(ctx context.Context, msg *protocol.Message) error

	// SetOnMessage replaces the message callback; any previously installed
	// callback is detached so an envelope is delivered exactly once.
	SetOnMessage(fn func(interface{}))

	// SetOnError replaces the unit fault callback.
	SetOnError(fn func(error))

	// Terminate tears down the unit's native context, best effort.
	Terminate() error
}

// Style selects the native primitive backing an execution unit.
type Style string

const (
	// StyleChannel backs units with dedicated bidirectional channels.
	StyleChannel Style = "channel"
	// StylePort backs units with a single assignable message slot.
	StylePort Style = "port"
)

// Runtime is the injected runtime-detection capability consulted by the
// factory instead of process-wide globals.
type Runtime struct {
	Style Style
	Cores hostinfo.Prober
}

// LogicalCores reports the logical core count seen by this runtime.
func (r Runtime) LogicalCores() int {
	return hostinfo.Logical(r.Cores)
}
