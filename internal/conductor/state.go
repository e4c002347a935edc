package conductor

import "github.com/coxswain-dev/coxswain/internal/domain"

// stateKind enumerates the per-conductor states. The recovery substate
// pair of the protocol is flattened into two kinds so every transition
// stays a plain switch.
type stateKind int

const (
	// stateGround: idle, nothing in flight.
	stateGround stateKind = iota

	// stateWillExecute: a command's bytes were written but no response
	// event has arrived yet.
	stateWillExecute

	// stateExecuting: the first response event arrived; the end
	// boundary is pending.
	stateExecuting

	// stateUnhooked: the remote framer is disabled; raw passthrough.
	stateUnhooked

	// stateRecoveryGround: waiting for the :begin-recovery banner.
	stateRecoveryGround

	// stateRecoveryBuilding: accumulating :recovery: fields.
	stateRecoveryBuilding

	// stateRecovered: transient latch after a restore, waiting for the
	// parser to catch up before dispatch resumes.
	stateRecovered
)

func (k stateKind) String() string {
	switch k {
	case stateGround:
		return "ground"
	case stateWillExecute:
		return "willExecute"
	case stateExecuting:
		return "executing"
	case stateUnhooked:
		return "unhooked"
	case stateRecoveryGround:
		return "recovery.ground"
	case stateRecoveryBuilding:
		return "recovery.building"
	case stateRecovered:
		return "recovered"
	default:
		return "unknown"
	}
}

// state is the tagged state value. ctx is set for willExecute and
// executing; info for recoveryBuilding.
type state struct {
	kind stateKind
	ctx  *executionContext
	info *domain.RecoveryInfo
}

// inFlight returns the context owning the current command boundary,
// if any.
func (s state) inFlight() *executionContext {
	switch s.kind {
	case stateWillExecute, stateExecuting:
		return s.ctx
	default:
		return nil
	}
}

// tolerant reports whether unexpected parser input is logged and
// discarded rather than treated as a protocol violation. Essential for
// reconnect resilience.
func (s state) tolerant() bool {
	switch s.kind {
	case stateGround, stateUnhooked, stateRecoveryGround, stateRecoveryBuilding, stateRecovered:
		return true
	default:
		return false
	}
}
