package conductor

import (
	"strings"

	"github.com/coxswain-dev/coxswain/internal/domain"
)

// Recovery banner markers emitted by a still-running framer when a
// client reconnects.
const (
	recoveryBegin  = ":begin-recovery"
	recoveryEnd    = ":end-recovery"
	recoveryPrefix = ":recovery: "
)

// Recovery is the reconstructed identity of a framer that outlived its
// client. Conductor points at the rebuilt hop with its parent chain
// intact.
type Recovery struct {
	FramedPID      int
	DCSID          string
	SSHArgs        string
	BoolArgs       string
	ClientUniqueID string
	Conductor      *Conductor
}

// StartRecovery arms the conductor for banner-driven recovery.
func (c *Conductor) StartRecovery() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.st = state{kind: stateRecoveryGround}
}

// RecoveryDidFinish releases the conductor back to normal dispatch
// after the client finished acting on a recovery record.
func (c *Conductor) RecoveryDidFinish() {
	c.mu.Lock()
	if c.st.inFlight() == nil {
		c.st = state{kind: stateGround}
		c.dequeueLocked()
	}
	fns := c.takeDeferredLocked()
	c.mu.Unlock()
	runAll(fns)
}

// HandleRecovery consumes one banner line. A complete record adopts
// the preserved identity, sets the framed PID and returns the
// recovery; an incomplete record at the end banner issues quit.
func (c *Conductor) HandleRecovery(line string, depth int) *Recovery {
	c.mu.Lock()
	if c.forwardLocked(depth) {
		p := c.parent
		c.mu.Unlock()
		return p.HandleRecovery(line, depth)
	}

	rec := c.handleRecoveryLocked(line)
	fns := c.takeDeferredLocked()
	c.mu.Unlock()
	runAll(fns)
	if rec != nil {
		rec.Conductor = c
	}
	return rec
}

func (c *Conductor) handleRecoveryLocked(line string) *Recovery {
	switch {
	case line == recoveryBegin:
		switch c.st.kind {
		case stateGround, stateUnhooked, stateRecoveryGround:
			c.st = state{kind: stateRecoveryBuilding, info: domain.NewRecoveryInfo()}
		default:
			c.logger.Debug("discarding recovery begin", "state", c.st.kind.String())
		}
		return nil

	case strings.HasPrefix(line, recoveryPrefix):
		if c.st.kind != stateRecoveryBuilding {
			c.logger.Debug("recovery field outside record", "line", line)
			return nil
		}
		key, value, _ := strings.Cut(line[len(recoveryPrefix):], " ")
		if !c.st.info.Set(domain.RecoveryField(key), value) {
			c.logger.Debug("ignoring recovery field", "key", key)
		}
		return nil

	case line == recoveryEnd:
		if c.st.kind != stateRecoveryBuilding {
			c.logger.Debug("recovery end outside record")
			return nil
		}
		info := c.st.info
		c.st = state{kind: stateGround}
		if !info.Complete() {
			c.logger.Warn("incomplete recovery record, quitting")
			c.sendLocked(domain.Command{Kind: domain.CmdFramerQuit}, &handler{kind: fireAndForget})
			return nil
		}

		c.framedPID = info.FramedPID
		c.dcsID = info.DCSID
		c.sshArgs = info.SSHArgs
		c.boolArgs = info.BoolArgs
		c.clientUniqueID = info.ClientUniqueID
		if c.registry != nil {
			c.registry.Register(c)
		}
		c.dequeueLocked()
		return &Recovery{
			FramedPID:      info.FramedPID,
			DCSID:          info.DCSID,
			SSHArgs:        info.SSHArgs,
			BoolArgs:       info.BoolArgs,
			ClientUniqueID: info.ClientUniqueID,
		}

	default:
		c.logger.Debug("discarding recovery line", "line", line)
		return nil
	}
}
