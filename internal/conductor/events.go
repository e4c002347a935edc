package conductor

import (
	"strings"

	"github.com/coxswain-dev/coxswain/internal/domain"
	"github.com/coxswain-dev/coxswain/internal/framer"
)

// Boundary types reported on command-end frames. A framer boundary on
// a non-framing conductor belongs to a framing ancestor.
const (
	BoundaryFramer  = "f"
	BoundaryRegular = "r"
)

// forwardLocked reports whether an event tagged with depth belongs to
// an ancestor. Recursion terminates at the root, which processes or
// discards per state.
func (c *Conductor) forwardLocked(depth int) bool {
	return depth != c.depth && c.framingLocked() && c.parent != nil
}

// HandleLine delivers one line of command output.
func (c *Conductor) HandleLine(line string, depth int) {
	c.mu.Lock()
	if c.forwardLocked(depth) {
		p := c.parent
		c.mu.Unlock()
		p.HandleLine(line, depth)
		return
	}
	c.handleLineLocked(line)
	fns := c.takeDeferredLocked()
	c.mu.Unlock()
	runAll(fns)
}

func (c *Conductor) handleLineLocked(line string) {
	switch c.st.kind {
	case stateWillExecute:
		c.st = state{kind: stateExecuting, ctx: c.st.ctx}
		c.consumeLineLocked(c.st.ctx, line)
	case stateExecuting:
		c.consumeLineLocked(c.st.ctx, line)
	default:
		if c.st.tolerant() {
			c.logger.Debug("discarding line", "state", c.st.kind.String(), "line", line)
			return
		}
		c.failLocked("line with no command in flight")
	}
}

// consumeLineLocked feeds a line to the in-flight handler. The first
// line of a run response is the spawned PID and registers a background
// job rather than accumulating.
func (c *Conductor) consumeLineLocked(ctx *executionContext, line string) {
	h := ctx.handler
	if h.kind == runRemoteCommand && !h.sawPID {
		h.sawPID = true
		pid, ok := domain.ParsePID(line)
		if !ok {
			c.failLocked("run response is not a pid: " + line)
			return
		}
		c.backgroundJobs[pid] = &executionContext{
			command: ctx.command,
			handler: &handler{kind: backgroundJob, cmdline: h.cmdline, complete: h.complete},
		}
		return
	}
	h.accumulate(line)
}

// HandleCommandBegin marks the start of a response boundary.
func (c *Conductor) HandleCommandBegin(id string, depth int) {
	c.mu.Lock()
	if c.forwardLocked(depth) {
		p := c.parent
		c.mu.Unlock()
		p.HandleCommandBegin(id, depth)
		return
	}
	switch c.st.kind {
	case stateWillExecute:
		c.st = state{kind: stateExecuting, ctx: c.st.ctx}
	case stateExecuting:
		c.logger.Debug("nested command begin", "id", id)
	default:
		c.logger.Debug("discarding command begin", "state", c.st.kind.String(), "id", id)
	}
	fns := c.takeDeferredLocked()
	c.mu.Unlock()
	runAll(fns)
}

// HandleCommandEnd closes the current boundary and finalizes the
// in-flight handler. The boundary type routes framer boundaries to a
// framing ancestor when this conductor is not framing.
func (c *Conductor) HandleCommandEnd(id string, boundary string, status int, depth int) {
	c.mu.Lock()
	if c.forwardLocked(depth) || (boundary == BoundaryFramer && !c.framingLocked() && c.parent != nil && c.st.inFlight() == nil) {
		p := c.parent
		c.mu.Unlock()
		p.HandleCommandEnd(id, boundary, status, depth)
		return
	}

	ctx := c.st.inFlight()
	if ctx == nil {
		if c.st.tolerant() {
			c.logger.Debug("discarding command end", "state", c.st.kind.String(), "id", id, "status", status)
		}
		fns := c.takeDeferredLocked()
		c.mu.Unlock()
		runAll(fns)
		return
	}

	c.st = state{kind: stateGround}
	c.finalizeLocked(ctx, status)
	c.dequeueLocked()
	fns := c.takeDeferredLocked()
	c.mu.Unlock()
	runAll(fns)
}

// finalizeLocked runs a handler's end-of-command action.
func (c *Conductor) finalizeLocked(ctx *executionContext, status int) {
	h := ctx.handler
	switch h.kind {
	case failIfNonzeroStatus:
		if status != 0 {
			c.failLocked(ctx.command.OperationDescription() + " failed")
		}

	case checkForPython:
		if status == 0 && framer.PythonOK(h.body()) {
			c.launchFramerLocked()
		} else {
			c.sendLocked(domain.Command{Kind: domain.CmdExecLoginShell}, &handler{kind: fireAndForget})
		}

	case fireAndForget:

	case framerLogin:
		pid, ok := domain.ParsePID(h.body())
		if !ok {
			c.failLocked("login response is not a pid: " + h.body())
			return
		}
		c.framedPID = pid
		if c.registry != nil {
			c.registry.Register(c)
		}
		if c.autopollEnabled {
			c.sendLocked(domain.Command{Kind: domain.CmdFramerAutopoll}, &handler{kind: fireAndForget})
		}

	case writeOnSuccess:
		if status != 0 {
			c.failLocked(ctx.command.OperationDescription() + " rejected before payload")
			return
		}
		c.writeLocked(h.payload + "\nEOF\n")

	case runRemoteCommand:
		if !h.sawPID && h.complete != nil {
			fn := h.complete
			c.deferLocked(func() { fn(nil, -1) })
		}

	case backgroundJob:
		// Background jobs finalize on terminate, never on a command
		// boundary.

	case pollHandler:
		if h.complete != nil {
			fn, body := h.complete, h.joined()
			c.deferLocked(func() { fn([]byte(body), status) })
		}

	case getShell:
		c.continueStartupLocked(h.lines, status)

	case fileHandler:
		if h.complete != nil {
			fn, body := h.complete, h.joined()
			c.deferLocked(func() { fn([]byte(body), status) })
		}
	}
}

// HandleSideChannelOutput delivers one line of a remote process's
// multiplexed output stream.
func (c *Conductor) HandleSideChannelOutput(line string, pid int, channel uint8, depth int) {
	c.mu.Lock()
	if c.forwardLocked(depth) {
		p := c.parent
		c.mu.Unlock()
		p.HandleSideChannelOutput(line, pid, channel, depth)
		return
	}
	c.handleSideChannelLocked(line, pid, channel)
	fns := c.takeDeferredLocked()
	c.mu.Unlock()
	runAll(fns)
}

func (c *Conductor) handleSideChannelLocked(line string, pid int, channel uint8) {
	if pid == AutopollPID {
		c.consumeAutopollLocked(line)
		return
	}

	if job, ok := c.backgroundJobs[pid]; ok {
		if channel == 1 {
			job.handler.lines = append(job.handler.lines, line)
		}
		return
	}

	if ctx := c.st.inFlight(); ctx != nil && channel == 1 {
		ctx.handler.accumulate(line)
		return
	}

	c.logger.Debug("discarding side channel line", "pid", pid, "channel", channel)
}

// consumeAutopollLocked accumulates autopoll output until the EOF
// sentinel, then hands the payload to the process-info provider and
// issues a fresh autopoll.
func (c *Conductor) consumeAutopollLocked(line string) {
	if line != "EOF" {
		c.autopoll = append(c.autopoll, line)
		return
	}

	body := strings.Join(c.autopoll, "\n")
	c.autopoll = nil
	if p := c.processInfo; p != nil {
		c.deferLocked(func() { p.HandleAutopollOutput(body) })
	}
	if c.autopollEnabled && c.framingLocked() {
		c.sendLocked(domain.Command{Kind: domain.CmdFramerAutopoll}, &handler{kind: fireAndForget})
	}
}

// HandleTerminate reports a remote process exit.
func (c *Conductor) HandleTerminate(pid, code int, depth int) {
	c.mu.Lock()
	if c.forwardLocked(depth) {
		p := c.parent
		c.mu.Unlock()
		p.HandleTerminate(pid, code, depth)
		return
	}

	switch {
	case pid != 0 && pid == c.framedPID:
		c.sendLocked(domain.Command{Kind: domain.CmdQuit}, &handler{kind: fireAndForget})

	default:
		job, ok := c.backgroundJobs[pid]
		if !ok {
			c.logger.Debug("terminate for unknown pid", "pid", pid, "code", code)
			break
		}
		delete(c.backgroundJobs, pid)
		if fn := job.handler.complete; fn != nil {
			body := job.handler.joined()
			c.deferLocked(func() { fn([]byte(body), code) })
		}
	}

	fns := c.takeDeferredLocked()
	c.mu.Unlock()
	runAll(fns)
}

// HandleUnhook disables the remote framer; the stream becomes raw
// passthrough.
func (c *Conductor) HandleUnhook(depth int) {
	c.mu.Lock()
	if c.forwardLocked(depth) {
		p := c.parent
		c.mu.Unlock()
		p.HandleUnhook(depth)
		return
	}
	if c.framingLocked() {
		c.st = state{kind: stateUnhooked}
	} else {
		c.logger.Debug("unhook while not framing")
	}
	fns := c.takeDeferredLocked()
	c.mu.Unlock()
	runAll(fns)
}
