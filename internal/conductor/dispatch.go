package conductor

import (
	"strings"

	"github.com/coxswain-dev/coxswain/internal/domain"
)

// chunkLimit is the maximum physical line length written to the
// transport. Longer record lines split into continuation chunks.
const chunkLimit = 128

// framerContinuation marks a non-final chunk of a framer record line;
// the helper strips the trailing backslash when reassembling. Plain
// bootstrap records chunk bare.
const framerContinuation = `\`

// sendLocked appends an execution context and dispatches immediately
// when nothing is in flight. Poll requests coalesce: a poll issued
// while another is queued or awaiting its response is dropped
// silently.
func (c *Conductor) sendLocked(cmd domain.Command, h *handler) {
	if cmd.Kind == domain.CmdFramerPoll {
		if inFlight := c.st.inFlight(); inFlight != nil && inFlight.command.Kind == domain.CmdFramerPoll {
			return
		}
		for _, queued := range c.queue {
			if queued.command.Kind == domain.CmdFramerPoll {
				return
			}
		}
	}

	wasEmpty := len(c.queue) == 0
	c.queue = append(c.queue, &executionContext{command: cmd, handler: h})

	switch c.st.kind {
	case stateGround, stateRecoveryGround:
		if wasEmpty {
			c.dequeueLocked()
		}
	}
}

// dequeueLocked writes the next queued command. No-op while a context
// is in flight. With no transport the queue drains, each handler
// receiving exactly one abort.
func (c *Conductor) dequeueLocked() {
	if c.delegate == nil && c.parent == nil {
		c.drainQueueLocked()
		c.st = state{kind: stateGround}
		return
	}
	if c.st.inFlight() != nil {
		return
	}
	if c.st.kind != stateGround && c.st.kind != stateRecoveryGround {
		return
	}
	if len(c.queue) == 0 {
		return
	}

	ctx := c.queue[0]
	c.queue = c.queue[1:]
	c.st = state{kind: stateWillExecute, ctx: ctx}

	if c.verbose {
		c.logger.Debug("dispatch", "op", ctx.command.OperationDescription())
	}
	c.writeLocked(encodeRecord(ctx.command))
}

// encodeRecord renders the full transmission for a command: each
// record line chunked to the line limit, a single trailing newline.
func encodeRecord(cmd domain.Command) string {
	marker := ""
	if cmd.IsFramer() {
		marker = framerContinuation
	}

	var out []string
	for _, line := range strings.Split(cmd.WireForm(), "\n") {
		out = append(out, chunkLine(line, chunkLimit, marker)...)
	}
	return strings.Join(out, "\n") + "\n"
}

// chunkLine splits one record line into physical lines of at most
// limit bytes, appending the continuation marker to each non-final
// chunk. Stripping the markers and concatenating restores the line.
func chunkLine(line string, limit int, marker string) []string {
	if len(line) <= limit {
		return []string{line}
	}
	var chunks []string
	for len(line) > limit {
		chunks = append(chunks, line[:limit]+marker)
		line = line[limit:]
	}
	return append(chunks, line)
}

// writeLocked is the single exit point for bytes. The local latch is
// cleared for the duration so a write's side effects cannot enqueue
// another write inside the same call. A child routes bytes to its
// parent as keystrokes, which the framing parent wraps into a framer
// send packet; the root hands the string to the delegate.
func (c *Conductor) writeLocked(s string) {
	c.queueWritesLocal = false
	defer func() { c.queueWritesLocal = true }()

	if c.parent != nil {
		p := c.parent
		c.deferLocked(func() { p.SendKeys([]byte(s)) })
		return
	}
	if c.delegate == nil {
		c.logger.Warn("write with no transport", "len", len(s))
		return
	}
	c.delegate.ConductorWrite(s)
}
