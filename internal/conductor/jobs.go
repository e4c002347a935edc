package conductor

import "github.com/coxswain-dev/coxswain/internal/domain"

// JobCallback receives a finished background command's collected
// stdout and exit code. Callbacks run without the conductor lock held.
type JobCallback func(output []byte, code int)

// RunRemoteCommand spawns a command on the remote host through the
// framer. The first response line is the spawned PID; the job then
// runs past its command boundary, its stdout arriving on the side
// channel until a terminate event delivers the exit code. Without a
// framed session the callback fires immediately with (nil, -1).
func (c *Conductor) RunRemoteCommand(cmdline string, cb JobCallback) {
	c.mu.Lock()
	if c.framedPID == 0 {
		c.mu.Unlock()
		if cb != nil {
			cb(nil, -1)
		}
		return
	}

	c.sendLocked(domain.Command{Kind: domain.CmdFramerRun, Arg: cmdline}, &handler{
		kind:     runRemoteCommand,
		cmdline:  cmdline,
		complete: completion(cb),
	})
	fns := c.takeDeferredLocked()
	c.mu.Unlock()
	runAll(fns)
}

// Poll asks the framer for the status of tracked processes. Successive
// polls coalesce: when one is already queued or awaiting its response
// the new callback is dropped silently and never invoked.
func (c *Conductor) Poll(cb JobCallback) {
	c.mu.Lock()
	c.sendLocked(domain.Command{Kind: domain.CmdFramerPoll}, &handler{
		kind:     pollHandler,
		complete: completion(cb),
	})
	fns := c.takeDeferredLocked()
	c.mu.Unlock()
	runAll(fns)
}

// BackgroundJobs returns the PIDs currently tracked as background
// jobs.
func (c *Conductor) BackgroundJobs() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	pids := make([]int, 0, len(c.backgroundJobs))
	for pid := range c.backgroundJobs {
		pids = append(pids, pid)
	}
	return pids
}
