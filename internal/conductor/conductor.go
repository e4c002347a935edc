// Package conductor drives one remote shell session over a single
// interactive transport. It multiplexes the stream into interactive
// keystrokes, background command execution, a remote file RPC and a
// recoverable, serializable session model that supports nested hops:
// a conductor may run inside the remote shell controlled by another
// conductor, with parser events routed by depth.
package conductor

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/coxswain-dev/coxswain/internal/domain"
	"github.com/coxswain-dev/coxswain/internal/payload"
)

// AutopollPID is the reserved sentinel PID tagging autopoll output on
// the side channel. Real PIDs are always positive.
const AutopollPID = 0

// Delegate is the transport the root conductor writes through. The
// conductor never touches sockets; bytes in and out are opaque
// strings.
type Delegate interface {
	// ConductorWrite writes opaque bytes to the transport.
	ConductorWrite(s string)

	// ConductorAbort reports a fatal failure.
	ConductorAbort(reason string)

	// ConductorQuit requests orderly shutdown.
	ConductorQuit()
}

// ProcessInfoProvider consumes completed autopoll payloads.
type ProcessInfoProvider interface {
	HandleAutopollOutput(payload string)
}

// ParsedArgs is the structured view of the ssh argument string.
type ParsedArgs struct {
	// CommandArgs is the argv after the host.
	CommandArgs []string `json:"command_args"`

	// Identity fingerprints the target host.
	Identity string `json:"identity"`
}

// Config seeds a new conductor.
type Config struct {
	SSHArgs          string
	BoolArgs         string
	ParsedArgs       ParsedArgs
	VarsToSend       map[string]string
	ClientVars       map[string]string
	InitialDirectory string
	InjectShell      bool
	AutopollEnabled  bool
	Verbose          bool
	Parent           *Conductor
}

// Conductor is the central entity: one per hop.
//
// All entry points (public API and parser event handlers) serialize on
// one mutex; the cooperative single-thread model of the protocol maps
// to "no two entry points interleave". Caller completions always run
// after the lock is released.
type Conductor struct {
	mu sync.Mutex

	sshArgs    string
	boolArgs   string
	parsedArgs ParsedArgs

	depth          int
	parent         *Conductor
	dcsID          string
	clientUniqueID string

	varsToSend          map[string]string
	clientVars          map[string]string
	modifiedVars        map[string]string
	modifiedCommandArgs []string

	initialDirectory string
	injectShell      bool
	payloads         payload.Builder

	framedPID int // 0 until the framer login shell is established
	st        state
	queue     []*executionContext

	backgroundJobs map[int]*executionContext
	autopoll       []string

	// queueWritesLocal is the per-conductor half of the transitive
	// queueWrites predicate; the write path latches it off to block
	// re-entry.
	queueWritesLocal bool

	autopollEnabled bool
	verbose         bool
	restored        bool

	shell        string
	home         string
	shellVersion string

	delegate    Delegate
	processInfo ProcessInfoProvider
	registry    *Registry
	logger      *slog.Logger

	// deferred collects caller completions to run after the current
	// entry point releases the lock.
	deferred []func()
}

// New creates a conductor for a fresh hop. Identity strings are
// assigned immediately; nothing is written until Start.
func New(cfg Config) *Conductor {
	c := &Conductor{
		sshArgs:          cfg.SSHArgs,
		boolArgs:         cfg.BoolArgs,
		parsedArgs:       cfg.ParsedArgs,
		parent:           cfg.Parent,
		dcsID:            uuid.NewString(),
		clientUniqueID:   uuid.NewString(),
		varsToSend:       cfg.VarsToSend,
		clientVars:       cfg.ClientVars,
		initialDirectory: cfg.InitialDirectory,
		injectShell:      cfg.InjectShell,
		autopollEnabled:  cfg.AutopollEnabled,
		verbose:          cfg.Verbose,
		backgroundJobs:   make(map[int]*executionContext),
		queueWritesLocal: true,
		registry:         DefaultRegistry,
		logger:           slog.Default(),
	}
	if cfg.Parent != nil {
		c.depth = cfg.Parent.Depth() + 1
	}
	return c
}

// Depth is the zero-based nesting level; 0 for the outermost hop.
func (c *Conductor) Depth() int {
	return c.depth
}

// Parent returns the enclosing conductor, nil at the root.
func (c *Conductor) Parent() *Conductor {
	return c.parent
}

// DCSID is the identifier used for banner routing.
func (c *Conductor) DCSID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dcsID
}

// ClientUniqueID is the identifier used for ancestry lookup.
func (c *Conductor) ClientUniqueID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clientUniqueID
}

// FramedPID returns the remote framer's login shell PID, 0 before the
// session frames.
func (c *Conductor) FramedPID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.framedPID
}

// Framing reports whether the remote helper is established.
func (c *Conductor) Framing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.framingLocked()
}

func (c *Conductor) framingLocked() bool {
	return c.framedPID != 0
}

// SetDelegate attaches or detaches the transport. Detaching drains the
// queue with abort results and resets state to ground. Attaching after
// a deserialization latches the recovered state until the parser
// resynchronizes.
func (c *Conductor) SetDelegate(d Delegate) {
	c.mu.Lock()
	c.delegate = d
	if d == nil {
		c.drainQueueLocked()
		c.st = state{kind: stateGround}
	} else if c.restored {
		c.restored = false
		c.st = state{kind: stateRecovered}
	}
	fns := c.takeDeferredLocked()
	c.mu.Unlock()
	runAll(fns)
}

// SetProcessInfoProvider attaches the autopoll consumer.
func (c *Conductor) SetProcessInfoProvider(p ProcessInfoProvider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processInfo = p
}

// SetLogger replaces the conductor's logger.
func (c *Conductor) SetLogger(l *slog.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = l.With("depth", c.depth, "dcs_id", c.dcsID)
}

// Add stages a local path for upload to a remote destination during
// startup.
func (c *Conductor) Add(localPath, destination string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads.Add(localPath, destination)
}

// queueWritesLocked is the transitive predicate: true only if self and
// every ancestor latch writes and none is unhooked. Walks the parent
// chain taking each ancestor's lock in depth order.
func (c *Conductor) queueWritesLocked() bool {
	if !c.queueWritesLocal || c.st.kind == stateUnhooked {
		return false
	}
	if c.parent == nil {
		return true
	}
	c.parent.mu.Lock()
	defer c.parent.mu.Unlock()
	return c.parent.queueWritesLocked()
}

// Quit tears the session down in order: the remote end first, then the
// delegate.
func (c *Conductor) Quit() {
	c.mu.Lock()
	kind := domain.CmdQuit
	if c.framingLocked() {
		kind = domain.CmdFramerQuit
	}
	c.sendLocked(domain.Command{Kind: kind}, &handler{kind: fireAndForget})
	d := c.delegate
	fns := c.takeDeferredLocked()
	c.mu.Unlock()
	runAll(fns)
	if d != nil {
		d.ConductorQuit()
	}
}

// Reset drains pending work, asks the framer to reset, and restarts
// autopolling.
func (c *Conductor) Reset() {
	c.mu.Lock()
	c.drainQueueLocked()
	c.st = state{kind: stateGround}
	c.autopoll = nil
	if c.framingLocked() {
		c.sendLocked(domain.Command{Kind: domain.CmdFramerReset}, &handler{kind: failIfNonzeroStatus})
		if c.autopollEnabled {
			c.sendLocked(domain.Command{Kind: domain.CmdFramerAutopoll}, &handler{kind: fireAndForget})
		}
	}
	fns := c.takeDeferredLocked()
	c.mu.Unlock()
	runAll(fns)
}

// ResetTransitively resets every ancestor first, then this conductor.
func (c *Conductor) ResetTransitively() {
	if c.parent != nil {
		c.parent.ResetTransitively()
	}
	c.Reset()
}

// DidResynchronize releases the recovered latch once the parser has
// caught up with the restored session; queued work resumes.
func (c *Conductor) DidResynchronize() {
	c.mu.Lock()
	if c.st.kind == stateRecovered {
		c.st = state{kind: stateGround}
		c.dequeueLocked()
	}
	fns := c.takeDeferredLocked()
	c.mu.Unlock()
	runAll(fns)
}

// SendKeys routes user keystrokes. A framing conductor wraps the bytes
// as a framer send packet addressed to its login shell; a non-framing
// conductor passes them through raw.
func (c *Conductor) SendKeys(data []byte) {
	c.mu.Lock()
	if c.framingLocked() && c.queueWritesLocked() {
		c.sendLocked(domain.Command{
			Kind: domain.CmdFramerSend,
			Data: data,
			PID:  c.framedPID,
		}, &handler{kind: fireAndForget})
	} else {
		c.writeLocked(string(data))
	}
	fns := c.takeDeferredLocked()
	c.mu.Unlock()
	runAll(fns)
}

// RegisterProcess tells the framer to track an externally spawned PID.
func (c *Conductor) RegisterProcess(pid int) {
	c.mu.Lock()
	c.sendLocked(domain.Command{Kind: domain.CmdFramerRegister, PID: pid}, &handler{kind: fireAndForget})
	fns := c.takeDeferredLocked()
	c.mu.Unlock()
	runAll(fns)
}

// DeregisterProcess removes a tracked PID.
func (c *Conductor) DeregisterProcess(pid int) {
	c.mu.Lock()
	c.sendLocked(domain.Command{Kind: domain.CmdFramerDeregister, PID: pid}, &handler{kind: fireAndForget})
	fns := c.takeDeferredLocked()
	c.mu.Unlock()
	runAll(fns)
}

// fail handles a protocol violation: reset self and ancestors, make a
// best-effort attempt to leave the user a usable login shell, then
// notify the delegate.
func (c *Conductor) failLocked(reason string) {
	c.logger.Error("conductor failed", "reason", reason, "state", c.st.kind.String())
	c.forceReturnToGroundLocked()
	c.writeLocked(domain.Command{Kind: domain.CmdExecLoginShell}.WireForm() + "\n")
	c.deferLocked(func() { c.abortDelegate(reason) })
}

// abortDelegate notifies the root's delegate of a fatal failure.
func (c *Conductor) abortDelegate(reason string) {
	if c.parent != nil {
		c.parent.abortDelegate(reason)
		return
	}
	c.mu.Lock()
	d := c.delegate
	c.mu.Unlock()
	if d != nil {
		d.ConductorAbort(reason)
	}
}

// forceReturnToGroundLocked aborts all queued work on self and every
// ancestor.
func (c *Conductor) forceReturnToGroundLocked() {
	c.drainQueueLocked()
	c.st = state{kind: stateGround}
	if c.parent != nil {
		p := c.parent
		c.deferLocked(func() {
			p.mu.Lock()
			p.forceReturnToGroundLocked()
			fns := p.takeDeferredLocked()
			p.mu.Unlock()
			runAll(fns)
		})
	}
}

// drainQueueLocked delivers abort to every queued handler, including
// the in-flight context.
func (c *Conductor) drainQueueLocked() {
	if ctx := c.st.inFlight(); ctx != nil {
		c.abortContextLocked(ctx)
	}
	for _, ctx := range c.queue {
		c.abortContextLocked(ctx)
	}
	c.queue = nil
}

func (c *Conductor) abortContextLocked(ctx *executionContext) {
	if fn := ctx.abortCompletion(); fn != nil {
		c.deferLocked(func() { fn(nil, -1) })
	}
}

func (c *Conductor) deferLocked(fn func()) {
	c.deferred = append(c.deferred, fn)
}

func (c *Conductor) takeDeferredLocked() []func() {
	fns := c.deferred
	c.deferred = nil
	return fns
}

func runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
