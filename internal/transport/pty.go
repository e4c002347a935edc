// Package transport runs the ssh-like subprocess under a PTY and
// bridges it to a conductor: raw output flows through the DCS parser
// into conductor events and on to the user's terminal, conductor
// writes flow back into the subprocess.
package transport

import (
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/ricochet1k/termemu"

	"github.com/coxswain-dev/coxswain/internal/conductor"
	"github.com/coxswain-dev/coxswain/internal/mirror"
	"github.com/coxswain-dev/coxswain/internal/parser"
)

// Config describes the subprocess and where passthrough output goes.
type Config struct {
	Command string
	Args    []string
	Env     []string
	Dir     string

	// Output receives the remote stream with conductor frames
	// stripped. Nil discards it (serve mode).
	Output io.Writer

	// OnRecovery receives recovery records surfaced by the stream.
	OnRecovery func(*conductor.Recovery)

	Logger *slog.Logger
}

// PTY is the delegate implementation handed to a root conductor.
type PTY struct {
	mu sync.Mutex

	cmd     *exec.Cmd
	backend *termemu.PTYBackend
	term    termemu.Terminal
	screen  *mirror.Screen

	cond       *conductor.Conductor
	parser     *parser.Parser
	output     io.Writer
	onRecovery func(*conductor.Recovery)
	logger     *slog.Logger

	done   chan struct{}
	closed bool
}

// Start launches the subprocess and wires the stream. The conductor's
// delegate is set before any bytes flow.
func Start(cfg Config, cond *conductor.Conductor) (*PTY, error) {
	if cfg.Command == "" {
		return nil, errors.New("transport: command is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Dir
	cmd.Env = cfg.Env

	backend := &termemu.PTYBackend{}
	if err := backend.StartCommand(cmd); err != nil {
		return nil, err
	}

	p := &PTY{
		cmd:        cmd,
		backend:    backend,
		screen:     mirror.NewScreen(),
		cond:       cond,
		parser:     parser.New(),
		output:     cfg.Output,
		onRecovery: cfg.OnRecovery,
		logger:     logger,
		done:       make(chan struct{}),
	}

	tee := termemu.NewTeeBackend(backend)
	tee.SetTee(streamWriter{p: p})
	term := termemu.NewWithMode(p.screen, tee, termemu.TextReadModeRune)
	if term == nil {
		_ = cmd.Process.Kill()
		return nil, errors.New("transport: terminal initialization failed")
	}
	p.term = term
	p.screen.Attach(term)

	cond.SetDelegate(p)

	go p.waitForExit()
	return p, nil
}

// Screen exposes the mirrored terminal state.
func (p *PTY) Screen() *mirror.Screen {
	return p.screen
}

// Resize propagates a local terminal size change.
func (p *PTY) Resize(cols, rows int) error {
	return p.term.Resize(cols, rows)
}

// SendKeys routes local keystrokes through the conductor, which wraps
// them for the framed shell or passes them through raw.
func (p *PTY) SendKeys(data []byte) {
	p.cond.SendKeys(data)
}

// Wait blocks until the subprocess exits.
func (p *PTY) Wait() {
	<-p.done
}

func (p *PTY) waitForExit() {
	_ = p.cmd.Wait()
	p.mu.Lock()
	closed := p.closed
	p.closed = true
	p.mu.Unlock()
	if !closed {
		p.cond.SetDelegate(nil)
		p.screen.Close()
		close(p.done)
	}
}

// Close tears the transport down and detaches the conductor.
func (p *PTY) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	p.cond.SetDelegate(nil)
	p.screen.Close()
	close(p.done)
}

// streamWriter receives the raw remote stream from the tee and fans it
// into parser events, conductor calls and passthrough output.
type streamWriter struct {
	p *PTY
}

func (w streamWriter) Write(data []byte) (int, error) {
	events, passthrough := w.p.parser.Feed(data)
	for _, ev := range events {
		w.p.deliver(ev)
	}
	if w.p.output != nil && len(passthrough) > 0 {
		if _, err := w.p.output.Write(passthrough); err != nil {
			w.p.logger.Warn("passthrough write failed", "error", err)
		}
	}
	return len(data), nil
}

// deliver routes one parsed event into the conductor.
func (p *PTY) deliver(ev parser.Event) {
	switch ev.Kind {
	case parser.EventLine:
		p.cond.HandleLine(ev.Line, ev.Depth)
	case parser.EventCommandBegin:
		p.cond.HandleCommandBegin(ev.ID, ev.Depth)
	case parser.EventCommandEnd:
		p.cond.HandleCommandEnd(ev.ID, ev.Boundary, ev.Status, ev.Depth)
	case parser.EventSideChannel:
		p.cond.HandleSideChannelOutput(ev.Line, ev.PID, ev.Channel, ev.Depth)
	case parser.EventTerminate:
		p.cond.HandleTerminate(ev.PID, ev.Code, ev.Depth)
	case parser.EventUnhook:
		p.cond.HandleUnhook(ev.Depth)
	case parser.EventRecovery:
		if rec := p.cond.HandleRecovery(ev.Line, ev.Depth); rec != nil && p.onRecovery != nil {
			p.onRecovery(rec)
		}
	}
}

// conductor.Delegate.

func (p *PTY) ConductorWrite(s string) {
	if _, err := p.term.Write([]byte(s)); err != nil {
		p.logger.Warn("conductor write failed", "error", err)
	}
}

func (p *PTY) ConductorAbort(reason string) {
	p.logger.Error("conductor aborted", "reason", reason)
}

func (p *PTY) ConductorQuit() {
	p.Close()
}
