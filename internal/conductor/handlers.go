package conductor

import (
	"strings"

	"github.com/coxswain-dev/coxswain/internal/domain"
)

// handlerKind enumerates how an in-flight command's response events are
// consumed.
type handlerKind int

const (
	// failIfNonzeroStatus ignores lines; a non-zero end is fatal.
	failIfNonzeroStatus handlerKind = iota

	// checkForPython collects lines and parses a `Python X.Y` banner
	// on end, branching to framing or plain login.
	checkForPython

	// fireAndForget ignores everything.
	fireAndForget

	// framerLogin collects lines; the end body must be a PID.
	framerLogin

	// writeOnSuccess writes the stored payload verbatim plus the EOF
	// sentinel when the command ends with status zero.
	writeOnSuccess

	// runRemoteCommand treats the first line as the spawned PID and
	// registers a background job for it.
	runRemoteCommand

	// backgroundJob accumulates side-channel stdout for a spawned PID;
	// terminate finalizes the completion.
	backgroundJob

	// pollHandler accumulates lines and delivers the joined bytes on
	// any end.
	pollHandler

	// getShell collects shell, home and version, then decides on
	// shell-integration injection.
	getShell

	// fileHandler collects lines; end delivers (joined, status), abort
	// delivers ("", -1).
	fileHandler
)

func (k handlerKind) String() string {
	switch k {
	case failIfNonzeroStatus:
		return "failIfNonzeroStatus"
	case checkForPython:
		return "checkForPython"
	case fireAndForget:
		return "fireAndForget"
	case framerLogin:
		return "framerLogin"
	case writeOnSuccess:
		return "writeOnSuccess"
	case runRemoteCommand:
		return "runRemoteCommand"
	case backgroundJob:
		return "backgroundJob"
	case pollHandler:
		return "poll"
	case getShell:
		return "getShell"
	case fileHandler:
		return "file"
	default:
		return "unknown"
	}
}

// completion delivers a command's collected output and status to the
// caller that asked for it. Completions run without the conductor lock
// held.
type completion func(data []byte, status int)

// handler is the tagged union pairing a consumption strategy with its
// accumulated data. Only the fields the kind uses are meaningful.
type handler struct {
	kind  handlerKind
	lines []string

	// writeOnSuccess: the payload to deliver.
	payload string

	// runRemoteCommand: the original command line, kept for logs.
	cmdline string

	// runRemoteCommand: whether the spawned PID was seen yet.
	sawPID bool

	// completion for runRemoteCommand/backgroundJob/poll/file.
	complete completion
}

func (h *handler) accumulate(line string) {
	switch h.kind {
	case checkForPython, framerLogin, pollHandler, getShell, fileHandler:
		h.lines = append(h.lines, line)
	case fireAndForget, failIfNonzeroStatus, writeOnSuccess, runRemoteCommand, backgroundJob:
		// runRemoteCommand's PID line is handled by the state machine
		// before accumulation; everything else is discarded.
	}
}

// joined returns the collected lines as one newline-separated string.
func (h *handler) joined() string {
	return strings.Join(h.lines, "\n")
}

// body returns the collected output trimmed the way single-value
// responses (PIDs, version banners) are parsed.
func (h *handler) body() string {
	return strings.TrimSpace(h.joined())
}

// executionContext pairs an in-flight command with its handler.
type executionContext struct {
	command domain.Command
	handler *handler
}

// abortCompletion returns the completion to run when the context is
// drained with abort, or nil when the handler has no caller waiting.
func (ctx *executionContext) abortCompletion() completion {
	h := ctx.handler
	if h == nil || h.complete == nil {
		return nil
	}
	switch h.kind {
	case runRemoteCommand, backgroundJob, pollHandler, fileHandler:
		return h.complete
	default:
		return nil
	}
}
