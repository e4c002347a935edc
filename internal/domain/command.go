package domain

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// CommandKind enumerates every operation the conductor can send to the
// remote end. Two families exist: plain commands understood by the thin
// bootstrap loop, and framer commands understood by the injected helper
// once it is running.
type CommandKind int

const (
	CmdExecLoginShell CommandKind = iota
	CmdSetenv
	CmdRun
	CmdRunPython
	CmdShell
	CmdGetShell
	CmdWrite
	CmdCD
	CmdQuit

	CmdFramerRun
	CmdFramerLogin
	CmdFramerSend
	CmdFramerKill
	CmdFramerQuit
	CmdFramerRegister
	CmdFramerDeregister
	CmdFramerPoll
	CmdFramerReset
	CmdFramerAutopoll
	CmdFramerSave
	CmdFramerFile
)

func (k CommandKind) String() string {
	switch k {
	case CmdExecLoginShell:
		return "exec_login_shell"
	case CmdSetenv:
		return "setenv"
	case CmdRun:
		return "run"
	case CmdRunPython:
		return "runpython"
	case CmdShell:
		return "shell"
	case CmdGetShell:
		return "getshell"
	case CmdWrite:
		return "write"
	case CmdCD:
		return "cd"
	case CmdQuit:
		return "quit"
	case CmdFramerRun:
		return "framer_run"
	case CmdFramerLogin:
		return "framer_login"
	case CmdFramerSend:
		return "framer_send"
	case CmdFramerKill:
		return "framer_kill"
	case CmdFramerQuit:
		return "framer_quit"
	case CmdFramerRegister:
		return "framer_register"
	case CmdFramerDeregister:
		return "framer_deregister"
	case CmdFramerPoll:
		return "framer_poll"
	case CmdFramerReset:
		return "framer_reset"
	case CmdFramerAutopoll:
		return "framer_autopoll"
	case CmdFramerSave:
		return "framer_save"
	case CmdFramerFile:
		return "framer_file"
	default:
		return "unknown"
	}
}

// SavePair is one key/value entry of a framer save record. Order is
// preserved on the wire, so callers control field ordering.
type SavePair struct {
	Key   string
	Value string
}

// Command is the tagged union of remote operations. Kind selects the
// variant; only the fields that variant uses are meaningful.
type Command struct {
	Kind CommandKind

	// CmdSetenv
	Key   string
	Value string

	// CmdRun, CmdShell, CmdFramerRun: the command line.
	// CmdCD: the directory. CmdWrite: the destination path.
	Arg string

	// CmdFramerSend: raw bytes to feed the remote process.
	Data []byte

	// CmdFramerSend, CmdFramerKill, CmdFramerRegister, CmdFramerDeregister.
	PID int

	// CmdFramerLogin.
	CWD  string
	Argv []string

	// CmdFramerSave.
	Pairs []SavePair

	// CmdFramerFile.
	File *FileSubcommand
}

// IsFramer reports whether the command targets the injected helper.
// Framer records chunk with a backslash continuation marker; plain
// records chunk bare.
func (c Command) IsFramer() bool {
	return c.Kind >= CmdFramerRun
}

// WireForm renders the newline-separated record for the remote end,
// without the trailing newline the dispatcher appends.
func (c Command) WireForm() string {
	switch c.Kind {
	case CmdExecLoginShell:
		return "exec_login_shell"
	case CmdSetenv:
		return fmt.Sprintf("setenv %s %s", c.Key, EscapeForShell(c.Value))
	case CmdRun:
		return "run " + c.Arg
	case CmdRunPython:
		return "runpython"
	case CmdShell:
		return "shell " + c.Arg
	case CmdGetShell:
		return "getshell"
	case CmdWrite:
		return "write " + base64.StdEncoding.EncodeToString([]byte(c.Arg))
	case CmdCD:
		return "cd " + c.Arg
	case CmdQuit:
		return "quit"
	case CmdFramerRun:
		return "run\n" + c.Arg
	case CmdFramerLogin:
		return "login\n" + c.CWD + "\n" + strings.Join(c.Argv, " ")
	case CmdFramerSend:
		return "send\n" + strconv.Itoa(c.PID) + "\n" + base64.StdEncoding.EncodeToString(c.Data)
	case CmdFramerKill:
		return "kill\n" + strconv.Itoa(c.PID)
	case CmdFramerQuit:
		return "quit"
	case CmdFramerRegister:
		return "register\n" + strconv.Itoa(c.PID)
	case CmdFramerDeregister:
		// The deployed helper only understands the historical
		// misspelling. Do not correct it.
		return "dereigster\n" + strconv.Itoa(c.PID)
	case CmdFramerPoll:
		return "poll"
	case CmdFramerReset:
		return "reset"
	case CmdFramerAutopoll:
		return "autopoll"
	case CmdFramerSave:
		var b strings.Builder
		b.WriteString("save")
		for _, p := range c.Pairs {
			b.WriteString("\n")
			b.WriteString(p.Key)
			b.WriteString("=")
			b.WriteString(p.Value)
		}
		return b.String()
	case CmdFramerFile:
		return "file\n" + c.File.WireForm()
	default:
		return ""
	}
}

// OperationDescription is the human-readable form used in logs. It
// never includes payload bytes.
func (c Command) OperationDescription() string {
	switch c.Kind {
	case CmdSetenv:
		return "setenv " + c.Key
	case CmdRun, CmdShell, CmdFramerRun:
		return c.Kind.String() + " " + c.Arg
	case CmdCD:
		return "cd " + c.Arg
	case CmdWrite:
		return "write " + c.Arg
	case CmdFramerLogin:
		return fmt.Sprintf("framer login cwd=%s argv=%v", c.CWD, c.Argv)
	case CmdFramerSend:
		return fmt.Sprintf("framer send pid=%d len=%d", c.PID, len(c.Data))
	case CmdFramerKill, CmdFramerRegister, CmdFramerDeregister:
		return fmt.Sprintf("%s pid=%d", c.Kind, c.PID)
	case CmdFramerFile:
		return "framer file " + c.File.Describe()
	default:
		return c.Kind.String()
	}
}

// shellSpecials are the characters EscapeForShell protects. The value
// lands inside a remote shell word, so quotes, expansion and
// continuation characters must all be neutralized.
const shellSpecials = "\\'`\"$ \t"

// EscapeForShell backslash-escapes a value for the remote login shell.
func EscapeForShell(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(shellSpecials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
