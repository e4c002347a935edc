package conductor

import (
	"encoding/base64"
	"path"
	"sort"
	"strings"

	"github.com/coxswain-dev/coxswain/internal/domain"
	"github.com/coxswain-dev/coxswain/internal/framer"
)

// Shells always eligible for shell-integration injection. bash is
// eligible too unless it is the stock macOS build, which rejects the
// injection bootstrap.
var injectableShells = map[string]bool{
	"zsh":  true,
	"fish": true,
}

const (
	stockMacBashVersion = "GNU bash, version 3.2.57"
	stockMacBashTarget  = "apple-darwin"
)

// integrationVar marks the remote environment when shell integration
// is injected.
const integrationVar = "COXSWAIN_SHELL_INTEGRATION"

// payloadWrapWidth is the line width payload base64 is wrapped to
// before delivery through a write command.
const payloadWrapWidth = 76

// Start opens the session. The launch sequence is strictly ordered:
// getshell, environment, payloads, cd, python probe, then framer
// launch or plain login. The getshell handler queues the environment,
// payload, cd and probe steps together; the probe's handler queues the
// framer launch or the plain login.
func (c *Conductor) Start() {
	c.mu.Lock()
	c.sendLocked(domain.Command{Kind: domain.CmdGetShell}, &handler{kind: getShell})
	fns := c.takeDeferredLocked()
	c.mu.Unlock()
	runAll(fns)
}

// continueStartupLocked consumes the getshell response and queues the
// rest of the launch sequence.
func (c *Conductor) continueStartupLocked(lines []string, status int) {
	if status != 0 || len(lines) < 2 {
		c.failLocked("getshell failed")
		return
	}

	c.shell = strings.TrimSpace(lines[0])
	c.home = strings.TrimSpace(lines[1])
	// Older remotes report only shell and home; version stays empty
	// then.
	if len(lines) >= 3 {
		c.shellVersion = strings.TrimSpace(strings.Join(lines[2:], " "))
	} else {
		c.shellVersion = ""
	}

	if c.injectShell && shellInjectable(c.shell, c.shellVersion) {
		c.modifiedVars = make(map[string]string, len(c.varsToSend)+1)
		for k, v := range c.varsToSend {
			c.modifiedVars[k] = v
		}
		c.modifiedVars[integrationVar] = "1"
		c.modifiedCommandArgs = append([]string(nil), c.parsedArgs.CommandArgs...)
	} else {
		c.modifiedVars = nil
		c.modifiedCommandArgs = nil
	}

	vars := c.modifiedVars
	if vars == nil {
		vars = c.varsToSend
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c.sendLocked(domain.Command{Kind: domain.CmdSetenv, Key: k, Value: vars[k]},
			&handler{kind: failIfNonzeroStatus})
	}

	for _, job := range c.payloads.Jobs() {
		blob, err := job.Build()
		if err != nil {
			c.logger.Warn("skipping payload", "destination", job.Destination, "error", err)
			continue
		}
		c.sendLocked(domain.Command{Kind: domain.CmdWrite, Arg: job.Destination},
			&handler{kind: writeOnSuccess, payload: wrapBase64(blob)})
	}

	if c.initialDirectory != "" {
		c.sendLocked(domain.Command{Kind: domain.CmdCD, Arg: c.initialDirectory},
			&handler{kind: failIfNonzeroStatus})
	}

	c.sendLocked(domain.Command{Kind: domain.CmdShell, Arg: "python3 -V"},
		&handler{kind: checkForPython})
}

// launchFramerLocked uploads the helper, stores the identity record
// for recovery, and logs into the managed shell.
func (c *Conductor) launchFramerLocked() {
	code := framer.Source(c.depth, c.verbose)
	c.sendLocked(domain.Command{Kind: domain.CmdRunPython},
		&handler{kind: writeOnSuccess, payload: code})

	c.sendLocked(domain.Command{
		Kind: domain.CmdFramerSave,
		Pairs: []domain.SavePair{
			{Key: "dcsID", Value: c.dcsID},
			{Key: "sshargs", Value: c.sshArgs},
			{Key: "boolArgs", Value: c.boolArgs},
			{Key: "clientUniqueID", Value: c.clientUniqueID},
		},
	}, &handler{kind: failIfNonzeroStatus})

	cwd := c.initialDirectory
	if cwd == "" {
		cwd = "$HOME"
	}
	argv := c.modifiedCommandArgs
	if argv == nil {
		argv = c.parsedArgs.CommandArgs
	}
	c.sendLocked(domain.Command{Kind: domain.CmdFramerLogin, CWD: cwd, Argv: argv},
		&handler{kind: framerLogin})
}

// shellInjectable applies the eligibility rules for shell-integration
// injection.
func shellInjectable(shell, version string) bool {
	name := path.Base(shell)
	if injectableShells[name] {
		return true
	}
	if name != "bash" {
		return false
	}
	if strings.Contains(version, stockMacBashVersion) && strings.Contains(version, stockMacBashTarget) {
		return false
	}
	return true
}

// wrapBase64 encodes a payload blob and wraps it for line transport.
func wrapBase64(blob []byte) string {
	b64 := base64.StdEncoding.EncodeToString(blob)
	if len(b64) <= payloadWrapWidth {
		return b64
	}
	var b strings.Builder
	for len(b64) > payloadWrapWidth {
		b.WriteString(b64[:payloadWrapWidth])
		b.WriteString("\n")
		b64 = b64[payloadWrapWidth:]
	}
	b.WriteString(b64)
	return b.String()
}
