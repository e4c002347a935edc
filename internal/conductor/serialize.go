package conductor

import (
	"encoding/json"
	"fmt"

	"github.com/coxswain-dev/coxswain/internal/payload"
)

// conductorJSON is the persisted form of one hop. The tree is written
// top-down: the root's record is the innermost parent. Live state is
// intentionally absent — state decodes to ground, the queue to empty
// and background jobs are dropped; the remote side is assumed to have
// outlived the client and is reattached through recovery.
type conductorJSON struct {
	SSHArgs                      string            `json:"sshargs"`
	BoolArgs                     string            `json:"boolArgs"`
	ParsedArgs                   ParsedArgs        `json:"parsedArgs"`
	Depth                        int               `json:"depth"`
	DCSID                        string            `json:"dcsID"`
	ClientUniqueID               string            `json:"clientUniqueID"`
	VarsToSend                   map[string]string `json:"varsToSend,omitempty"`
	ClientVars                   map[string]string `json:"clientVars,omitempty"`
	ModifiedVars                 map[string]string `json:"modifiedVars,omitempty"`
	ModifiedCommandArgs          []string          `json:"modifiedCommandArgs,omitempty"`
	InitialDirectory             string            `json:"initialDirectory,omitempty"`
	ShouldInjectShellIntegration bool              `json:"shouldInjectShellIntegration"`
	Payloads                     []payload.Pair    `json:"payloads,omitempty"`
	FramedPID                    int               `json:"framedPID,omitempty"`
	Parent                       *conductorJSON    `json:"parent,omitempty"`
}

// JSONValue serializes the conductor tree for session persistence.
func (c *Conductor) JSONValue() (string, error) {
	c.mu.Lock()
	record := c.encodeLocked()
	c.mu.Unlock()

	data, err := json.Marshal(record)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (c *Conductor) encodeLocked() *conductorJSON {
	record := &conductorJSON{
		SSHArgs:                      c.sshArgs,
		BoolArgs:                     c.boolArgs,
		ParsedArgs:                   c.parsedArgs,
		Depth:                        c.depth,
		DCSID:                        c.dcsID,
		ClientUniqueID:               c.clientUniqueID,
		VarsToSend:                   c.varsToSend,
		ClientVars:                   c.clientVars,
		ModifiedVars:                 c.modifiedVars,
		ModifiedCommandArgs:          c.modifiedCommandArgs,
		InitialDirectory:             c.initialDirectory,
		ShouldInjectShellIntegration: c.injectShell,
		Payloads:                     c.payloads.Pairs(),
		FramedPID:                    c.framedPID,
	}
	if c.parent != nil {
		c.parent.mu.Lock()
		record.Parent = c.parent.encodeLocked()
		c.parent.mu.Unlock()
	}
	return record
}

// FromJSON rebuilds a conductor tree from its serialized form. Each
// hop's parent is reconstructed before it. The restored flag stays set
// until the next delegate assignment.
func FromJSON(blob string) (*Conductor, error) {
	var record conductorJSON
	if err := json.Unmarshal([]byte(blob), &record); err != nil {
		return nil, fmt.Errorf("decode conductor: %w", err)
	}
	return fromRecord(&record)
}

func fromRecord(record *conductorJSON) (*Conductor, error) {
	var parent *Conductor
	if record.Parent != nil {
		var err error
		if parent, err = fromRecord(record.Parent); err != nil {
			return nil, err
		}
	}

	wantDepth := 0
	if parent != nil {
		wantDepth = parent.depth + 1
	}
	if record.Depth != wantDepth {
		return nil, fmt.Errorf("decode conductor: depth %d does not match chain position %d", record.Depth, wantDepth)
	}

	c := New(Config{
		SSHArgs:          record.SSHArgs,
		BoolArgs:         record.BoolArgs,
		ParsedArgs:       record.ParsedArgs,
		VarsToSend:       record.VarsToSend,
		ClientVars:       record.ClientVars,
		InitialDirectory: record.InitialDirectory,
		InjectShell:      record.ShouldInjectShellIntegration,
		Parent:           parent,
	})
	c.dcsID = record.DCSID
	c.clientUniqueID = record.ClientUniqueID
	c.modifiedVars = record.ModifiedVars
	c.modifiedCommandArgs = record.ModifiedCommandArgs
	c.payloads.SetPairs(record.Payloads)
	c.framedPID = record.FramedPID
	c.restored = true
	return c, nil
}

// Restored reports whether the conductor was rebuilt from its
// serialized form and has not yet been handed a delegate.
func (c *Conductor) Restored() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restored
}
