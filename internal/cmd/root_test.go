package cmd

import (
	"reflect"
	"testing"

	"github.com/coxswain-dev/coxswain/internal/conductor"
)

func TestParseSSHArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want conductor.ParsedArgs
	}{
		{
			"bare host",
			[]string{"user@host"},
			conductor.ParsedArgs{Identity: "user@host", CommandArgs: []string{}},
		},
		{
			"host with command",
			[]string{"user@host", "tmux", "attach"},
			conductor.ParsedArgs{Identity: "user@host", CommandArgs: []string{"tmux", "attach"}},
		},
		{
			"flags before host",
			[]string{"-4", "user@host", "htop"},
			conductor.ParsedArgs{Identity: "user@host", CommandArgs: []string{"htop"}},
		},
		{
			"only flags",
			[]string{"-A", "-4"},
			conductor.ParsedArgs{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseSSHArgs(tt.args)
			if got.Identity != tt.want.Identity {
				t.Errorf("identity = %q, want %q", got.Identity, tt.want.Identity)
			}
			if len(got.CommandArgs) != len(tt.want.CommandArgs) {
				t.Errorf("commandArgs = %v, want %v", got.CommandArgs, tt.want.CommandArgs)
			} else if len(got.CommandArgs) > 0 && !reflect.DeepEqual(got.CommandArgs, tt.want.CommandArgs) {
				t.Errorf("commandArgs = %v, want %v", got.CommandArgs, tt.want.CommandArgs)
			}
		})
	}
}
