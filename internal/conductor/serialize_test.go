package conductor

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/coxswain-dev/coxswain/internal/payload"
)

func buildTree(t *testing.T) *Conductor {
	t.Helper()

	root := New(Config{
		SSHArgs:  "user@gateway",
		BoolArgs: "-A",
		ParsedArgs: ParsedArgs{
			CommandArgs: []string{"tmux", "attach"},
			Identity:    "gateway",
		},
		VarsToSend:       map[string]string{"LANG": "C.UTF-8"},
		ClientVars:       map[string]string{"TERM": "xterm-256color"},
		InitialDirectory: "/srv",
		InjectShell:      true,
	})
	root.framedPID = 4321
	root.modifiedVars = map[string]string{"LANG": "C.UTF-8", "COXSWAIN_SHELL_INTEGRATION": "1"}
	root.modifiedCommandArgs = []string{"tmux", "attach"}
	root.payloads.Add("/usr/local/share/tools", "~/tools")

	child := New(Config{
		SSHArgs:    "user@inner",
		ParsedArgs: ParsedArgs{Identity: "inner"},
		Parent:     root,
	})
	child.framedPID = 777
	return child
}

func TestSerializationRoundTrip(t *testing.T) {
	child := buildTree(t)
	root := child.Parent()

	blob, err := child.JSONValue()
	if err != nil {
		t.Fatalf("JSONValue: %v", err)
	}

	restored, err := FromJSON(blob)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}

	if restored.Depth() != 1 {
		t.Fatalf("restored depth = %d, want 1", restored.Depth())
	}
	if restored.Parent() == nil || restored.Parent().Depth() != 0 {
		t.Fatal("parent chain not reconstructed")
	}
	if restored.FramedPID() != 777 || restored.Parent().FramedPID() != 4321 {
		t.Fatal("framed pids not restored")
	}
	if restored.DCSID() != child.DCSID() || restored.ClientUniqueID() != child.ClientUniqueID() {
		t.Fatal("identity not restored")
	}
	if restored.Parent().DCSID() != root.DCSID() {
		t.Fatal("parent identity not restored")
	}
	if !restored.Restored() {
		t.Fatal("restored flag must be set after decode")
	}
	if got := restored.Parent().payloads.Pairs(); !reflect.DeepEqual(got, []payload.Pair{
		{LocalPath: "/usr/local/share/tools", Destination: "/$HOME/tools"},
	}) {
		t.Fatalf("payloads = %+v", got)
	}
	if !reflect.DeepEqual(restored.Parent().modifiedVars, root.modifiedVars) {
		t.Fatal("modified vars not restored")
	}
}

// Encode(decode(j)) == j: live state is never part of the blob, so a
// decode and re-encode is exact.
func TestSerializationIdempotent(t *testing.T) {
	child := buildTree(t)

	blob, err := child.JSONValue()
	if err != nil {
		t.Fatalf("JSONValue: %v", err)
	}
	restored, err := FromJSON(blob)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	blob2, err := restored.JSONValue()
	if err != nil {
		t.Fatalf("re-encode: %v", err)
	}

	var a, b map[string]any
	if err := json.Unmarshal([]byte(blob), &a); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(blob2), &b); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("round trip not idempotent:\n%s\n%s", blob, blob2)
	}
}

// Live state never survives serialization: queue drops, background
// jobs drop, the restored conductor idles in ground until a delegate
// arrives.
func TestSerializationDropsLiveState(t *testing.T) {
	d := &fakeDelegate{}
	c := newTestConductor(t, d)
	startFraming(t, c, d, "4321")

	c.RunRemoteCommand("uptime", func([]byte, int) {})
	c.HandleLine("5678", 0)
	c.HandleCommandEnd("6", BoundaryFramer, 0, 0)
	if len(c.BackgroundJobs()) != 1 {
		t.Fatal("expected one background job")
	}

	blob, err := c.JSONValue()
	if err != nil {
		t.Fatalf("JSONValue: %v", err)
	}
	restored, err := FromJSON(blob)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}

	if len(restored.BackgroundJobs()) != 0 {
		t.Fatal("background jobs must not be restored")
	}
	if restored.st.kind != stateGround {
		t.Fatalf("restored state = %s, want ground", restored.st.kind)
	}
	if len(restored.queue) != 0 {
		t.Fatal("queue must decode empty")
	}
	if restored.FramedPID() != 4321 {
		t.Fatal("framed pid is identity, it must survive")
	}
}

func TestFromJSONRejectsDepthMismatch(t *testing.T) {
	blob := `{"sshargs":"a","boolArgs":"","parsedArgs":{"command_args":null,"identity":""},` +
		`"depth":3,"dcsID":"x","clientUniqueID":"y","shouldInjectShellIntegration":false}`
	if _, err := FromJSON(blob); err == nil {
		t.Fatal("depth inconsistent with chain position must be rejected")
	}
}

// Attaching a delegate after restore latches the recovered state until
// resynchronization completes, then dispatch resumes.
func TestRestoredLatchReleasesOnResync(t *testing.T) {
	child := buildTree(t)
	blob, err := child.JSONValue()
	if err != nil {
		t.Fatal(err)
	}
	restored, err := FromJSON(blob)
	if err != nil {
		t.Fatal(err)
	}
	root := restored.Parent()

	d := &fakeDelegate{}
	root.SetDelegate(d)
	if root.Restored() {
		t.Fatal("delegate assignment must clear the restored flag")
	}
	if root.st.kind != stateRecovered {
		t.Fatalf("state = %s, want recovered", root.st.kind)
	}

	root.Poll(func([]byte, int) {})
	if got := d.take(); len(got) != 0 {
		t.Fatalf("no dispatch before resync, wrote %q", got)
	}

	root.DidResynchronize()
	if got := d.take(); len(got) != 1 || got[0] != "poll\n" {
		t.Fatalf("after resync wrote %q, want queued poll", got)
	}
}
