package conductor

import (
	"testing"
)

func deliverRecovery(c *Conductor, lines ...string) *Recovery {
	var rec *Recovery
	for _, line := range lines {
		if r := c.HandleRecovery(line, 0); r != nil {
			rec = r
		}
	}
	return rec
}

func TestRecoveryHappyPath(t *testing.T) {
	d := &fakeDelegate{}
	c := newTestConductor(t, d)
	c.StartRecovery()

	rec := deliverRecovery(c,
		":begin-recovery",
		":recovery: login 9999",
		":recovery: dcsID abc",
		":recovery: sshargs u@h",
		":recovery: boolArgs ",
		":recovery: clientUniqueID x",
		":end-recovery",
	)

	if rec == nil {
		t.Fatal("expected a recovery record")
	}
	if rec.FramedPID != 9999 || rec.DCSID != "abc" || rec.SSHArgs != "u@h" || rec.ClientUniqueID != "x" {
		t.Fatalf("recovery = %+v", rec)
	}
	if rec.BoolArgs != "" {
		t.Fatalf("boolArgs should be empty, got %q", rec.BoolArgs)
	}
	if rec.Conductor != c {
		t.Fatal("recovery must reference the rebuilt conductor")
	}

	if got := c.FramedPID(); got != 9999 {
		t.Fatalf("FramedPID = %d, want 9999", got)
	}
	if c.DCSID() != "abc" || c.ClientUniqueID() != "x" {
		t.Fatal("conductor did not adopt the preserved identity")
	}
	if c.registry.FindByDCSID("abc") != c {
		t.Fatal("recovered conductor should be registered")
	}
	if got := d.take(); len(got) != 0 {
		t.Fatalf("recovery should not write, got %q", got)
	}
}

func TestRecoveryMissingFieldQuits(t *testing.T) {
	d := &fakeDelegate{}
	c := newTestConductor(t, d)
	c.StartRecovery()

	rec := deliverRecovery(c,
		":begin-recovery",
		":recovery: login 9999",
		":recovery: dcsID abc",
		":end-recovery",
	)

	if rec != nil {
		t.Fatal("incomplete record must not produce a recovery")
	}
	if got := d.take(); len(got) != 1 || got[0] != "quit\n" {
		t.Fatalf("incomplete record wrote %q, want quit", got)
	}
	if c.Framing() {
		t.Fatal("conductor must not frame from an incomplete record")
	}
}

func TestRecoveryMalformedLoginPID(t *testing.T) {
	d := &fakeDelegate{}
	c := newTestConductor(t, d)
	c.StartRecovery()

	rec := deliverRecovery(c,
		":begin-recovery",
		":recovery: login zero",
		":recovery: dcsID abc",
		":recovery: sshargs u@h",
		":recovery: boolArgs b",
		":recovery: clientUniqueID x",
		":end-recovery",
	)

	// A malformed pid leaves the login field unset; the record is
	// incomplete and quit is issued.
	if rec != nil {
		t.Fatal("malformed login pid must not produce a recovery")
	}
	if got := d.take(); len(got) != 1 || got[0] != "quit\n" {
		t.Fatalf("wrote %q, want quit", got)
	}
}

func TestRecoveryLinesIgnoredOutsideRecord(t *testing.T) {
	d := &fakeDelegate{}
	c := newTestConductor(t, d)

	if rec := deliverRecovery(c, ":recovery: login 1", ":end-recovery"); rec != nil {
		t.Fatal("fields outside a record must be discarded")
	}
	if got := d.take(); len(got) != 0 {
		t.Fatalf("stray recovery lines wrote %q", got)
	}
}
