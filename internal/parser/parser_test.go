package parser

import (
	"encoding/base64"
	"reflect"
	"testing"
)

func frame(body string) string {
	return "\x1bP" + body + "\x1b\\"
}

func feedAll(p *Parser, chunks ...string) ([]Event, string) {
	var events []Event
	var passthrough []byte
	for _, chunk := range chunks {
		ev, pt := p.Feed([]byte(chunk))
		events = append(events, ev...)
		passthrough = append(passthrough, pt...)
	}
	return events, string(passthrough)
}

func TestPlainLines(t *testing.T) {
	p := New()
	events, passthrough := feedAll(p, "hello\nworld\n")

	want := []Event{
		{Kind: EventLine, Line: "hello"},
		{Kind: EventLine, Line: "world"},
	}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("events = %+v", events)
	}
	if passthrough != "hello\nworld\n" {
		t.Fatalf("passthrough = %q", passthrough)
	}
}

func TestCarriageReturnsStripped(t *testing.T) {
	p := New()
	events, _ := feedAll(p, "hello\r\n")
	if len(events) != 1 || events[0].Line != "hello" {
		t.Fatalf("events = %+v", events)
	}
}

func TestCommandBoundaryFrames(t *testing.T) {
	p := New()
	events, passthrough := feedAll(p,
		frame("%begin 0 7"),
		"out\n",
		frame("%end 0 7 f 2"),
	)

	want := []Event{
		{Kind: EventCommandBegin, Depth: 0, ID: "7"},
		{Kind: EventLine, Depth: 0, Line: "out"},
		{Kind: EventCommandEnd, Depth: 0, ID: "7", Boundary: "f", Status: 2},
	}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("events = %+v", events)
	}
	if passthrough != "out\n" {
		t.Fatalf("frames must not leak into passthrough, got %q", passthrough)
	}
}

func TestPlainLinesInheritBoundaryDepth(t *testing.T) {
	p := New()
	events, _ := feedAll(p,
		frame("%begin 2 1"),
		"inner\n",
		frame("%end 2 1 f 0"),
		"outer\n",
	)

	if events[1].Depth != 2 {
		t.Fatalf("line inside depth-2 boundary tagged %d", events[1].Depth)
	}
	if events[3].Depth != 0 {
		t.Fatalf("line outside boundary tagged %d", events[3].Depth)
	}
}

func TestFrameSplitAcrossFeeds(t *testing.T) {
	p := New()
	whole := frame("%terminate 0 5678 0")
	events, _ := feedAll(p, whole[:5], whole[5:])

	want := []Event{{Kind: EventTerminate, PID: 5678}}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("events = %+v", events)
	}
}

func TestSideChannelOutputDecodes(t *testing.T) {
	p := New()
	payload := base64.StdEncoding.EncodeToString([]byte("load: 0.1\nload: 0.2\n"))
	events, _ := feedAll(p, frame("%output 0 5678 1 "+payload))

	want := []Event{
		{Kind: EventSideChannel, PID: 5678, Channel: 1, Line: "load: 0.1"},
		{Kind: EventSideChannel, PID: 5678, Channel: 1, Line: "load: 0.2"},
	}
	if !reflect.DeepEqual(events, want) {
		t.Fatalf("events = %+v", events)
	}
}

func TestUnhookFrame(t *testing.T) {
	p := New()
	events, _ := feedAll(p, frame("%unhook 1"))
	if len(events) != 1 || events[0].Kind != EventUnhook || events[0].Depth != 1 {
		t.Fatalf("events = %+v", events)
	}
}

func TestRecoveryLinesClassified(t *testing.T) {
	p := New()
	events, _ := feedAll(p, ":begin-recovery\n:recovery: login 9999\n:end-recovery\nplain\n")

	kinds := []EventKind{EventRecovery, EventRecovery, EventRecovery, EventLine}
	if len(events) != len(kinds) {
		t.Fatalf("got %d events", len(events))
	}
	for i, k := range kinds {
		if events[i].Kind != k {
			t.Errorf("event %d kind = %v, want %v", i, events[i].Kind, k)
		}
	}
}

func TestMalformedFramesIgnored(t *testing.T) {
	p := New()
	events, _ := feedAll(p,
		frame("%begin nope 1"),
		frame("%output 0 1 1 !!notb64!!"),
		frame("unknown"),
		"still works\n",
	)
	if len(events) != 1 || events[0].Line != "still works" {
		t.Fatalf("events = %+v", events)
	}
}

func TestNonDCSEscapePassesThrough(t *testing.T) {
	p := New()
	_, passthrough := feedAll(p, "\x1b[31mred\x1b[0m\n")
	if passthrough != "\x1b[31mred\x1b[0m\n" {
		t.Fatalf("passthrough = %q", passthrough)
	}
}
