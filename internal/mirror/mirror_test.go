package mirror

import (
	"testing"

	"github.com/ricochet1k/termemu"
)

func TestSubscribeReceivesUpdates(t *testing.T) {
	s := NewScreen()
	updates, cancel := s.Subscribe()
	defer cancel()

	s.Bell()
	s.CursorMoved(3, 4)

	got := <-updates
	if got.Kind != UpdateBell {
		t.Fatalf("first update = %+v", got)
	}
	got = <-updates
	if got.Kind != UpdateCursor || got.X != 3 || got.Y != 4 {
		t.Fatalf("cursor update = %+v", got)
	}
}

func TestRegionChangeCoalescesToChange(t *testing.T) {
	s := NewScreen()
	updates, cancel := s.Subscribe()
	defer cancel()

	s.RegionChanged(termemu.Region{X: 0, Y: 0, X2: 10, Y2: 1}, termemu.CRText)
	if got := <-updates; got.Kind != UpdateChange {
		t.Fatalf("update = %+v", got)
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	s := NewScreen()
	updates, cancel := s.Subscribe()
	cancel()

	if _, ok := <-updates; ok {
		t.Fatal("channel should be closed after cancel")
	}
	// Emitting after cancel must not panic.
	s.Bell()
}

func TestCloseClosesSubscribers(t *testing.T) {
	s := NewScreen()
	u1, _ := s.Subscribe()
	u2, _ := s.Subscribe()

	s.Close()
	if _, ok := <-u1; ok {
		t.Fatal("u1 should be closed")
	}
	if _, ok := <-u2; ok {
		t.Fatal("u2 should be closed")
	}

	late, _ := s.Subscribe()
	if _, ok := <-late; ok {
		t.Fatal("subscribe after close should return a closed channel")
	}
}

func TestSnapshotWithoutTerminal(t *testing.T) {
	s := NewScreen()
	if _, ok := s.Snapshot(); ok {
		t.Fatal("snapshot without an attached terminal must report not ready")
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	s := NewScreen()
	_, cancel := s.Subscribe()
	defer cancel()

	// Overflow the buffer; emit must drop rather than block.
	for i := 0; i < eventBuffer*2; i++ {
		s.Bell()
	}
}
