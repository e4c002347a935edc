// Package mirror keeps a server-side model of the session screen. A
// termemu terminal replays the remote stream; subscribers receive
// coarse updates and pull full snapshots, which is what the serve API
// hands to browser clients.
package mirror

import (
	"sync"

	"github.com/ricochet1k/termemu"
)

const eventBuffer = 128

type UpdateKind int

const (
	UpdateChange UpdateKind = iota
	UpdateCursor
	UpdateBell
)

// Update is one coarse screen change notification. Subscribers react
// by pulling a Snapshot; the update itself carries only the cursor.
type Update struct {
	Kind UpdateKind
	X    int
	Y    int
}

// Snapshot is a point-in-time copy of the visible screen.
type Snapshot struct {
	Rows  int
	Cols  int
	Lines []string
	CurX  int
	CurY  int
}

// Screen implements the termemu frontend and fans updates out to
// subscribers.
type Screen struct {
	mu     sync.Mutex
	term   termemu.Terminal
	subs   map[int]chan Update
	nextID int
	closed bool
	curX   int
	curY   int
}

func NewScreen() *Screen {
	return &Screen{subs: make(map[int]chan Update)}
}

// Attach hands the screen its terminal once termemu is constructed
// around it.
func (s *Screen) Attach(term termemu.Terminal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.term = term
}

// Subscribe registers an update channel. The cancel func unregisters
// and closes it.
func (s *Screen) Subscribe() (<-chan Update, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan Update, eventBuffer)
	if s.closed {
		close(ch)
		return ch, func() {}
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if sub, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(sub)
		}
	}
}

func (s *Screen) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for id, ch := range s.subs {
		delete(s.subs, id)
		close(ch)
	}
}

// Snapshot copies the visible screen under the terminal lock.
func (s *Screen) Snapshot() (Snapshot, bool) {
	s.mu.Lock()
	term := s.term
	curX, curY := s.curX, s.curY
	s.mu.Unlock()

	if term == nil {
		return Snapshot{}, false
	}

	var snap Snapshot
	term.WithLock(func() {
		w, h := term.Size()
		if w <= 0 || h <= 0 {
			return
		}
		lines := make([]string, h)
		for y := 0; y < h; y++ {
			lines[y] = term.Line(y)
		}
		snap = Snapshot{Rows: h, Cols: w, Lines: lines, CurX: curX, CurY: curY}
	})
	if snap.Rows == 0 {
		return Snapshot{}, false
	}
	return snap, true
}

func (s *Screen) emit(u Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

// termemu frontend interface.

func (s *Screen) Bell() {
	s.emit(Update{Kind: UpdateBell})
}

func (s *Screen) RegionChanged(r termemu.Region, reason termemu.ChangeReason) {
	s.emit(Update{Kind: UpdateChange})
}

func (s *Screen) ScrollLines(y int) {
	s.emit(Update{Kind: UpdateChange})
}

func (s *Screen) CursorMoved(x, y int) {
	s.mu.Lock()
	s.curX, s.curY = x, y
	s.mu.Unlock()
	s.emit(Update{Kind: UpdateCursor, X: x, Y: y})
}

func (s *Screen) StyleChanged(style termemu.Style) {}

func (s *Screen) ViewFlagChanged(flag termemu.ViewFlag, value bool) {}

func (s *Screen) ViewIntChanged(flag termemu.ViewInt, value int) {}

func (s *Screen) ViewStringChanged(flag termemu.ViewString, value string) {}
