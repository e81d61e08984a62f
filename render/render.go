// Package render draws the simulator state as text lines.
package render

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"elevatorsim/controller"
	"elevatorsim/types"

	"github.com/golang/glog"
)

// Terminal writes one status line per state change and one line per door animation.
type Terminal struct {
	mtx sync.Mutex
	out io.Writer
}

var _ controller.Listener = (*Terminal)(nil)

func NewTerminal(out io.Writer) *Terminal {
	return &Terminal{out: out}
}

func (t *Terminal) OnStateChange(s controller.Snapshot) {
	t.println(StatusLine(s))
}

func (t *Terminal) OnFloorArrived(floor int) {
	glog.V(2).Infof("Floor label -> %d", floor)
}

func (t *Terminal) OnDoorVisual(floor int, action types.DoorAction) {
	t.println(fmt.Sprintf("  doors at floor %d: %v", floor, action))
}

func (t *Terminal) println(line string) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	fmt.Fprintln(t.out, line)
}

// Arrow is the direction indicator.
func Arrow(d types.Direction) string {
	switch d {
	case types.DIR_Up:
		return "↑"
	case types.DIR_Down:
		return "↓"
	default:
		return "·"
	}
}

// StatusLine renders the header and button panel:
// "[3 ↑] doors Closed | (0) (1) (2) <3> (4) | open(x) close(x)"
// <f> marks the highlighted floor, (f) a disabled button.
func StatusLine(s controller.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%d %s] doors %-6v |", s.CurrentFloor, Arrow(s.Direction), s.DoorState)

	for f, disabled := range s.Buttons.FloorDisabled {
		switch {
		case f == s.Buttons.ActiveFloor:
			fmt.Fprintf(&b, " <%d>", f)
		case disabled:
			fmt.Fprintf(&b, " (%d)", f)
		default:
			fmt.Fprintf(&b, "  %d ", f)
		}
	}

	fmt.Fprintf(&b, " | open%s close%s", mark(s.Buttons.OpenDisabled), mark(s.Buttons.CloseDisabled))
	return b.String()
}

// Describe renders a state received from a remote car.
func Describe(s types.ElevatorState) string {
	selected := "-"
	if f, ok := s.GetSelectedFloor(); ok {
		selected = fmt.Sprint(f)
	}
	return fmt.Sprintf("%s (%d floors): [%d %s] %v doors %v, selected %s",
		s.GetID(), s.GetFloorCount(), s.GetFloor(), Arrow(s.GetDirection()), s.GetMotion(), s.GetDoorState(), selected)
}

// LiveCars renders the ids of the cars currently heard on the feed.
func LiveCars(ids []string) string {
	if len(ids) == 0 {
		return "live cars: none"
	}
	return "live cars: " + strings.Join(ids, ", ")
}

func mark(disabled bool) string {
	if disabled {
		return "(x)"
	}
	return "( )"
}
