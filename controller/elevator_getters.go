package controller

import (
	"elevatorsim/types"

	"github.com/golang/glog"
	"github.com/tiendc/go-deepcopy"
)

var _ types.ElevatorState = (*Controller)(nil)

func (c *Controller) GetID() string {
	return c.cfg.ID
}

func (c *Controller) GetFloor() int {
	return c.state.currentFloor
}

func (c *Controller) GetDirection() types.Direction {
	return c.state.direction
}

func (c *Controller) GetMotion() types.Motion {
	return c.state.motion
}

func (c *Controller) GetDoorState() types.DoorState {
	return c.state.doorState
}

func (c *Controller) GetSelectedFloor() (int, bool) {
	return c.state.selectedFloor, c.state.hasSelection
}

func (c *Controller) GetFloorCount() int {
	return c.cfg.FloorCount
}

// Snapshot returns the current car state and button panel.
func (c *Controller) Snapshot() Snapshot {
	selected := -1
	if c.state.hasSelection {
		selected = c.state.selectedFloor
	}

	return Snapshot{
		ID:            c.cfg.ID,
		CurrentFloor:  c.state.currentFloor,
		Direction:     c.state.direction,
		Motion:        c.state.motion,
		DoorState:     c.state.doorState,
		SelectedFloor: selected,
		Buttons:       c.buttons(),
	}
}

// buttons derives the enablement contract. A travel sequence counts as
// traveling from admission on, so the door buttons stay locked while the
// doors close for departure.
func (c *Controller) buttons() Buttons {
	busy := c.busy()

	b := Buttons{
		FloorDisabled: make([]bool, c.cfg.FloorCount),
		OpenDisabled:  busy || c.state.doorState == types.DS_Open,
		CloseDisabled: busy || c.state.doorState == types.DS_Closed,
		ActiveFloor:   c.state.currentFloor,
	}
	for f := range b.FloorDisabled {
		b.FloorDisabled[f] = busy || f == c.state.currentFloor
	}
	if c.state.hasSelection {
		b.ActiveFloor = c.state.selectedFloor
	}
	return b
}

// copySnapshot hands every listener its own copy of the button slices.
func copySnapshot(s Snapshot) Snapshot {
	var out Snapshot
	if err := deepcopy.Copy(&out, &s); err != nil {
		glog.Errorf("Copying snapshot failed: %v", err)
		return s
	}
	return out
}
