package controller

import (
	"errors"
	"fmt"
	"time"

	"elevatorsim/types"
)

var (
	ErrInvalidFloor  = errors.New("invalid floor")
	ErrInvalidConfig = errors.New("invalid controller config")
)

type Config struct {
	ID             string
	FloorCount     int
	SpeedPerFloor  time.Duration
	DoorTransition time.Duration
	DoorDwell      time.Duration
}

func (c Config) validate() error {
	switch {
	case c.FloorCount < 1:
		return fmt.Errorf("%w: floor count %d < 1", ErrInvalidConfig, c.FloorCount)
	case c.SpeedPerFloor <= 0:
		return fmt.Errorf("%w: speed per floor %v must be positive", ErrInvalidConfig, c.SpeedPerFloor)
	case c.DoorTransition < 0:
		return fmt.Errorf("%w: negative door transition %v", ErrInvalidConfig, c.DoorTransition)
	case c.DoorDwell < 0:
		return fmt.Errorf("%w: negative door dwell %v", ErrInvalidConfig, c.DoorDwell)
	}
	return nil
}

// phase tracks where the single in-flight travel sequence is.
type phase int

const (
	PH_Idle         phase = 0
	PH_ClosingDoors phase = 1
	PH_Moving       phase = 2
)

func (p phase) String() string {
	switch p {
	case PH_ClosingDoors:
		return "ClosingDoors"
	case PH_Moving:
		return "Moving"
	default:
		return "Idle"
	}
}

type carState struct {
	currentFloor  int
	direction     types.Direction
	motion        types.Motion
	doorState     types.DoorState
	selectedFloor int
	hasSelection  bool
}

// Listener is the renderer side of the controller. Callbacks run on the
// scheduler's goroutine and must not call back into the controller.
type Listener interface {
	OnStateChange(s Snapshot)
	OnFloorArrived(floor int)
	OnDoorVisual(floor int, action types.DoorAction)
}

// Snapshot is a copy of the car state together with the derived panel state.
// The panel is locked from the moment a travel request is admitted, so
// Buttons reports every button disabled while the doors close for departure
// even though Motion still reads Idle.
type Snapshot struct {
	ID           string
	CurrentFloor int
	Direction    types.Direction
	Motion       types.Motion
	DoorState    types.DoorState
	// SelectedFloor is -1 before the first request or Start.
	SelectedFloor int
	Buttons       Buttons
}

type Buttons struct {
	FloorDisabled []bool
	OpenDisabled  bool
	CloseDisabled bool
	ActiveFloor   int
}

// ListenerFuncs adapts plain functions to a Listener. Nil fields are skipped.
type ListenerFuncs struct {
	StateChange  func(s Snapshot)
	FloorArrived func(floor int)
	DoorVisual   func(floor int, action types.DoorAction)
}

func (l ListenerFuncs) OnStateChange(s Snapshot) {
	if l.StateChange != nil {
		l.StateChange(s)
	}
}

func (l ListenerFuncs) OnFloorArrived(floor int) {
	if l.FloorArrived != nil {
		l.FloorArrived(floor)
	}
}

func (l ListenerFuncs) OnDoorVisual(floor int, action types.DoorAction) {
	if l.DoorVisual != nil {
		l.DoorVisual(floor, action)
	}
}
