package types

type Direction int8

const (
	DIR_Down Direction = -1
	DIR_Idle Direction = 0
	DIR_Up   Direction = 1
)

// DirectionTowards returns the unit direction from one floor to another.
func DirectionTowards(from, to int) Direction {
	switch {
	case to > from:
		return DIR_Up
	case to < from:
		return DIR_Down
	default:
		return DIR_Idle
	}
}

// Sign is the floor increment for one step in direction d.
func (d Direction) Sign() int {
	return int(d)
}

func (d Direction) String() string {
	switch d {
	case DIR_Up:
		return "Up"
	case DIR_Down:
		return "Down"
	default:
		return "Idle"
	}
}

type Motion uint8

const (
	MO_Idle      Motion = 0
	MO_Traveling Motion = 1
)

func (m Motion) String() string {
	if m == MO_Traveling {
		return "Traveling"
	}
	return "Idle"
}

// DoorState is the logical door state used for admission control.
type DoorState uint8

const (
	DS_Closed DoorState = 0
	DS_Open   DoorState = 1
)

func (s DoorState) String() string {
	if s == DS_Open {
		return "Open"
	}
	return "Closed"
}

// DoorAction is a visual door event for the car and the landing doors at one floor.
type DoorAction uint8

const (
	DA_Opening DoorAction = iota
	DA_Opened
	DA_Closing
	DA_Closed
)

func (a DoorAction) String() string {
	switch a {
	case DA_Opening:
		return "Opening"
	case DA_Opened:
		return "Opened"
	case DA_Closing:
		return "Closing"
	default:
		return "Closed"
	}
}

type ElevatorState interface {
	GetID() string
	GetFloor() int
	GetDirection() Direction
	GetMotion() Motion
	GetDoorState() DoorState
	// GetSelectedFloor returns the highlighted destination and false if none is set.
	GetSelectedFloor() (int, bool)
	GetFloorCount() int
}
