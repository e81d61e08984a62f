package statesync

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"elevatorsim/types"
)

const (
	maxIDLen     = 32
	noSelection  = 0xFF
	maxFrameSize = 1 + maxIDLen + 4 + 6
)

var (
	ErrShortFrame = errors.New("short state frame")
	ErrFrameRange = errors.New("state value out of frame range")
)

type carState struct {
	id         string
	nonce      uint32
	floorCount int
	floor      int
	direction  types.Direction
	motion     types.Motion
	door       types.DoorState
	selected   int
	lastSync   time.Time
}

// checkRange reports whether s fits the frame fields and describes a valid car.
func checkRange(s *carState) error {
	if len(s.id) > maxIDLen {
		return fmt.Errorf("%w: id %q longer than %d bytes", ErrFrameRange, s.id, maxIDLen)
	}
	if s.floorCount < 1 || s.floorCount >= noSelection || s.floor < 0 || s.floor >= s.floorCount {
		return fmt.Errorf("%w: floor %d of %d", ErrFrameRange, s.floor, s.floorCount)
	}
	if s.selected >= s.floorCount {
		return fmt.Errorf("%w: selected floor %d of %d", ErrFrameRange, s.selected, s.floorCount)
	}
	if s.direction < types.DIR_Down || s.direction > types.DIR_Up {
		return fmt.Errorf("%w: direction %d", ErrFrameRange, s.direction)
	}
	if s.motion > types.MO_Traveling || s.door > types.DS_Open {
		return fmt.Errorf("%w: motion %d, door %d", ErrFrameRange, s.motion, s.door)
	}
	return nil
}

// serialize encodes a carState into a frame:
// idLen | id | nonce (LE u32) | floorCount | floor | direction | motion | door | selected
func serialize(s carState) ([]byte, error) {
	if err := checkRange(&s); err != nil {
		return nil, err
	}

	selected := byte(noSelection)
	if s.selected >= 0 {
		selected = byte(s.selected)
	}

	buf := make([]byte, 0, maxFrameSize)
	buf = append(buf, uint8(len(s.id)))
	buf = append(buf, s.id...)
	buf = binary.LittleEndian.AppendUint32(buf, s.nonce)
	buf = append(buf, uint8(s.floorCount))
	buf = append(buf, uint8(s.floor))
	buf = append(buf, byte(s.direction))
	buf = append(buf, byte(s.motion))
	buf = append(buf, byte(s.door))
	buf = append(buf, selected)

	return buf, nil
}

// deserialize decodes a frame produced by serialize. Frames describing an
// impossible car are rejected with ErrFrameRange.
func deserialize(m []byte) (*carState, error) {
	if len(m) < 1 {
		return nil, ErrShortFrame
	}
	idLen := int(m[0])
	if idLen > maxIDLen || len(m) < 1+idLen+4+6 {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(m))
	}

	offset := 1 + idLen
	state := &carState{
		id:         string(m[1:offset]),
		nonce:      binary.LittleEndian.Uint32(m[offset : offset+4]),
		floorCount: int(m[offset+4]),
		floor:      int(m[offset+5]),
		direction:  types.Direction(int8(m[offset+6])),
		motion:     types.Motion(m[offset+7]),
		door:       types.DoorState(m[offset+8]),
		selected:   -1,
	}
	if sel := m[offset+9]; sel != noSelection {
		state.selected = int(sel)
	}
	if err := checkRange(state); err != nil {
		return nil, err
	}

	return state, nil
}

func (e *carState) GetID() string {
	return e.id
}

func (e *carState) GetFloor() int {
	return e.floor
}

func (e *carState) GetDirection() types.Direction {
	return e.direction
}

func (e *carState) GetMotion() types.Motion {
	return e.motion
}

func (e *carState) GetDoorState() types.DoorState {
	return e.door
}

func (e *carState) GetSelectedFloor() (int, bool) {
	return e.selected, e.selected >= 0
}

// GetFloorCount returns the number of floors of the remote car.
func (e *carState) GetFloorCount() int {
	return e.floorCount
}
