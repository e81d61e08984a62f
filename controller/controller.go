package controller

import (
	"fmt"
	"time"

	"elevatorsim/simtime"
	"elevatorsim/types"

	"github.com/golang/glog"
)

// Controller is the motion-and-door state machine for one car.
// All methods and scheduled callbacks must run on the scheduler's goroutine.
type Controller struct {
	cfg       Config
	sched     simtime.Scheduler
	listeners []Listener

	state  carState
	phase  phase
	target int

	dwellTimer simtime.Timer
	dwellGen   uint64
	doorGen    uint64
}

// New creates a car parked at floor 0 with its doors open.
func New(cfg Config, sched simtime.Scheduler) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if sched == nil {
		return nil, fmt.Errorf("%w: nil scheduler", ErrInvalidConfig)
	}

	return &Controller{
		cfg:   cfg,
		sched: sched,
		state: carState{
			currentFloor:  0,
			direction:     types.DIR_Idle,
			motion:        types.MO_Idle,
			doorState:     types.DS_Open,
			selectedFloor: -1,
		},
		phase: PH_Idle,
	}, nil
}

func (c *Controller) Subscribe(l Listener) {
	c.listeners = append(c.listeners, l)
}

// Start publishes the initial state and arms the dwell timer for the open doors.
func (c *Controller) Start() {
	glog.Infof("Car %q starting at floor %d, %d floors, %v per floor",
		c.cfg.ID, c.state.currentFloor, c.cfg.FloorCount, c.cfg.SpeedPerFloor)

	c.state.selectedFloor = c.state.currentFloor
	c.state.hasSelection = true
	c.emitState()

	if c.state.doorState == types.DS_Open {
		c.armDwellTimer()
	}
}

// RequestFloor highlights target immediately and starts a travel sequence
// if the car is free. Requests during a travel sequence are dropped.
func (c *Controller) RequestFloor(target int) error {
	if target < 0 || target >= c.cfg.FloorCount {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrInvalidFloor, target, c.cfg.FloorCount)
	}

	c.state.selectedFloor = target
	c.state.hasSelection = true
	c.emitState()

	if c.busy() {
		glog.V(1).Infof("Request for floor %d dropped, car is %v", target, c.phase)
		return nil
	}

	if target == c.state.currentFloor {
		glog.V(1).Infof("Request for current floor %d, reopening doors", target)
		c.arrive()
		return nil
	}

	c.startTravel(target)
	return nil
}

// ManualOpen opens the doors, or restarts the dwell timer if they are open.
func (c *Controller) ManualOpen() bool {
	if c.busy() {
		glog.V(1).Infof("Open button ignored, car is %v", c.phase)
		return false
	}
	c.openDoors()
	return true
}

// ManualClose closes the doors. Closing closed doors is a no-op.
func (c *Controller) ManualClose() bool {
	if c.busy() {
		glog.V(1).Infof("Close button ignored, car is %v", c.phase)
		return false
	}
	c.closeDoors(nil)
	return true
}

func (c *Controller) busy() bool {
	return c.phase != PH_Idle
}

func (c *Controller) startTravel(target int) {
	c.phase = PH_ClosingDoors
	c.target = target
	c.state.direction = types.DirectionTowards(c.state.currentFloor, target)
	c.emitState()

	c.closeDoors(c.beginMotion)
}

func (c *Controller) beginMotion() {
	steps := abs(c.target - c.state.currentFloor)
	if steps == 0 {
		c.phase = PH_Idle
		c.arrive()
		return
	}

	c.phase = PH_Moving
	c.state.motion = types.MO_Traveling
	glog.Infof("Car %q traveling %v from %d to %d, %v",
		c.cfg.ID, c.state.direction, c.state.currentFloor, c.target,
		time.Duration(steps)*c.cfg.SpeedPerFloor)
	c.emitState()

	c.sched.After(c.cfg.SpeedPerFloor, c.stepFloor)
}

// stepFloor advances the car by one floor.
func (c *Controller) stepFloor() {
	c.state.currentFloor += c.state.direction.Sign()
	c.emitFloorArrived(c.state.currentFloor)
	c.emitState()

	if c.state.currentFloor != c.target {
		c.sched.After(c.cfg.SpeedPerFloor, c.stepFloor)
		return
	}

	glog.Infof("Car %q arrived at floor %d", c.cfg.ID, c.state.currentFloor)
	c.phase = PH_Idle
	c.state.motion = types.MO_Idle
	c.state.direction = types.DIR_Idle
	c.state.selectedFloor = c.state.currentFloor
	c.emitState()

	c.openDoors()
}

// arrive is the arrival tail for requests that need no movement.
func (c *Controller) arrive() {
	c.state.direction = types.DIR_Idle
	c.emitState()
	c.openDoors()
}

// closeDoors flips the doors to closed at once and calls then after the
// visual transition. then runs immediately if the doors are already closed.
func (c *Controller) closeDoors(then func()) {
	c.cancelDwellTimer()

	if c.state.doorState == types.DS_Closed {
		c.emitState()
		if then != nil {
			then()
		}
		return
	}

	floor := c.state.currentFloor
	c.doorGen++
	gen := c.doorGen

	glog.V(1).Infof("Closing doors at floor %d", floor)
	c.emitDoorVisual(floor, types.DA_Closing)
	c.state.doorState = types.DS_Closed
	c.emitState()

	c.sched.After(c.cfg.DoorTransition, func() {
		if gen == c.doorGen {
			c.emitDoorVisual(floor, types.DA_Closed)
		}
		if then != nil {
			then()
		}
	})
}

func (c *Controller) openDoors() {
	if c.state.doorState == types.DS_Open {
		c.armDwellTimer()
		c.emitState()
		return
	}

	floor := c.state.currentFloor
	c.doorGen++
	gen := c.doorGen

	glog.V(1).Infof("Opening doors at floor %d", floor)
	c.emitDoorVisual(floor, types.DA_Opening)
	c.state.doorState = types.DS_Open
	c.emitState()

	c.sched.After(c.cfg.DoorTransition, func() {
		// superseded by a later door operation
		if gen != c.doorGen {
			return
		}
		c.emitDoorVisual(floor, types.DA_Opened)
		c.armDwellTimer()
	})
}

func (c *Controller) armDwellTimer() {
	c.cancelDwellTimer()
	gen := c.dwellGen

	c.dwellTimer = c.sched.After(c.cfg.DoorDwell, func() {
		if gen != c.dwellGen {
			return
		}
		c.dwellTimer = nil

		if c.state.motion == types.MO_Traveling || c.busy() {
			glog.Warningf("Dwell timer fired while car is %v, ignoring", c.phase)
			return
		}
		glog.V(1).Infof("Dwell elapsed at floor %d", c.state.currentFloor)
		c.closeDoors(nil)
	})
}

// cancelDwellTimer also invalidates a callback that already left the timer.
func (c *Controller) cancelDwellTimer() {
	c.dwellGen++
	if c.dwellTimer != nil {
		c.dwellTimer.Stop()
		c.dwellTimer = nil
	}
}

func (c *Controller) emitState() {
	if len(c.listeners) == 0 {
		return
	}
	s := c.Snapshot()
	for _, l := range c.listeners {
		l.OnStateChange(copySnapshot(s))
	}
}

func (c *Controller) emitFloorArrived(floor int) {
	for _, l := range c.listeners {
		l.OnFloorArrived(floor)
	}
}

func (c *Controller) emitDoorVisual(floor int, action types.DoorAction) {
	for _, l := range c.listeners {
		l.OnDoorVisual(floor, action)
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
