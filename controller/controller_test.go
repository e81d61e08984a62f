package controller

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"elevatorsim/simtime"
	"elevatorsim/types"
)

const (
	testSpeed      = 900 * time.Millisecond
	testTransition = 400 * time.Millisecond
	testDwell      = 5000 * time.Millisecond
)

type doorEvent struct {
	floor  int
	action types.DoorAction
}

type floorTick struct {
	floor int
	at    time.Duration
}

// recorder collects every callback and checks the travel invariant on each snapshot.
type recorder struct {
	t      *testing.T
	clock  *simtime.Virtual
	states []Snapshot
	floors []floorTick
	doors  []doorEvent
}

func (r *recorder) OnStateChange(s Snapshot) {
	if s.Motion == types.MO_Traveling && s.DoorState != types.DS_Closed {
		r.t.Errorf("Car traveling with doors %v: %+v", s.DoorState, s)
	}
	r.states = append(r.states, s)
}

func (r *recorder) OnFloorArrived(floor int) {
	r.floors = append(r.floors, floorTick{floor: floor, at: r.clock.Now()})
}

func (r *recorder) OnDoorVisual(floor int, action types.DoorAction) {
	r.doors = append(r.doors, doorEvent{floor: floor, action: action})
}

func (r *recorder) last() Snapshot {
	if len(r.states) == 0 {
		r.t.Fatalf("No state change recorded")
	}
	return r.states[len(r.states)-1]
}

func (r *recorder) countDoors(action types.DoorAction) int {
	n := 0
	for _, d := range r.doors {
		if d.action == action {
			n++
		}
	}
	return n
}

func (r *recorder) arrivedFloors() []int {
	floors := make([]int, 0, len(r.floors))
	for _, tick := range r.floors {
		floors = append(floors, tick.floor)
	}
	return floors
}

func testConfig() Config {
	return Config{
		ID:             "test",
		FloorCount:     6,
		SpeedPerFloor:  testSpeed,
		DoorTransition: testTransition,
		DoorDwell:      testDwell,
	}
}

func newTestController(t *testing.T, cfg Config) (*Controller, *simtime.Virtual, *recorder) {
	t.Helper()
	clock := simtime.NewVirtual()
	ctrl, err := New(cfg, clock)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	rec := &recorder{t: t, clock: clock}
	ctrl.Subscribe(rec)
	ctrl.Start()
	return ctrl, clock, rec
}

// parkAt moves the car to floor with settled, open doors and a fresh recorder.
func parkAt(t *testing.T, ctrl *Controller, clock *simtime.Virtual, rec *recorder, floor int) {
	t.Helper()
	if err := ctrl.RequestFloor(floor); err != nil {
		t.Fatalf("RequestFloor(%d) returned error: %v", floor, err)
	}
	clock.Advance(testTransition + time.Duration(floor)*testSpeed + testTransition)
	if ctrl.GetFloor() != floor || ctrl.GetDoorState() != types.DS_Open {
		t.Fatalf("Car not parked at floor %d with open doors: %+v", floor, ctrl.Snapshot())
	}
	rec.states, rec.floors, rec.doors = nil, nil, nil
}

func TestNew_InvalidConfig(t *testing.T) {
	mutations := []func(c *Config){
		func(c *Config) { c.FloorCount = 0 },
		func(c *Config) { c.SpeedPerFloor = 0 },
		func(c *Config) { c.DoorTransition = -time.Millisecond },
		func(c *Config) { c.DoorDwell = -time.Millisecond },
	}

	for i, mutate := range mutations {
		cfg := testConfig()
		mutate(&cfg)
		if _, err := New(cfg, simtime.NewVirtual()); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("Case %d: expected ErrInvalidConfig, was %v", i, err)
		}
	}

	if _, err := New(testConfig(), nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for nil scheduler, was %v", err)
	}
}

func TestStart_InitialState(t *testing.T) {
	ctrl, clock, rec := newTestController(t, testConfig())

	expected := Snapshot{
		ID:            "test",
		CurrentFloor:  0,
		Direction:     types.DIR_Idle,
		Motion:        types.MO_Idle,
		DoorState:     types.DS_Open,
		SelectedFloor: 0,
		Buttons: Buttons{
			FloorDisabled: []bool{true, false, false, false, false, false},
			OpenDisabled:  true,
			CloseDisabled: false,
			ActiveFloor:   0,
		},
	}
	if !reflect.DeepEqual(rec.last(), expected) {
		t.Errorf("Initial snapshot not as expected.\nExpected: %+v\nWas: %+v", expected, rec.last())
	}
	if clock.Pending() != 1 {
		t.Errorf("Expected dwell timer armed after Start, pending timers: %d", clock.Pending())
	}
	if !reflect.DeepEqual(ctrl.Snapshot(), expected) {
		t.Errorf("Snapshot() differs from emitted state.\nExpected: %+v\nWas: %+v", expected, ctrl.Snapshot())
	}
}

func TestRequestFloor_SelectsSynchronously(t *testing.T) {
	for target := range 6 {
		ctrl, clock, rec := newTestController(t, testConfig())

		if err := ctrl.RequestFloor(target); err != nil {
			t.Fatalf("RequestFloor(%d) returned error: %v", target, err)
		}
		if clock.Now() != 0 {
			t.Fatalf("Virtual clock moved during RequestFloor")
		}

		selected, ok := ctrl.GetSelectedFloor()
		if !ok || selected != target {
			t.Errorf("Expected selected floor %d, was %d (set: %v)", target, selected, ok)
		}
		if rec.last().SelectedFloor != target || rec.last().Buttons.ActiveFloor != target {
			t.Errorf("Emitted snapshot does not highlight %d: %+v", target, rec.last())
		}
	}
}

func TestRequestFloor_InvalidFloor(t *testing.T) {
	ctrl, _, rec := newTestController(t, testConfig())
	emitted := len(rec.states)

	for _, target := range []int{-1, 6, 100} {
		if err := ctrl.RequestFloor(target); !errors.Is(err, ErrInvalidFloor) {
			t.Errorf("RequestFloor(%d): expected ErrInvalidFloor, was %v", target, err)
		}
	}

	if selected, _ := ctrl.GetSelectedFloor(); selected != 0 {
		t.Errorf("Invalid request changed selected floor to %d", selected)
	}
	if len(rec.states) != emitted {
		t.Errorf("Invalid request emitted %d state changes", len(rec.states)-emitted)
	}
}

func TestRequestFloor_TravelTiming(t *testing.T) {
	ctrl, clock, rec := newTestController(t, testConfig())

	if err := ctrl.RequestFloor(3); err != nil {
		t.Fatalf("RequestFloor(3) returned error: %v", err)
	}

	// doors flip closed immediately, the car waits for the visual close
	if ctrl.GetDoorState() != types.DS_Closed {
		t.Errorf("Expected doors closed immediately, was %v", ctrl.GetDoorState())
	}
	if ctrl.GetDirection() != types.DIR_Up {
		t.Errorf("Expected direction Up, was %v", ctrl.GetDirection())
	}
	if ctrl.GetMotion() != types.MO_Idle {
		t.Errorf("Expected car idle while doors close, was %v", ctrl.GetMotion())
	}
	expectedDoors := []doorEvent{{0, types.DA_Closing}}
	if !reflect.DeepEqual(rec.doors, expectedDoors) {
		t.Errorf("Door events not as expected.\nExpected: %+v\nWas: %+v", expectedDoors, rec.doors)
	}

	clock.Advance(testTransition)
	if ctrl.GetMotion() != types.MO_Traveling {
		t.Fatalf("Expected car traveling after doors closed, was %v", ctrl.GetMotion())
	}

	clock.Advance(testSpeed - time.Millisecond)
	if ctrl.GetFloor() != 0 {
		t.Errorf("Car left floor 0 early, at floor %d", ctrl.GetFloor())
	}
	clock.Advance(time.Millisecond)
	if ctrl.GetFloor() != 1 {
		t.Errorf("Expected floor 1 after one tick, was %d", ctrl.GetFloor())
	}

	clock.Advance(2 * testSpeed)
	expectedTicks := []floorTick{
		{1, testTransition + testSpeed},
		{2, testTransition + 2*testSpeed},
		{3, testTransition + 3*testSpeed},
	}
	if !reflect.DeepEqual(rec.floors, expectedTicks) {
		t.Errorf("Floor ticks not as expected.\nExpected: %+v\nWas: %+v", expectedTicks, rec.floors)
	}
	if ctrl.GetFloor() != 3 || ctrl.GetMotion() != types.MO_Idle || ctrl.GetDirection() != types.DIR_Idle {
		t.Errorf("Car not idle at floor 3: %+v", ctrl.Snapshot())
	}
	expectedDoors = []doorEvent{
		{0, types.DA_Closing},
		{0, types.DA_Closed},
		{3, types.DA_Opening},
	}
	if !reflect.DeepEqual(rec.doors, expectedDoors) {
		t.Errorf("Door events not as expected.\nExpected: %+v\nWas: %+v", expectedDoors, rec.doors)
	}

	clock.Advance(testTransition)
	if rec.doors[len(rec.doors)-1] != (doorEvent{3, types.DA_Opened}) {
		t.Errorf("Expected doors settled open at floor 3, events: %+v", rec.doors)
	}
}

func TestRequestFloor_MonotonicTicksDown(t *testing.T) {
	ctrl, clock, rec := newTestController(t, testConfig())
	parkAt(t, ctrl, clock, rec, 5)

	if err := ctrl.RequestFloor(1); err != nil {
		t.Fatalf("RequestFloor(1) returned error: %v", err)
	}
	start := clock.Now()
	clock.Advance(testTransition + 4*testSpeed)

	expected := []int{4, 3, 2, 1}
	if !reflect.DeepEqual(rec.arrivedFloors(), expected) {
		t.Errorf("Floor ticks not as expected.\nExpected: %+v\nWas: %+v", expected, rec.arrivedFloors())
	}
	for i, tick := range rec.floors {
		want := start + testTransition + time.Duration(i+1)*testSpeed
		if tick.at != want {
			t.Errorf("Tick %d at %v, expected %v", i, tick.at, want)
		}
	}
}

func TestRequestFloor_DroppedWhileTraveling(t *testing.T) {
	ctrl, clock, rec := newTestController(t, testConfig())

	ctrl.RequestFloor(3)
	clock.Advance(testTransition + testSpeed)

	if err := ctrl.RequestFloor(5); err != nil {
		t.Fatalf("RequestFloor(5) returned error: %v", err)
	}
	if selected, _ := ctrl.GetSelectedFloor(); selected != 5 {
		t.Errorf("Expected highlight on floor 5, was %d", selected)
	}
	if ctrl.GetFloor() != 1 || ctrl.GetDirection() != types.DIR_Up {
		t.Errorf("Dropped request altered travel: %+v", ctrl.Snapshot())
	}

	clock.Advance(10 * testSpeed)

	expected := []int{1, 2, 3}
	if !reflect.DeepEqual(rec.arrivedFloors(), expected) {
		t.Errorf("Second travel sequence started.\nExpected: %+v\nWas: %+v", expected, rec.arrivedFloors())
	}
	if selected, _ := ctrl.GetSelectedFloor(); selected != 3 {
		t.Errorf("Expected highlight pinned to arrival floor 3, was %d", selected)
	}
}

func TestRequestFloor_DroppedWhileDoorsClose(t *testing.T) {
	ctrl, clock, rec := newTestController(t, testConfig())

	ctrl.RequestFloor(2)
	ctrl.RequestFloor(4)
	ctrl.RequestFloor(0)
	if ctrl.ManualOpen() {
		t.Errorf("Open button accepted while doors close for departure")
	}
	clock.Advance(testTransition + 2*testSpeed)

	expected := []int{1, 2}
	if !reflect.DeepEqual(rec.arrivedFloors(), expected) {
		t.Errorf("Floor ticks not as expected.\nExpected: %+v\nWas: %+v", expected, rec.arrivedFloors())
	}
}

func TestRequestFloor_CurrentFloorOpensClosedDoors(t *testing.T) {
	ctrl, clock, rec := newTestController(t, testConfig())
	ctrl.ManualClose()
	clock.Advance(testTransition)
	rec.doors = nil

	ctrl.RequestFloor(0)

	if ctrl.GetDoorState() != types.DS_Open {
		t.Errorf("Expected doors open, was %v", ctrl.GetDoorState())
	}
	expected := []doorEvent{{0, types.DA_Opening}}
	if !reflect.DeepEqual(rec.doors, expected) {
		t.Errorf("Door events not as expected.\nExpected: %+v\nWas: %+v", expected, rec.doors)
	}
	if len(rec.floors) != 0 {
		t.Errorf("Same-floor request moved the car: %+v", rec.floors)
	}
}

func TestRequestFloor_CurrentFloorResetsDwell(t *testing.T) {
	ctrl, clock, rec := newTestController(t, testConfig())

	clock.Advance(4 * time.Second)
	ctrl.RequestFloor(0)
	clock.Advance(4 * time.Second)

	if ctrl.GetDoorState() != types.DS_Open {
		t.Errorf("Doors closed before the restarted dwell elapsed")
	}
	if rec.countDoors(types.DA_Opening) != 0 {
		t.Errorf("Open animation replayed for open doors: %+v", rec.doors)
	}

	clock.Advance(time.Second)
	if ctrl.GetDoorState() != types.DS_Closed {
		t.Errorf("Expected doors auto-closed after restarted dwell, was %v", ctrl.GetDoorState())
	}
}

func TestManualOpen_TwiceRestartsDwellOnly(t *testing.T) {
	ctrl, clock, rec := newTestController(t, testConfig())
	ctrl.ManualClose()
	clock.Advance(testTransition)

	if !ctrl.ManualOpen() {
		t.Fatalf("ManualOpen() rejected while idle")
	}
	clock.Advance(testTransition + 3*time.Second)
	if !ctrl.ManualOpen() {
		t.Fatalf("Second ManualOpen() rejected")
	}

	if n := rec.countDoors(types.DA_Opening); n != 1 {
		t.Errorf("Expected one opening animation, was %d", n)
	}

	clock.Advance(testDwell - time.Millisecond)
	if ctrl.GetDoorState() != types.DS_Open {
		t.Errorf("Doors closed before restarted dwell elapsed")
	}
	clock.Advance(time.Millisecond)
	if ctrl.GetDoorState() != types.DS_Closed {
		t.Errorf("Doors did not auto-close after restarted dwell")
	}
}

func TestAutoClose_AfterDwell(t *testing.T) {
	ctrl, clock, rec := newTestController(t, testConfig())
	parkAt(t, ctrl, clock, rec, 2)

	clock.Advance(testDwell)
	if ctrl.GetDoorState() != types.DS_Closed {
		t.Fatalf("Expected doors closed after dwell, was %v", ctrl.GetDoorState())
	}
	clock.Advance(testTransition)

	expected := []doorEvent{{2, types.DA_Closing}, {2, types.DA_Closed}}
	if !reflect.DeepEqual(rec.doors, expected) {
		t.Errorf("Door events not as expected.\nExpected: %+v\nWas: %+v", expected, rec.doors)
	}
	if clock.Pending() != 0 {
		t.Errorf("Expected no armed timers, pending: %d", clock.Pending())
	}
}

func TestManualClose_CancelsDwell(t *testing.T) {
	ctrl, clock, rec := newTestController(t, testConfig())

	clock.Advance(2 * time.Second)
	if !ctrl.ManualClose() {
		t.Fatalf("ManualClose() rejected while idle")
	}
	clock.Advance(3 * testDwell)

	if n := rec.countDoors(types.DA_Closing); n != 1 {
		t.Errorf("Expected a single close, was %d: %+v", n, rec.doors)
	}
	if clock.Pending() != 0 {
		t.Errorf("Stray timers left armed: %d", clock.Pending())
	}
}

func TestManualClose_Idempotent(t *testing.T) {
	ctrl, clock, rec := newTestController(t, testConfig())
	ctrl.ManualClose()
	clock.Advance(testTransition)

	before := ctrl.Snapshot()
	doors := len(rec.doors)

	if !ctrl.ManualClose() {
		t.Fatalf("ManualClose() rejected while idle")
	}

	if !reflect.DeepEqual(ctrl.Snapshot(), before) {
		t.Errorf("Closing closed doors mutated state.\nExpected: %+v\nWas: %+v", before, ctrl.Snapshot())
	}
	if len(rec.doors) != doors {
		t.Errorf("Closing closed doors emitted door events: %+v", rec.doors[doors:])
	}
	if !reflect.DeepEqual(rec.last(), before) {
		t.Errorf("Expected a refresh of the unchanged state, was %+v", rec.last())
	}
}

func TestManualButtons_RejectedWhileTraveling(t *testing.T) {
	ctrl, clock, _ := newTestController(t, testConfig())
	ctrl.RequestFloor(4)
	clock.Advance(testTransition + testSpeed)

	if ctrl.ManualOpen() {
		t.Errorf("ManualOpen() accepted while traveling")
	}
	if ctrl.ManualClose() {
		t.Errorf("ManualClose() accepted while traveling")
	}
	if ctrl.GetDoorState() != types.DS_Closed {
		t.Errorf("Doors changed while traveling: %v", ctrl.GetDoorState())
	}
}

func TestButtons_DuringTravelAndAtRest(t *testing.T) {
	ctrl, clock, _ := newTestController(t, testConfig())
	ctrl.RequestFloor(2)
	clock.Advance(testTransition + testSpeed)

	expected := Buttons{
		FloorDisabled: []bool{true, true, true, true, true, true},
		OpenDisabled:  true,
		CloseDisabled: true,
		ActiveFloor:   2,
	}
	if !reflect.DeepEqual(ctrl.Snapshot().Buttons, expected) {
		t.Errorf("Buttons while traveling not as expected.\nExpected: %+v\nWas: %+v", expected, ctrl.Snapshot().Buttons)
	}

	clock.Advance(testSpeed + testTransition)
	expected = Buttons{
		FloorDisabled: []bool{false, false, true, false, false, false},
		OpenDisabled:  true,
		CloseDisabled: false,
		ActiveFloor:   2,
	}
	if !reflect.DeepEqual(ctrl.Snapshot().Buttons, expected) {
		t.Errorf("Buttons at rest not as expected.\nExpected: %+v\nWas: %+v", expected, ctrl.Snapshot().Buttons)
	}
}

func TestButtons_LockedWhileDoorsCloseForDeparture(t *testing.T) {
	ctrl, clock, _ := newTestController(t, testConfig())
	ctrl.RequestFloor(3)

	s := ctrl.Snapshot()
	if s.Motion != types.MO_Idle || s.DoorState != types.DS_Closed || s.Direction != types.DIR_Up {
		t.Fatalf("Expected departure door close, was %+v", s)
	}
	expected := Buttons{
		FloorDisabled: []bool{true, true, true, true, true, true},
		OpenDisabled:  true,
		CloseDisabled: true,
		ActiveFloor:   3,
	}
	if !reflect.DeepEqual(s.Buttons, expected) {
		t.Errorf("Buttons while doors close not as expected.\nExpected: %+v\nWas: %+v", expected, s.Buttons)
	}

	clock.Advance(testTransition)
	if ctrl.GetMotion() != types.MO_Traveling {
		t.Errorf("Expected travel after doors closed, was %v", ctrl.GetMotion())
	}
	if !reflect.DeepEqual(ctrl.Snapshot().Buttons, expected) {
		t.Errorf("Buttons once traveling not as expected.\nExpected: %+v\nWas: %+v", expected, ctrl.Snapshot().Buttons)
	}
}

func TestRequestFloor_DuringArrivalOpening(t *testing.T) {
	ctrl, clock, rec := newTestController(t, testConfig())
	ctrl.RequestFloor(2)
	clock.Advance(testTransition + 2*testSpeed)
	rec.doors = nil

	// doors are still opening at floor 2
	ctrl.RequestFloor(0)
	clock.Advance(testTransition + 2*testSpeed)

	expected := []doorEvent{
		{2, types.DA_Closing},
		{2, types.DA_Closed},
		{0, types.DA_Opening},
	}
	if !reflect.DeepEqual(rec.doors, expected) {
		t.Errorf("Door events not as expected.\nExpected: %+v\nWas: %+v", expected, rec.doors)
	}
	if ctrl.GetFloor() != 0 {
		t.Errorf("Expected car back at floor 0, was %d", ctrl.GetFloor())
	}
}

func TestZeroDoorTransition(t *testing.T) {
	cfg := testConfig()
	cfg.DoorTransition = 0
	ctrl, clock, _ := newTestController(t, cfg)

	ctrl.RequestFloor(1)
	clock.Advance(0)
	if ctrl.GetMotion() != types.MO_Traveling {
		t.Fatalf("Expected travel to start without a door delay, was %v", ctrl.GetMotion())
	}
	clock.Advance(testSpeed)
	if ctrl.GetFloor() != 1 || ctrl.GetDoorState() != types.DS_Open {
		t.Errorf("Car not at floor 1 with open doors: %+v", ctrl.Snapshot())
	}
}

func TestListeners_ReceiveIndependentCopies(t *testing.T) {
	ctrl, _, _ := newTestController(t, testConfig())

	var first, second []Snapshot
	ctrl.Subscribe(ListenerFuncs{StateChange: func(s Snapshot) {
		s.Buttons.FloorDisabled[0] = false
		s.Buttons.FloorDisabled[5] = true
		first = append(first, s)
	}})
	ctrl.Subscribe(ListenerFuncs{StateChange: func(s Snapshot) {
		second = append(second, s)
	}})

	ctrl.RequestFloor(3)

	if len(first) == 0 || len(second) != len(first) {
		t.Fatalf("Listeners saw %d and %d snapshots", len(first), len(second))
	}
	got := second[0].Buttons.FloorDisabled
	if got[5] {
		t.Errorf("Mutation by one listener leaked to another: %+v", got)
	}
}
