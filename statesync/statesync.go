package statesync

import (
	"context"
	"errors"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"elevatorsim/controller"
	"elevatorsim/simtime"
	"elevatorsim/types"

	"github.com/golang/glog"
)

const (
	DefaultSyncTimeout = 3 * time.Second
	// DefaultInterval is how often a publisher repeats the last state.
	DefaultInterval = 100 * time.Millisecond
)

// Publisher sends every state change of a car to a UDP address and repeats
// the last state on a heartbeat so idle cars stay alive on the feed.
// All methods except Close run on the controller's scheduler goroutine.
type Publisher struct {
	conn       net.Conn
	id         string
	floorCount int
	nonce      uint32
	last       *carState
}

var _ controller.Listener = (*Publisher)(nil)

// NewPublisher dials addr, normally the broadcast address of the feed.
func NewPublisher(addr string, id string, floorCount int) (*Publisher, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, err
	}
	return newPublisher(conn, id, floorCount), nil
}

func newPublisher(conn net.Conn, id string, floorCount int) *Publisher {
	return &Publisher{conn: conn, id: id, floorCount: floorCount}
}

func (p *Publisher) OnStateChange(s controller.Snapshot) {
	p.last = &carState{
		id:         p.id,
		floorCount: p.floorCount,
		floor:      s.CurrentFloor,
		direction:  s.Direction,
		motion:     s.Motion,
		door:       s.DoorState,
		selected:   s.SelectedFloor,
	}
	p.send()
}

// Heartbeat re-sends the last state every interval on sched until the
// returned stop function is called.
func (p *Publisher) Heartbeat(sched simtime.Scheduler, interval time.Duration) (stop func()) {
	var stopped atomic.Bool

	var tick func()
	tick = func() {
		if stopped.Load() {
			return
		}
		if p.last != nil {
			p.send()
		}
		sched.After(interval, tick)
	}
	sched.After(interval, tick)

	return func() { stopped.Store(true) }
}

func (p *Publisher) send() {
	p.last.nonce = p.nonce
	frame, err := serialize(*p.last)
	if err != nil {
		glog.Errorf("Encoding state of %q: %v", p.id, err)
		return
	}
	p.nonce++

	if _, err := p.conn.Write(frame); err != nil {
		glog.V(1).Infof("State broadcast failed: %v", err)
	}
}

func (p *Publisher) OnFloorArrived(floor int) {}

func (p *Publisher) OnDoorVisual(floor int, action types.DoorAction) {}

func (p *Publisher) Close() error {
	return p.conn.Close()
}

// Registry keeps the latest state per car, ordered by nonce.
type Registry struct {
	mtx     sync.RWMutex
	states  map[string]*carState
	timeout time.Duration
	now     func() time.Time
}

func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{
		states:  make(map[string]*carState),
		timeout: timeout,
		now:     time.Now,
	}
}

// update stores s unless a newer frame from the same car is live.
// A car that went silent past the timeout may restart its nonce.
func (r *Registry) update(s *carState) bool {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	s.lastSync = r.now()
	old, exists := r.states[s.id]
	if exists && old.nonce >= s.nonce && s.lastSync.Sub(old.lastSync) <= r.timeout {
		return false
	}
	r.states[s.id] = s
	return true
}

// Get returns the stored state of the given car.
func (r *Registry) Get(id string) (types.ElevatorState, bool) {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	s, ok := r.states[id]
	if !ok {
		return nil, false
	}
	return s, true
}

// AliveIDs returns the cars heard from within the timeout, sorted.
func (r *Registry) AliveIDs() []string {
	r.mtx.RLock()
	defer r.mtx.RUnlock()

	alive := make([]string, 0, len(r.states))
	for id, s := range r.states {
		if r.now().Sub(s.lastSync) <= r.timeout {
			alive = append(alive, id)
		}
	}
	sort.Strings(alive)
	return alive
}

// ListenUDP opens the receiving side of the feed on addr, e.g. ":15001".
func ListenUDP(addr string) (*net.UDPConn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	return net.ListenUDP("udp", udpAddr)
}

// Receive decodes frames from conn into r and calls onUpdate for every
// accepted frame. It closes conn and returns when ctx is done.
func Receive(ctx context.Context, conn net.PacketConn, r *Registry, onUpdate func(types.ElevatorState)) error {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 1024)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			glog.Warningf("Reading state frame: %v", err)
			continue
		}

		state, err := deserialize(buf[:n])
		if err != nil {
			glog.V(1).Infof("Dropping state frame: %v", err)
			continue
		}
		if r.update(state) && onUpdate != nil {
			onUpdate(state)
		}
	}
}
