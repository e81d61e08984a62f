package simtime

import (
	"sync"
	"time"
)

// Virtual is a manually advanced clock. Callbacks run on the goroutine
// calling Advance, in deadline order and FIFO for equal deadlines.
type Virtual struct {
	mtx    sync.Mutex
	now    time.Duration
	seq    uint64
	timers []*virtualTimer
}

type virtualTimer struct {
	v       *Virtual
	at      time.Duration
	seq     uint64
	fn      func()
	settled bool
}

func NewVirtual() *Virtual {
	return &Virtual{}
}

func (v *Virtual) After(d time.Duration, fn func()) Timer {
	if d < 0 {
		d = 0
	}

	v.mtx.Lock()
	defer v.mtx.Unlock()

	t := &virtualTimer{v: v, at: v.now + d, seq: v.seq, fn: fn}
	v.seq++
	v.timers = append(v.timers, t)
	return t
}

func (t *virtualTimer) Stop() bool {
	t.v.mtx.Lock()
	defer t.v.mtx.Unlock()

	if t.settled {
		return false
	}
	t.settled = true
	return true
}

// Now returns the virtual time elapsed since creation.
func (v *Virtual) Now() time.Duration {
	v.mtx.Lock()
	defer v.mtx.Unlock()
	return v.now
}

// Pending returns the number of armed timers.
func (v *Virtual) Pending() int {
	v.mtx.Lock()
	defer v.mtx.Unlock()

	n := 0
	for _, t := range v.timers {
		if !t.settled {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, firing every callback that falls
// due, including callbacks scheduled by earlier callbacks within the window.
func (v *Virtual) Advance(d time.Duration) {
	v.mtx.Lock()
	end := v.now + d
	v.mtx.Unlock()

	for {
		t := v.popDue(end)
		if t == nil {
			break
		}
		t.fn()
	}

	v.mtx.Lock()
	v.now = end
	v.mtx.Unlock()
}

func (v *Virtual) popDue(end time.Duration) *virtualTimer {
	v.mtx.Lock()
	defer v.mtx.Unlock()

	var next *virtualTimer
	live := v.timers[:0]
	for _, t := range v.timers {
		if t.settled {
			continue
		}
		live = append(live, t)
		if t.at > end {
			continue
		}
		if next == nil || t.at < next.at || (t.at == next.at && t.seq < next.seq) {
			next = t
		}
	}
	for i := len(live); i < len(v.timers); i++ {
		v.timers[i] = nil
	}
	v.timers = live

	if next != nil {
		next.settled = true
		v.now = next.at
	}
	return next
}
