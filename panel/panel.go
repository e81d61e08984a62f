// Package panel carries button presses from a remote panel to a simulator over UDP.
package panel

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
)

const (
	transmissionBatchSize = 10
	frameSize             = 7
)

var (
	ErrShortFrame     = errors.New("short panel frame")
	ErrUnknownCommand = errors.New("unknown panel command")
)

type CommandKind uint8

const (
	CMD_Floor CommandKind = 0
	CMD_Open  CommandKind = 1
	CMD_Close CommandKind = 2
)

type Command struct {
	Kind     CommandKind
	Floor    int
	SenderID uint8
	Nonce    uint32
}

// ParseCommand reads "open", "close" or a floor number.
func ParseCommand(s string) (Command, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open", "o":
		return Command{Kind: CMD_Open}, nil
	case "close", "c":
		return Command{Kind: CMD_Close}, nil
	}

	floor, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || floor < 0 || floor > 0xFF {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, s)
	}
	return Command{Kind: CMD_Floor, Floor: floor}, nil
}

// Target is the part of the controller a panel presses buttons on.
type Target interface {
	RequestFloor(target int) error
	ManualOpen() bool
	ManualClose() bool
}

// Apply presses the button described by cmd. A door button the car
// rejects is logged, not returned as an error.
func Apply(t Target, cmd Command) error {
	switch cmd.Kind {
	case CMD_Floor:
		return t.RequestFloor(cmd.Floor)
	case CMD_Open:
		if !t.ManualOpen() {
			glog.V(1).Infof("Remote open from sender %d rejected, car is traveling", cmd.SenderID)
		}
	case CMD_Close:
		if !t.ManualClose() {
			glog.V(1).Infof("Remote close from sender %d rejected, car is traveling", cmd.SenderID)
		}
	default:
		return fmt.Errorf("%w: kind %d", ErrUnknownCommand, cmd.Kind)
	}
	return nil
}

// Sender transmits commands under one sender ID.
type Sender struct {
	conn  net.Conn
	id    uint8
	nonce uint32
}

// Dial opens a sender towards addr, normally the broadcast address and panel port.
// The nonce starts from the wall clock so a restarted sender is not deduplicated.
func Dial(addr string, senderID uint8) (*Sender, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, err
	}
	return &Sender{
		conn:  conn,
		id:    senderID,
		nonce: uint32(time.Now().UnixMilli()),
	}, nil
}

// Send writes cmd several times to ride out packet loss; receivers keep one copy.
func (s *Sender) Send(cmd Command) error {
	cmd.SenderID = s.id
	cmd.Nonce = s.nonce
	s.nonce++

	frame, err := serialize(cmd)
	if err != nil {
		return err
	}

	var lastErr error
	sent := 0
	for range transmissionBatchSize {
		if _, err := s.conn.Write(frame); err != nil {
			lastErr = err
			continue
		}
		sent++
	}
	if sent == 0 {
		return lastErr
	}
	return nil
}

func (s *Sender) Close() error {
	return s.conn.Close()
}

// Receiver deduplicates commands per sender.
type Receiver struct {
	mtx    sync.Mutex
	nonces map[uint8]uint32
}

func NewReceiver() *Receiver {
	return &Receiver{nonces: make(map[uint8]uint32)}
}

// accept reports whether cmd is newer than anything seen from its sender.
func (r *Receiver) accept(cmd Command) bool {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	last, exists := r.nonces[cmd.SenderID]
	// wrap-aware comparison
	if exists && int32(cmd.Nonce-last) <= 0 {
		return false
	}
	r.nonces[cmd.SenderID] = cmd.Nonce
	return true
}

// Listen forwards every new command read from conn to out until ctx is done.
func (r *Receiver) Listen(ctx context.Context, conn net.PacketConn, out chan<- Command) error {
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	buf := make([]byte, 128)
	for {
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			glog.Warningf("Reading panel frame: %v", err)
			continue
		}

		cmd, err := deserialize(buf[:n])
		if err != nil {
			glog.V(1).Infof("Dropping panel frame from %v: %v", addr, err)
			continue
		}
		if !r.accept(cmd) {
			continue
		}

		glog.V(1).Infof("Panel command %+v from %v", cmd, addr)
		select {
		case out <- cmd:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// serialize encodes a command: kind | floor | sender | nonce (LE u32).
func serialize(cmd Command) ([]byte, error) {
	if cmd.Floor < 0 || cmd.Floor > 0xFF {
		return nil, fmt.Errorf("%w: floor %d", ErrUnknownCommand, cmd.Floor)
	}
	buf := make([]byte, 0, frameSize)
	buf = append(buf, uint8(cmd.Kind))
	buf = append(buf, uint8(cmd.Floor))
	buf = append(buf, cmd.SenderID)
	buf = binary.LittleEndian.AppendUint32(buf, cmd.Nonce)
	return buf, nil
}

func deserialize(m []byte) (Command, error) {
	if len(m) < frameSize {
		return Command{}, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(m))
	}
	cmd := Command{
		Kind:     CommandKind(m[0]),
		Floor:    int(m[1]),
		SenderID: m[2],
		Nonce:    binary.LittleEndian.Uint32(m[3:7]),
	}
	if cmd.Kind > CMD_Close {
		return Command{}, fmt.Errorf("%w: kind %d", ErrUnknownCommand, cmd.Kind)
	}
	return cmd, nil
}
