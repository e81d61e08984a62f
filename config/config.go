package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"elevatorsim/controller"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Reference configuration.
const (
	DefaultFloors           = 6
	DefaultSpeedPerFloorMs  = 900
	DefaultDoorTransitionMs = 1000
	DefaultDoorDwellMs      = 5000
	DefaultBroadcastAddr    = "255.255.255.255:15001"
	DefaultPanelAddr        = "255.255.255.255:49235"
	maxFloors               = 254
)

var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	ID               string `yaml:"id"`
	Floors           int    `yaml:"floors"`
	SpeedPerFloorMs  int    `yaml:"speed_per_floor_ms"`
	DoorTransitionMs int    `yaml:"door_transition_ms"`
	DoorDwellMs      int    `yaml:"door_dwell_ms"`
	BroadcastAddr    string `yaml:"broadcast_addr"`
	PanelAddr        string `yaml:"panel_addr"`
}

func Default() Config {
	id, err := os.Hostname()
	if err != nil {
		id = "elevator"
	}
	if len(id) > 32 {
		id = id[:32]
	}
	return Config{
		ID:               id,
		Floors:           DefaultFloors,
		SpeedPerFloorMs:  DefaultSpeedPerFloorMs,
		DoorTransitionMs: DefaultDoorTransitionMs,
		DoorDwellMs:      DefaultDoorDwellMs,
		BroadcastAddr:    DefaultBroadcastAddr,
		PanelAddr:        DefaultPanelAddr,
	}
}

// LoadFile overlays the YAML file at path onto c. Keys missing from the
// file keep their current values.
func LoadFile(path string, c *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(c); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// LoadEnvFile overlays the ELEVATOR_* keys of a dotenv file onto c.
func LoadEnvFile(path string, c *Config) error {
	env, err := godotenv.Read(path)
	if err != nil {
		return err
	}
	return applyEnv(c, func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	})
}

// ApplyEnviron overlays ELEVATOR_* variables of the process environment onto c.
func ApplyEnviron(c *Config) error {
	return applyEnv(c, os.LookupEnv)
}

func applyEnv(c *Config, lookup func(string) (string, bool)) error {
	ints := []struct {
		key string
		dst *int
	}{
		{"ELEVATOR_FLOORS", &c.Floors},
		{"ELEVATOR_SPEED_PER_FLOOR_MS", &c.SpeedPerFloorMs},
		{"ELEVATOR_DOOR_TRANSITION_MS", &c.DoorTransitionMs},
		{"ELEVATOR_DOOR_DWELL_MS", &c.DoorDwellMs},
	}
	for _, field := range ints {
		v, ok := lookup(field.key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, field.key, v)
		}
		*field.dst = n
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"ELEVATOR_ID", &c.ID},
		{"ELEVATOR_BROADCAST_ADDR", &c.BroadcastAddr},
		{"ELEVATOR_PANEL_ADDR", &c.PanelAddr},
	}
	for _, field := range strs {
		if v, ok := lookup(field.key); ok {
			*field.dst = v
		}
	}
	return nil
}

func (c Config) Validate() error {
	switch {
	case c.Floors < 1 || c.Floors > maxFloors:
		return fmt.Errorf("%w: floors must be in [1, %d], got %d", ErrInvalid, maxFloors, c.Floors)
	case c.SpeedPerFloorMs <= 0:
		return fmt.Errorf("%w: speed per floor must be positive, got %dms", ErrInvalid, c.SpeedPerFloorMs)
	case c.DoorTransitionMs < 0:
		return fmt.Errorf("%w: negative door transition %dms", ErrInvalid, c.DoorTransitionMs)
	case c.DoorDwellMs < 0:
		return fmt.Errorf("%w: negative door dwell %dms", ErrInvalid, c.DoorDwellMs)
	case len(c.ID) > 32:
		return fmt.Errorf("%w: id %q longer than 32 bytes", ErrInvalid, c.ID)
	}

	for _, addr := range []string{c.BroadcastAddr, c.PanelAddr} {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	return nil
}

// ListenAddr turns a send address into the matching local listen address.
func ListenAddr(addr string) (string, error) {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", err
	}
	return ":" + port, nil
}

func (c Config) Controller() controller.Config {
	return controller.Config{
		ID:             c.ID,
		FloorCount:     c.Floors,
		SpeedPerFloor:  time.Duration(c.SpeedPerFloorMs) * time.Millisecond,
		DoorTransition: time.Duration(c.DoorTransitionMs) * time.Millisecond,
		DoorDwell:      time.Duration(c.DoorDwellMs) * time.Millisecond,
	}
}
