package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"time"

	"elevatorsim/config"
	"elevatorsim/controller"
	"elevatorsim/panel"
	"elevatorsim/render"
	"elevatorsim/simtime"
	"elevatorsim/statesync"
	"elevatorsim/types"

	"github.com/eiannone/keyboard"
	"github.com/golang/glog"
)

const loopQueueSize = 64

func main() {
	configPath := flag.String("config", "", "YAML configuration file")
	envPath := flag.String("env", "", "dotenv file with ELEVATOR_* overrides")
	floors := flag.Int("floors", config.DefaultFloors, "Number of floors")
	speed := flag.Int("speed", config.DefaultSpeedPerFloorMs, "Travel time per floor in ms")
	transition := flag.Int("transition", config.DefaultDoorTransitionMs, "Door open/close animation time in ms")
	dwell := flag.Int("dwell", config.DefaultDoorDwellMs, "Time doors stay open before closing in ms")
	id := flag.String("id", "", "Identifier of the simulated car. Defaults to the hostname")
	broadcast := flag.String("broadcast", config.DefaultBroadcastAddr, "Address the state feed is sent to")
	panelAddr := flag.String("panel", config.DefaultPanelAddr, "Address of the remote button panel")
	view := flag.Bool("view", false, "Print the state feed of running simulators")
	remote := flag.String("remote", "", "Send one panel command (floor number, open or close) and exit")
	flag.Parse()
	defer glog.Flush()

	cfg := config.Default()
	if *configPath != "" {
		if err := config.LoadFile(*configPath, &cfg); err != nil {
			glog.Exitf("Loading config: %v", err)
		}
	}
	if *envPath != "" {
		if err := config.LoadEnvFile(*envPath, &cfg); err != nil {
			glog.Exitf("Loading env file: %v", err)
		}
	}
	if err := config.ApplyEnviron(&cfg); err != nil {
		glog.Exitf("Reading environment: %v", err)
	}

	// explicit flags win over files and environment
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "floors":
			cfg.Floors = *floors
		case "speed":
			cfg.SpeedPerFloorMs = *speed
		case "transition":
			cfg.DoorTransitionMs = *transition
		case "dwell":
			cfg.DoorDwellMs = *dwell
		case "id":
			cfg.ID = *id
		case "broadcast":
			cfg.BroadcastAddr = *broadcast
		case "panel":
			cfg.PanelAddr = *panelAddr
		}
	})
	if err := cfg.Validate(); err != nil {
		glog.Exit(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var err error
	switch {
	case *remote != "":
		err = runRemote(cfg, *remote)
	case *view:
		err = runViewer(ctx, cfg)
	default:
		err = runSimulator(ctx, cancel, cfg)
	}
	if err != nil && err != context.Canceled {
		glog.Exit(err)
	}
}

func runSimulator(ctx context.Context, cancel context.CancelFunc, cfg config.Config) error {
	loop := simtime.NewLoop(loopQueueSize)
	elevator, err := controller.New(cfg.Controller(), loop)
	if err != nil {
		return err
	}
	elevator.Subscribe(render.NewTerminal(os.Stdout))

	pub, err := statesync.NewPublisher(cfg.BroadcastAddr, cfg.ID, cfg.Floors)
	if err != nil {
		glog.Warningf("State feed disabled: %v", err)
	} else {
		defer pub.Close()
		elevator.Subscribe(pub)
		defer pub.Heartbeat(loop, statesync.DefaultInterval)()
	}

	go listenPanel(ctx, cfg, loop, elevator)

	if err := keyboard.Open(); err != nil {
		return fmt.Errorf("opening keyboard: %w", err)
	}
	defer keyboard.Close()
	go readKeys(cancel, loop, elevator)

	fmt.Println("Floors 0-9 request a floor, o opens, c closes, q quits")
	loop.Post(elevator.Start)
	return loop.Run(ctx)
}

func readKeys(cancel context.CancelFunc, loop *simtime.Loop, elevator *controller.Controller) {
	for {
		char, key, err := keyboard.GetKey()
		if err != nil {
			glog.Errorf("Reading keyboard: %v", err)
			cancel()
			return
		}

		switch {
		case key == keyboard.KeyCtrlC || key == keyboard.KeyEsc || char == 'q':
			cancel()
			return
		case char >= '0' && char <= '9':
			floor := int(char - '0')
			loop.Post(func() {
				if err := elevator.RequestFloor(floor); err != nil {
					glog.Warning(err)
				}
			})
		case char == 'o':
			loop.Post(func() { elevator.ManualOpen() })
		case char == 'c':
			loop.Post(func() { elevator.ManualClose() })
		}
	}
}

func listenPanel(ctx context.Context, cfg config.Config, loop *simtime.Loop, elevator *controller.Controller) {
	addr, err := config.ListenAddr(cfg.PanelAddr)
	if err != nil {
		glog.Errorf("Panel address: %v", err)
		return
	}
	conn, err := statesync.ListenUDP(addr)
	if err != nil {
		glog.Warningf("Remote panel disabled: %v", err)
		return
	}

	commands := make(chan panel.Command)
	go func() {
		if err := panel.NewReceiver().Listen(ctx, conn, commands); err != nil && ctx.Err() == nil {
			glog.Errorf("Remote panel stopped: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-commands:
			loop.Post(func() {
				if err := panel.Apply(elevator, cmd); err != nil {
					glog.Warningf("Panel command %+v: %v", cmd, err)
				}
			})
		}
	}
}

func runViewer(ctx context.Context, cfg config.Config) error {
	addr, err := config.ListenAddr(cfg.BroadcastAddr)
	if err != nil {
		return err
	}
	conn, err := statesync.ListenUDP(addr)
	if err != nil {
		return err
	}

	glog.Infof("Watching state feed on %s", addr)
	registry := statesync.NewRegistry(statesync.DefaultSyncTimeout)
	go watchLiveness(ctx, registry)
	return statesync.Receive(ctx, conn, registry, func(s types.ElevatorState) {
		fmt.Println(render.Describe(s))
	})
}

// watchLiveness prints the live car list whenever it changes and the last
// known state of every car that went silent.
func watchLiveness(ctx context.Context, registry *statesync.Registry) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var alive []string
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		current := registry.AliveIDs()
		if slices.Equal(current, alive) {
			continue
		}
		for _, id := range alive {
			if slices.Contains(current, id) {
				continue
			}
			if s, ok := registry.Get(id); ok {
				glog.Warningf("Car went silent, last state %s", render.Describe(s))
			}
		}
		alive = current
		fmt.Println(render.LiveCars(alive))
	}
}

func runRemote(cfg config.Config, arg string) error {
	cmd, err := panel.ParseCommand(arg)
	if err != nil {
		return err
	}

	sender, err := panel.Dial(cfg.PanelAddr, uint8(os.Getpid()))
	if err != nil {
		return err
	}
	defer sender.Close()

	glog.Infof("Sending %+v to %s", cmd, cfg.PanelAddr)
	return sender.Send(cmd)
}
