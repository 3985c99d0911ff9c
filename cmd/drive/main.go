// Command drive runs the full teleoperation pipeline: a transport
// (BlueZ or mock), the connection manager, the command dispatcher, and
// the operator drive server on top.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/roverpad/go-rover/internal/config"
	"github.com/roverpad/go-rover/internal/log"
	"github.com/roverpad/go-rover/pkg/rover"
	"github.com/roverpad/go-rover/pkg/transport"
	"github.com/roverpad/go-rover/pkg/transport/bluez"
	"github.com/roverpad/go-rover/pkg/web"
)

func main() {
	mock := flag.Bool("mock", false, "use the in-memory mock transport")
	port := flag.String("port", config.HTTPPort(), "drive server port")
	flag.Parse()

	log.Init(config.LogLevel())

	cfg := rover.DefaultConfig()
	if path := config.ConfigPath(); path != "" {
		var err error
		if cfg, err = rover.Load(path); err != nil {
			log.Error("load config", "path", path, "error", err)
			os.Exit(1)
		}
	}

	tr, err := buildTransport(*mock)
	if err != nil {
		log.Error("transport init", "error", err)
		os.Exit(1)
	}

	manager := rover.NewConnectionManager(tr, cfg, log.L())
	dispatcher := rover.NewDispatcher(manager, cfg, log.L())
	server := web.NewServer(*port, manager, dispatcher, cfg.Joystick, log.L())

	// Lifecycle transitions gate the dispatcher: a fresh session is
	// primed (session reset + speed ceiling), loss clears the queue.
	manager.SetStateListener(func(state rover.State) {
		switch state {
		case rover.StateConnected:
			dispatcher.Prime()
		case rover.StateIdle, rover.StateFailed:
			dispatcher.Reset()
		}
		server.BroadcastState(state)
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("dispatcher stopped", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		manager.Disconnect()
		if err := server.Shutdown(); err != nil {
			log.Warn("server shutdown", "error", err)
		}
	}()

	if err := server.Start(); err != nil {
		log.Error("drive server", "error", err)
		os.Exit(1)
	}
	log.Info("drive server stopped")
}

func buildTransport(mock bool) (transport.Transport, error) {
	if mock {
		m := transport.NewMock()
		m.AddDevice(transport.DeviceDescriptor{ID: "AA:BB:CC:DD:EE:01", Name: "rover-demo", RSSI: -52})
		return m, nil
	}
	return bluez.New(bluez.DefaultConfig(), log.L())
}
