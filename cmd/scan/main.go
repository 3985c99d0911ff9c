// Command scan discovers nearby rovers and prints them.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/roverpad/go-rover/internal/config"
	"github.com/roverpad/go-rover/internal/log"
	"github.com/roverpad/go-rover/pkg/rover"
	"github.com/roverpad/go-rover/pkg/transport"
	"github.com/roverpad/go-rover/pkg/transport/bluez"
)

func main() {
	mock := flag.Bool("mock", false, "use the in-memory mock transport")
	flag.Parse()

	log.Init(config.LogLevel())

	cfg := rover.DefaultConfig()
	cfg.ScanDuration = config.ScanDuration()
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
	devices, err := manager.Scan(context.Background())
	if err != nil {
		log.Error("scan", "error", err)
		os.Exit(1)
	}

	fmt.Printf("scanning for %s...\n", cfg.ScanDuration)
	for dev := range devices {
		bonded := ""
		if dev.Bonded {
			bonded = " (bonded)"
		}
		name := dev.Name
		if name == "" {
			name = "<unnamed>"
		}
		fmt.Printf("  %-20s %-24s rssi=%d%s\n", dev.ID, name, dev.RSSI, bonded)
	}
	fmt.Printf("%d device(s) seen\n", len(manager.Devices()))
}

func buildTransport(mock bool) (transport.Transport, error) {
	if mock {
		m := transport.NewMock()
		m.AddDevice(transport.DeviceDescriptor{ID: "AA:BB:CC:DD:EE:01", Name: "rover-demo", RSSI: -52})
		return m, nil
	}
	return bluez.New(bluez.DefaultConfig(), log.L())
}
