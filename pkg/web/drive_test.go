package web

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/roverpad/go-rover/pkg/rover"
	"github.com/roverpad/go-rover/pkg/transport"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer builds a server over a mock transport with a connected
// session and a fast drain cadence, plus a running dispatcher.
func newTestServer(t *testing.T) (*Server, *transport.Mock, context.CancelFunc) {
	t.Helper()

	cfg := rover.DefaultConfig()
	cfg.DispatchPeriod = 2 * time.Millisecond
	cfg.ScanDuration = 50 * time.Millisecond

	mock := transport.NewMock()
	mock.AddDevice(transport.DeviceDescriptor{ID: "AA:BB:CC:DD:EE:01", Name: "rover", RSSI: -48, Bonded: true})

	manager := rover.NewConnectionManager(mock, cfg, testLogger())
	dispatcher := rover.NewDispatcher(manager, cfg, testLogger())
	srv := NewServer("0", manager, dispatcher, cfg.Joystick, testLogger())

	if err := manager.Connect(context.Background(), transport.DeviceDescriptor{ID: "AA:BB:CC:DD:EE:01", Bonded: true}); err != nil {
		t.Fatalf("connect: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go dispatcher.Run(ctx) //nolint:errcheck // ends with ctx

	return srv, mock, cancel
}

func waitForWrites(t *testing.T, mock *transport.Mock, want ...string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got := mock.Writes()
		if len(got) >= len(want) {
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("writes = %v, want prefix %v", got, want)
				}
			}
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("writes = %v, want %v", mock.Writes(), want)
}

func TestDriveMessage_InputDrivesPipeline(t *testing.T) {
	srv, mock, cancel := newTestServer(t)
	defer cancel()

	// A hard up-drag on the widget: forward at high magnitude.
	srv.handleDriveMessage(DriveMessage{Type: "input", DX: 0, DY: -80})
	// The widget streams while held; repeats change nothing.
	srv.handleDriveMessage(DriveMessage{Type: "input", DX: 0, DY: -80})
	srv.handleDriveMessage(DriveMessage{Type: "stop"})

	waitForWrites(t, mock, "F", "+", "+", "S")
}

func TestDriveMessage_DeadzoneInputStopsCleanly(t *testing.T) {
	srv, mock, cancel := newTestServer(t)
	defer cancel()

	srv.handleDriveMessage(DriveMessage{Type: "input", DX: 0, DY: -80})
	// Fingers drifting back to center land in the deadzone: that is a
	// stop, delivered through the same input path.
	srv.handleDriveMessage(DriveMessage{Type: "input", DX: 2, DY: -3})

	waitForWrites(t, mock, "F", "+", "+", "S")
}

func TestDriveMessage_GearAndClaw(t *testing.T) {
	srv, mock, cancel := newTestServer(t)
	defer cancel()

	srv.handleDriveMessage(DriveMessage{Type: "gear", Gear: "2"})
	srv.handleDriveMessage(DriveMessage{Type: "claw", Open: true})
	srv.handleDriveMessage(DriveMessage{Type: "claw", Open: false})

	waitForWrites(t, mock, "S", "MAX:150", "O", "C")
}

func TestDriveMessage_ReverseGearMapsInputBackward(t *testing.T) {
	srv, mock, cancel := newTestServer(t)
	defer cancel()

	srv.translator.Policy = "axis-priority"
	srv.handleDriveMessage(DriveMessage{Type: "gear", Gear: "R"})
	srv.handleDriveMessage(DriveMessage{Type: "input", DX: 0, DY: -80})

	waitForWrites(t, mock, "S", "MAX:90", "B", "+", "+")
}

func TestDriveMessage_UnknownTypeIgnored(t *testing.T) {
	srv, mock, cancel := newTestServer(t)
	defer cancel()

	srv.handleDriveMessage(DriveMessage{Type: "telemetry"})

	time.Sleep(20 * time.Millisecond)
	if got := mock.Writes(); len(got) != 0 {
		t.Fatalf("writes = %v, want none", got)
	}
}
