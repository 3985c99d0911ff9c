package web

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roverpad/go-rover/internal/httpc"
	"github.com/roverpad/go-rover/pkg/transport"
)

// Driver is a remote input client for the drive server: it dials the
// /ws/drive endpoint and forwards raw samples and control events from a
// handheld process running elsewhere. Lifecycle operations go over the
// control API instead of the input socket.
type Driver struct {
	url  string
	base string

	mu   sync.Mutex
	conn *websocket.Conn
}

// NewDriver creates a driver for the given server address
// (host:port).
func NewDriver(addr string) *Driver {
	return &Driver{
		url:  fmt.Sprintf("ws://%s/ws/drive", addr),
		base: fmt.Sprintf("http://%s/api", addr),
	}
}

// StartScan asks the server to begin a discovery scan.
func (d *Driver) StartScan() error {
	return httpc.PostJSON(d.base+"/scan", nil)
}

// Devices fetches what the last scan saw.
func (d *Driver) Devices() ([]transport.DeviceDescriptor, error) {
	var devices []transport.DeviceDescriptor
	if err := httpc.GetJSON(d.base+"/devices", &devices); err != nil {
		return nil, err
	}
	return devices, nil
}

// ConnectDevice asks the server to connect to a scanned device. The
// flow runs in the background; progress shows up on /ws/state.
func (d *Driver) ConnectDevice(id string) error {
	return httpc.PostJSON(d.base+"/connect", map[string]string{"id": id})
}

// DisconnectDevice tears the server's session down.
func (d *Driver) DisconnectDevice() error {
	return httpc.PostJSON(d.base+"/disconnect", nil)
}

// Connect dials the drive endpoint.
func (d *Driver) Connect() error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(d.url, nil)
	if err != nil {
		return fmt.Errorf("dial drive server: %w", err)
	}
	d.mu.Lock()
	d.conn = conn
	d.mu.Unlock()
	return nil
}

// SendInput forwards one raw displacement sample.
func (d *Driver) SendInput(dx, dy float64) error {
	return d.send(DriveMessage{Type: "input", DX: dx, DY: dy})
}

// SendStop signals the widget was released.
func (d *Driver) SendStop() error {
	return d.send(DriveMessage{Type: "stop"})
}

// SendGear changes gear.
func (d *Driver) SendGear(gear string) error {
	return d.send(DriveMessage{Type: "gear", Gear: gear})
}

// SendClaw toggles the claw.
func (d *Driver) SendClaw(open bool) error {
	return d.send(DriveMessage{Type: "claw", Open: open})
}

func (d *Driver) send(msg DriveMessage) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return fmt.Errorf("driver not connected")
	}
	return d.conn.WriteJSON(msg)
}

// Close closes the websocket.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	err := d.conn.Close()
	d.conn = nil
	return err
}
