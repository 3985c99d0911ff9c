// Package bluez implements the radio transport over the BlueZ D-Bus
// API. Discovery runs through org.bluez.Adapter1 and the ObjectManager
// signal stream; sessions write a GATT characteristic on the remote
// rover (Nordic UART style service).
//
// Linux only in practice: it needs a system bus with BlueZ on it.
package bluez

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"
	"golang.org/x/time/rate"

	"github.com/roverpad/go-rover/pkg/transport"
)

const (
	busName         = "org.bluez"
	adapterIface    = "org.bluez.Adapter1"
	deviceIface     = "org.bluez.Device1"
	charIface       = "org.bluez.GattCharacteristic1"
	objManagerIface = "org.freedesktop.DBus.ObjectManager"
	objManagerPath  = dbus.ObjectPath("/")
)

// managedObjects is the shape GetManagedObjects returns.
type managedObjects = map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// Config holds the BlueZ transport parameters.
type Config struct {
	// ServiceUUID is the GATT service advertised by the rover.
	ServiceUUID string `yaml:"service_uuid" json:"service_uuid"`

	// CommandCharUUID is the writable characteristic commands go to.
	CommandCharUUID string `yaml:"command_char_uuid" json:"command_char_uuid"`

	// WritesPerSecond paces characteristic writes so a burst of queued
	// commands cannot flood the link. WriteBurst is the limiter burst.
	WritesPerSecond float64 `yaml:"writes_per_second" json:"writes_per_second"`
	WriteBurst      int     `yaml:"write_burst" json:"write_burst"`

	// ServiceResolveTimeout bounds the wait for GATT service discovery
	// after Device1.Connect succeeds.
	ServiceResolveTimeout time.Duration `yaml:"service_resolve_timeout" json:"service_resolve_timeout"`
}

// DefaultConfig returns a Config for a Nordic-UART-style rover.
func DefaultConfig() Config {
	return Config{
		ServiceUUID:           "6E400001-B5A3-F393-E0A9-E50E24DCCA9E",
		CommandCharUUID:       "6E400002-B5A3-F393-E0A9-E50E24DCCA9E",
		WritesPerSecond:       30,
		WriteBurst:            5,
		ServiceResolveTimeout: 10 * time.Second,
	}
}

// Transport is the BlueZ-backed transport.Transport.
type Transport struct {
	conn    *dbus.Conn
	cfg     Config
	logger  *slog.Logger
	adapter dbus.ObjectPath
}

// New connects to the system bus and locates the Bluetooth adapter.
func New(cfg Config, logger *slog.Logger) (*Transport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("system bus: %w", err)
	}
	t := &Transport{conn: conn, cfg: cfg, logger: logger}
	if t.adapter, err = t.findAdapter(); err != nil {
		return nil, err
	}
	logger.Info("bluez adapter found", "path", string(t.adapter))
	return t, nil
}

func (t *Transport) findAdapter() (dbus.ObjectPath, error) {
	objects, err := t.managedObjects()
	if err != nil {
		return "", fmt.Errorf("%w: %v", transport.ErrAdapterUnavailable, err)
	}
	for path, ifaces := range objects {
		if _, ok := ifaces[adapterIface]; ok {
			return path, nil
		}
	}
	return "", transport.ErrAdapterUnavailable
}

func (t *Transport) managedObjects() (managedObjects, error) {
	var objects managedObjects
	err := t.conn.Object(busName, objManagerPath).
		Call(objManagerIface+".GetManagedObjects", 0).
		Store(&objects)
	return objects, err
}

// Scan implements transport.Transport. It announces devices already
// known to BlueZ, starts discovery, and forwards InterfacesAdded
// signals until ctx ends.
func (t *Transport) Scan(ctx context.Context) (<-chan transport.DeviceDescriptor, error) {
	matchOpts := []dbus.MatchOption{
		dbus.WithMatchInterface(objManagerIface),
		dbus.WithMatchMember("InterfacesAdded"),
	}
	if err := t.conn.AddMatchSignal(matchOpts...); err != nil {
		return nil, fmt.Errorf("match signal: %w", err)
	}
	signals := make(chan *dbus.Signal, 32)
	t.conn.Signal(signals)

	adapter := t.conn.Object(busName, t.adapter)
	if err := adapter.Call(adapterIface+".StartDiscovery", 0).Store(); err != nil {
		t.conn.RemoveSignal(signals)
		_ = t.conn.RemoveMatchSignal(matchOpts...)
		return nil, fmt.Errorf("%w: start discovery: %v", transport.ErrAdapterUnavailable, err)
	}

	out := make(chan transport.DeviceDescriptor)
	go func() {
		defer close(out)
		defer func() {
			if err := adapter.Call(adapterIface+".StopDiscovery", 0).Store(); err != nil {
				t.logger.Debug("stop discovery", "error", err)
			}
			t.conn.RemoveSignal(signals)
			_ = t.conn.RemoveMatchSignal(matchOpts...)
		}()

		// Devices BlueZ discovered before this scan started.
		if objects, err := t.managedObjects(); err == nil {
			for _, ifaces := range objects {
				if props, ok := ifaces[deviceIface]; ok {
					if !emit(ctx, out, descriptorFromProps(props)) {
						return
					}
				}
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				if sig.Name != objManagerIface+".InterfacesAdded" || len(sig.Body) < 2 {
					continue
				}
				ifaces, ok := sig.Body[1].(map[string]map[string]dbus.Variant)
				if !ok {
					continue
				}
				props, ok := ifaces[deviceIface]
				if !ok {
					continue
				}
				if !emit(ctx, out, descriptorFromProps(props)) {
					return
				}
			}
		}
	}()
	return out, nil
}

func emit(ctx context.Context, out chan<- transport.DeviceDescriptor, d transport.DeviceDescriptor) bool {
	if d.ID == "" {
		return true
	}
	select {
	case out <- d:
		return true
	case <-ctx.Done():
		return false
	}
}

func descriptorFromProps(props map[string]dbus.Variant) transport.DeviceDescriptor {
	var d transport.DeviceDescriptor
	if v, ok := props["Address"]; ok {
		d.ID, _ = v.Value().(string)
	}
	if v, ok := props["Name"]; ok {
		d.Name, _ = v.Value().(string)
	}
	if v, ok := props["RSSI"]; ok {
		if rssi, ok := v.Value().(int16); ok {
			d.RSSI = int(rssi)
		}
	}
	if v, ok := props["Paired"]; ok {
		d.Bonded, _ = v.Value().(bool)
	}
	return d
}

// devicePath maps a device address to its BlueZ object path.
func (t *Transport) devicePath(id string) dbus.ObjectPath {
	return dbus.ObjectPath(string(t.adapter) + "/dev_" + strings.ReplaceAll(id, ":", "_"))
}

// Pair implements transport.Transport. Best effort by contract.
func (t *Transport) Pair(ctx context.Context, id string) error {
	device := t.conn.Object(busName, t.devicePath(id))
	if err := device.CallWithContext(ctx, deviceIface+".Pair", 0).Store(); err != nil {
		return fmt.Errorf("%w: %v", transport.ErrPairingFailed, err)
	}
	return nil
}

// Open implements transport.Transport: connect, wait for GATT
// resolution, and locate the command characteristic.
func (t *Transport) Open(ctx context.Context, id string) (transport.Session, error) {
	devPath := t.devicePath(id)
	device := t.conn.Object(busName, devPath)

	if err := device.CallWithContext(ctx, deviceIface+".Connect", 0).Store(); err != nil {
		if strings.Contains(err.Error(), "DoesNotExist") {
			return nil, fmt.Errorf("open %s: %w", id, transport.ErrDeviceNotFound)
		}
		return nil, fmt.Errorf("open %s: %w: %v", id, transport.ErrConnectRefused, err)
	}

	charPath, err := t.resolveCommandChar(ctx, devPath)
	if err != nil {
		_ = device.Call(deviceIface+".Disconnect", 0).Store()
		return nil, err
	}

	t.logger.Info("session open", "device", id, "char", string(charPath))
	return &session{
		conn:     t.conn,
		device:   devPath,
		charPath: charPath,
		limiter:  rate.NewLimiter(rate.Limit(t.cfg.WritesPerSecond), t.cfg.WriteBurst),
	}, nil
}

// resolveCommandChar polls the object tree until the command
// characteristic under the device appears, or the resolve timeout ends.
func (t *Transport) resolveCommandChar(ctx context.Context, devPath dbus.ObjectPath) (dbus.ObjectPath, error) {
	deadline := time.Now().Add(t.cfg.ServiceResolveTimeout)
	prefix := string(devPath) + "/"

	for {
		objects, err := t.managedObjects()
		if err != nil {
			return "", fmt.Errorf("resolve services: %w", err)
		}
		for path, ifaces := range objects {
			props, ok := ifaces[charIface]
			if !ok || !strings.HasPrefix(string(path), prefix) {
				continue
			}
			if v, ok := props["UUID"]; ok {
				if uuid, _ := v.Value().(string); strings.EqualFold(uuid, t.cfg.CommandCharUUID) {
					return path, nil
				}
			}
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("open: command characteristic %s not found: %w",
				t.cfg.CommandCharUUID, transport.ErrConnectRefused)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// session is a BlueZ-backed transport.Session.
type session struct {
	conn     *dbus.Conn
	device   dbus.ObjectPath
	charPath dbus.ObjectPath
	limiter  *rate.Limiter
}

// Write sends data through the command characteristic, paced by the
// limiter so drained bursts cannot flood the link.
func (s *session) Write(ctx context.Context, data []byte) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	char := s.conn.Object(busName, s.charPath)
	err := char.CallWithContext(ctx, charIface+".WriteValue", 0, data, map[string]dbus.Variant{}).Store()
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Close disconnects the device. Errors are advisory.
func (s *session) Close() error {
	device := s.conn.Object(busName, s.device)
	if err := device.Call(deviceIface+".Disconnect", 0).Store(); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	return nil
}

var _ transport.Transport = (*Transport)(nil)
