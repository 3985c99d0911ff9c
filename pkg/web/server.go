// Package web provides the operator drive server: an HTTP API for the
// connection lifecycle, a websocket endpoint that feeds raw joystick
// samples into the dispatch pipeline, and a state broadcast channel.
//
// The on-screen widget itself is the client's concern; this package
// only carries its raw displacement samples.
package web

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/roverpad/go-rover/pkg/hub"
	"github.com/roverpad/go-rover/pkg/joystick"
	"github.com/roverpad/go-rover/pkg/rover"
)

// Server is the operator-facing drive server.
type Server struct {
	app    *fiber.App
	port   string
	logger *slog.Logger

	manager    *rover.ConnectionManager
	dispatcher *rover.Dispatcher
	translator joystick.Config

	stateHub *hub.Hub

	mu       sync.Mutex
	scanning bool
}

// NewServer wires the drive server over an existing manager and
// dispatcher.
func NewServer(port string, manager *rover.ConnectionManager, dispatcher *rover.Dispatcher, translator joystick.Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		port:       port,
		logger:     logger,
		manager:    manager,
		dispatcher: dispatcher,
		translator: translator,
		stateHub:   hub.New("state", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "go-rover drive server",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/devices", s.handleDevices)
	api.Post("/scan", s.handleScan)
	api.Post("/connect", s.handleConnect)
	api.Post("/disconnect", s.handleDisconnect)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/drive", websocket.New(s.handleDriveWS))
	app.Get("/ws/state", websocket.New(s.handleStateWS))

	s.app = app
	return s
}

// Start runs the hub and blocks serving HTTP.
func (s *Server) Start() error {
	go s.stateHub.Run()
	s.logger.Info("drive server listening", "port", s.port)
	return s.app.Listen(":" + s.port)
}

// Shutdown stops the HTTP server gracefully.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// BroadcastState pushes a lifecycle state change to attached operator
// clients. Wire it to the manager's state listener.
func (s *Server) BroadcastState(state rover.State) {
	s.stateHub.Broadcast(hub.Event{
		Type: "connection/state",
		Payload: fiber.Map{
			"state":   state.String(),
			"attempt": s.manager.Attempt(),
		},
	})
}

// statusResponse is the /api/status payload.
type statusResponse struct {
	State   string      `json:"state"`
	Attempt int         `json:"attempt"`
	Device  interface{} `json:"device,omitempty"`
	Gear    string      `json:"gear"`
	Error   string      `json:"error,omitempty"`
	Stats   rover.Stats `json:"stats"`
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	resp := statusResponse{
		State:   s.manager.State().String(),
		Attempt: s.manager.Attempt(),
		Gear:    string(s.dispatcher.Gear()),
		Stats:   s.dispatcher.Stats(),
	}
	if dev := s.manager.Device(); dev.ID != "" {
		resp.Device = dev
	}
	if err := s.manager.Err(); err != nil {
		resp.Error = err.Error()
	}
	return c.JSON(resp)
}

func (s *Server) handleDevices(c *fiber.Ctx) error {
	return c.JSON(s.manager.Devices())
}

// handleScan starts a discovery scan in the background and returns
// immediately; results accumulate behind /api/devices.
func (s *Server) handleScan(c *fiber.Ctx) error {
	s.mu.Lock()
	if s.scanning {
		s.mu.Unlock()
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "scan already running"})
	}
	s.scanning = true
	s.mu.Unlock()

	devices, err := s.manager.Scan(context.Background())
	if err != nil {
		s.mu.Lock()
		s.scanning = false
		s.mu.Unlock()
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}

	go func() {
		for dev := range devices {
			s.stateHub.Broadcast(hub.Event{Type: "scan/device", Payload: dev})
		}
		s.mu.Lock()
		s.scanning = false
		s.mu.Unlock()
		s.stateHub.Broadcast(hub.Event{Type: "scan/done"})
	}()
	return c.SendStatus(fiber.StatusAccepted)
}

type connectRequest struct {
	ID string `json:"id"`
}

// handleConnect starts the connect flow in the background. Lifecycle
// errors surface as state transitions observable via /api/status and
// the state websocket, not as an HTTP error after the fact.
func (s *Server) handleConnect(c *fiber.Ctx) error {
	var req connectRequest
	if err := c.BodyParser(&req); err != nil || req.ID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "device id required"})
	}

	for _, dev := range s.manager.Devices() {
		if dev.ID == req.ID {
			go func() {
				if err := s.manager.Connect(context.Background(), dev); err != nil {
					s.logger.Warn("connect flow ended", "device", dev.ID, "error", err)
				}
			}()
			return c.SendStatus(fiber.StatusAccepted)
		}
	}
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "device not seen in last scan"})
}

func (s *Server) handleDisconnect(c *fiber.Ctx) error {
	s.manager.Disconnect()
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleStateWS(conn *websocket.Conn) {
	client := hub.NewClient(s.stateHub, conn)
	client.Run()
}
