package web

import (
	"encoding/json"

	"github.com/gofiber/websocket/v2"

	"github.com/roverpad/go-rover/pkg/rover"
)

// DriveMessage is one frame on the /ws/drive socket. Type selects the
// payload fields that matter:
//
//	input: raw joystick displacement {dx, dy}
//	stop:  explicit stop (widget released)
//	gear:  gear change {gear}
//	claw:  claw toggle {open}
type DriveMessage struct {
	Type string  `json:"type"`
	DX   float64 `json:"dx,omitempty"`
	DY   float64 `json:"dy,omitempty"`
	Gear string  `json:"gear,omitempty"`
	Open bool    `json:"open,omitempty"`
}

// handleDriveWS consumes operator input frames for the lifetime of the
// connection. Samples are translated here, at arrival rate; the
// dispatcher's own cadence caps what actually reaches the link.
func (s *Server) handleDriveWS(conn *websocket.Conn) {
	s.logger.Info("driver attached", "remote", conn.RemoteAddr().String())
	defer func() {
		// A vanished driver must not leave the rover moving.
		s.dispatcher.HandleStop()
		s.logger.Info("driver detached")
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg DriveMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("bad drive frame", "error", err)
			continue
		}
		s.handleDriveMessage(msg)
	}
}

func (s *Server) handleDriveMessage(msg DriveMessage) {
	switch msg.Type {
	case "input":
		sample := s.translator.Normalize(msg.DX, msg.DY)
		motion := s.translator.Classify(sample, s.dispatcher.Gear().Reverse())
		s.dispatcher.HandleMotion(motion)
	case "stop":
		s.dispatcher.HandleStop()
	case "gear":
		s.dispatcher.HandleGear(rover.Gear(msg.Gear))
	case "claw":
		s.dispatcher.HandleClaw(msg.Open)
	default:
		s.logger.Debug("unknown drive frame type", "type", msg.Type)
	}
}
