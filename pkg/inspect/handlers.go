package inspect

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-motion/pkg/clip"
	"github.com/teslashibe/go-motion/pkg/controller"
	"github.com/teslashibe/go-motion/pkg/protocol"
)

// Stats is the body of GET /api/stats
type Stats struct {
	Ticks          uint64 `json:"ticks"`
	Failures       uint64 `json:"failures"`
	Characters     int    `json:"characters"`
	RateMs         int64  `json:"rate_ms"`
	PoseClients    int    `json:"pose_clients"`
	ControlClients int64  `json:"control_clients"`
	FramesSent     uint64 `json:"frames_sent"`
	FramesDropped  uint64 `json:"frames_dropped"`
}

func fail(c *fiber.Ctx, err error) error {
	return c.Status(status(err)).JSON(fiber.Map{"error": err.Error()})
}

// handleStats returns loop and stream counters
func (s *Server) handleStats(c *fiber.Ctx) error {
	st := s.drv.Stats()
	return c.JSON(Stats{
		Ticks:          st.Ticks,
		Failures:       st.Failures,
		Characters:     st.Characters,
		RateMs:         st.Rate.Milliseconds(),
		PoseClients:    s.poses.ClientCount(),
		ControlClients: s.controls.Load(),
		FramesSent:     s.published.Load(),
		FramesDropped:  s.poses.Dropped(),
	})
}

// handleClips lists the clip cache
func (s *Server) handleClips(c *fiber.Ctx) error {
	clips := []clip.EntryInfo{}
	if s.cache != nil {
		clips = s.cache.List()
	}
	return c.JSON(fiber.Map{
		"clips": clips,
		"count": len(clips),
	})
}

// handleCharacters lists the driven character ids
func (s *Server) handleCharacters(c *fiber.Ctx) error {
	ids := s.drv.Characters()
	return c.JSON(fiber.Map{
		"characters": ids,
		"count":      len(ids),
	})
}

// handleSnapshot returns one controller's state
func (s *Server) handleSnapshot(c *fiber.Ctx) error {
	var snap controller.Snapshot
	err := s.drv.Do(c.Params("id"), func(ctl *controller.Controller) error {
		snap = ctl.Snapshot()
		return nil
	})
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(snap)
}

// handleStart starts a motion; ?offset= starts it that many seconds in
func (s *Server) handleStart(c *fiber.Ctx) error {
	cmd := protocol.Command{
		Character: c.Params("id"),
		Clip:      c.Params("clip"),
		Offset:    float32(c.QueryFloat("offset", 0)),
	}
	if err := s.execute(protocol.TypeStart, cmd); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "started"})
}

// handleStop stops a motion; ?immediate=true skips the ease out
func (s *Server) handleStop(c *fiber.Ctx) error {
	cmd := protocol.Command{
		Character: c.Params("id"),
		Clip:      c.Params("clip"),
		Immediate: c.QueryBool("immediate", false),
	}
	if err := s.execute(protocol.TypeStop, cmd); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "stopped"})
}

// handleFlush rebuilds every motion of a character
func (s *Server) handleFlush(c *fiber.Ctx) error {
	if err := s.execute(protocol.TypeFlush, protocol.Command{Character: c.Params("id")}); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"status": "flushed"})
}

// handleControl answers every command on the socket with an ack
func (s *Server) handleControl(conn *websocket.Conn) {
	n := s.controls.Inc()
	s.logger.Info("control client connected", "clients", n)
	defer func() {
		s.logger.Info("control client disconnected", "clients", s.controls.Dec())
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		reply := s.handleMessage(data)
		if reply == nil {
			continue
		}
		out, err := reply.Bytes()
		if err != nil {
			continue
		}
		if err := conn.WriteMessage(websocket.TextMessage, out); err != nil {
			return
		}
	}
}

// handleMessage processes one control message and returns the reply
func (s *Server) handleMessage(data []byte) *protocol.Message {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		reply, _ := protocol.NewErrorMessage(err)
		return reply
	}

	switch {
	case msg.Type == protocol.TypePing:
		ping, _ := msg.GetPingData()
		var id string
		if ping != nil {
			id = ping.ID
		}
		reply, _ := protocol.NewPongMessage(id, msg.Timestamp, time.Now().UnixMilli())
		return reply

	case msg.Type.IsCommand():
		cmd, err := msg.GetCommand()
		if err == nil {
			err = s.execute(msg.Type, *cmd)
		}
		reply, _ := protocol.NewAckMessage(msg.Type, err)
		return reply

	default:
		reply, _ := protocol.NewErrorMessage(ErrUnknownCommand)
		return reply
	}
}
