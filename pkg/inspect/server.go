// Package inspect serves a live view of the driven characters: a REST API
// for snapshots and motion commands, a websocket stream of pose frames and a
// websocket control channel.
package inspect

import (
	"fmt"
	"log/slog"
	"net"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/google/uuid"
	"go.uber.org/atomic"

	"github.com/teslashibe/go-motion/internal/log"
	"github.com/teslashibe/go-motion/pkg/clip"
	"github.com/teslashibe/go-motion/pkg/controller"
	"github.com/teslashibe/go-motion/pkg/driver"
	"github.com/teslashibe/go-motion/pkg/hub"
	"github.com/teslashibe/go-motion/pkg/protocol"
	"github.com/teslashibe/go-motion/pkg/skeleton"
)

// Resolver maps a clip name to its id.
type Resolver func(name string) (clip.ID, bool)

// Server is the inspection server
type Server struct {
	cfg     Config
	app     *fiber.App
	drv     *driver.Driver
	cache   *clip.Cache
	poses   *hub.Hub
	resolve Resolver
	logger  *slog.Logger

	// Per-character tick counts. Only touched from frame callbacks, which
	// the driver serialises.
	seen map[string]uint64

	published atomic.Uint64
	controls  atomic.Int64
}

// New creates a server for drv and subscribes to its frames. cache may be
// nil, in which case /api/clips lists nothing.
func New(drv *driver.Driver, cache *clip.Cache, cfg Config) *Server {
	if cfg.PoseEvery == 0 {
		cfg.PoseEvery = 1
	}
	s := &Server{
		cfg:    cfg,
		drv:    drv,
		cache:  cache,
		poses:  hub.New("poses"),
		logger: log.With("component", "inspect"),
		seen:   make(map[string]uint64),
	}

	app := fiber.New(fiber.Config{
		AppName:               "go-motion inspector",
		DisableStartupMessage: true,
	})
	if cfg.CORS {
		app.Use(cors.New())
	}

	api := app.Group("/api")
	api.Get("/stats", s.handleStats)
	api.Get("/clips", s.handleClips)
	api.Get("/characters", s.handleCharacters)
	api.Get("/characters/:id", s.handleSnapshot)
	api.Post("/characters/:id/motions/:clip/start", s.handleStart)
	api.Post("/characters/:id/motions/:clip/stop", s.handleStop)
	api.Post("/characters/:id/flush", s.handleFlush)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/poses", s.poses.Handler())
	app.Get("/ws/control", websocket.New(s.handleControl))

	s.app = app
	drv.OnFrame(s.onFrame)
	return s
}

// SetResolver lets commands name clips instead of passing ids.
func (s *Server) SetResolver(r Resolver) {
	s.resolve = r
}

// App returns the fiber app, for tests and embedding.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start serves on the configured address. It blocks until Shutdown.
func (s *Server) Start() error {
	go s.poses.Run()
	s.logger.Info("inspector listening", "addr", s.cfg.Addr)
	return s.app.Listen(s.cfg.Addr)
}

// Serve is Start on an existing listener.
func (s *Server) Serve(ln net.Listener) error {
	go s.poses.Run()
	s.logger.Info("inspector listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

// Shutdown disconnects every client and stops serving.
func (s *Server) Shutdown() error {
	s.poses.Close()
	return s.app.Shutdown()
}

// clipID accepts a clip id or, with a resolver, a clip name.
func (s *Server) clipID(ref string) (clip.ID, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return id, nil
	}
	if s.resolve != nil {
		if id, ok := s.resolve(ref); ok {
			return id, nil
		}
	}
	return uuid.Nil, fmt.Errorf("%w: %q", ErrUnknownClip, ref)
}

// execute runs a start, stop or flush command against the driver.
func (s *Server) execute(t protocol.MessageType, cmd protocol.Command) error {
	if t == protocol.TypeFlush {
		return s.drv.Do(cmd.Character, func(c *controller.Controller) error {
			c.FlushAll()
			return nil
		})
	}
	if !t.IsCommand() {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, t)
	}

	id, err := s.clipID(cmd.Clip)
	if err != nil {
		return err
	}
	return s.drv.Do(cmd.Character, func(c *controller.Controller) error {
		switch t {
		case protocol.TypeStart:
			if !c.StartMotion(id, cmd.Offset) {
				return fmt.Errorf("%w: %s", ErrNotPlayable, id)
			}
		case protocol.TypeStop:
			if !c.StopMotionLocally(id, cmd.Immediate) {
				return fmt.Errorf("%w: %s", ErrNotPlaying, id)
			}
		}
		s.logger.Debug("command", "type", t, "character", cmd.Character, "clip", id)
		return nil
	})
}

// onFrame streams a pose frame every PoseEvery ticks while viewers listen.
func (s *Server) onFrame(id string, c *controller.Controller) {
	n := s.seen[id] + 1
	s.seen[id] = n
	if n%s.cfg.PoseEvery != 0 || s.poses.ClientCount() == 0 {
		return
	}
	msg, err := protocol.NewPoseMessage(poseFrame(id, n, c))
	if err != nil {
		s.logger.Warn("pose frame encode failed", "character", id, "error", err)
		return
	}
	if err := s.poses.Publish(msg); err == nil {
		s.published.Inc()
	}
}

func poseFrame(id string, tick uint64, c *controller.Controller) protocol.PoseFrame {
	snap := c.Snapshot()
	frame := protocol.PoseFrame{
		Character: id,
		Time:      snap.Time,
		Tick:      tick,
		Motions:   make([]protocol.MotionState, 0, len(snap.Active)),
	}
	for _, m := range snap.Active {
		frame.Motions = append(frame.Motions, protocol.MotionState{
			ID:       m.ID.String(),
			Kind:     m.Kind,
			Phase:    m.Phase,
			Priority: m.Priority,
			Weight:   m.Weight,
		})
	}

	sk := c.Character().Skeleton()
	frame.Joints = make([]protocol.JointPose, 0, sk.Len())
	for j, n := 0, sk.Len(); j < n; j++ {
		idx := skeleton.JointIndex(j)
		p, q := sk.LocalPosition(idx), sk.LocalRotation(idx)
		frame.Joints = append(frame.Joints, protocol.JointPose{
			Name:     sk.Name(idx),
			Position: [3]float32{p[0], p[1], p[2]},
			Rotation: [4]float32{q.W, q.V[0], q.V[1], q.V[2]},
		})
	}
	return frame
}
