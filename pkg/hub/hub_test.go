package hub

import (
	"net"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	fws "github.com/gofiber/websocket/v2"
	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-motion/pkg/protocol"
)

// serve starts app on a free local port and returns its websocket base URL.
func serve(t *testing.T, app *fiber.App) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go app.Listener(ln)
	t.Cleanup(func() { app.Shutdown() })
	return "ws://" + ln.Addr().String()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewHub(t *testing.T) {
	h := New("test")
	if h.ClientCount() != 0 {
		t.Error("ClientCount should be 0 initially")
	}
	if h.IsRunning() {
		t.Error("hub should not run before Run")
	}
}

func TestBroadcastNeverBlocks(t *testing.T) {
	h := New("test")
	for i := 0; i < 300; i++ {
		h.Broadcast(Message{Data: []byte("{}")})
	}
	if h.Dropped() != 300-256 {
		t.Errorf("Dropped = %d, want %d", h.Dropped(), 300-256)
	}
}

func TestPublishReachesClients(t *testing.T) {
	h := New("poses")
	go h.Run()
	defer h.Close()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws", h.Handler())
	base := serve(t, app)

	var conns []*websocket.Conn
	for i := 0; i < 2; i++ {
		ws, _, err := websocket.DefaultDialer.Dial(base+"/ws", nil)
		if err != nil {
			t.Fatalf("WebSocket dial error: %v", err)
		}
		defer ws.Close()
		conns = append(conns, ws)
	}
	waitFor(t, "clients", func() bool { return h.ClientCount() == 2 })

	msg, _ := protocol.NewPoseMessage(protocol.PoseFrame{Character: "a", Tick: 7})
	if err := h.Publish(msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for i, ws := range conns {
		ws.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("client %d read: %v", i, err)
		}
		got, err := protocol.ParseMessage(data)
		if err != nil {
			t.Fatalf("client %d parse: %v", i, err)
		}
		frame, _ := got.GetPoseFrame()
		if got.Type != protocol.TypePose || frame.Tick != 7 {
			t.Errorf("client %d: got %s tick %d", i, got.Type, frame.Tick)
		}
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	h := New("poses")
	go h.Run()
	defer h.Close()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws", h.Handler())
	base := serve(t, app)

	ws, _, err := websocket.DefaultDialer.Dial(base+"/ws", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	waitFor(t, "connect", func() bool { return h.ClientCount() == 1 })

	ws.Close()
	waitFor(t, "disconnect", func() bool { return h.ClientCount() == 0 })
}

func TestRunOutlivesWriter(t *testing.T) {
	h := New("poses")
	go h.Run()
	defer h.Close()

	writerDone := make(chan bool, 1)
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/ws", fws.New(func(conn *fws.Conn) {
		client := NewClient(h, conn)
		if client == nil {
			return
		}
		client.Run()
		select {
		case <-client.done:
			writerDone <- true
		default:
			writerDone <- false
		}
	}))
	base := serve(t, app)

	ws, _, err := websocket.DefaultDialer.Dial(base+"/ws", nil)
	if err != nil {
		t.Fatalf("WebSocket dial error: %v", err)
	}
	waitFor(t, "connect", func() bool { return h.ClientCount() == 1 })
	h.Broadcast(Message{Data: []byte("{}")})

	ws.Close()
	select {
	case ok := <-writerDone:
		if !ok {
			t.Error("Run returned while the writer still held the connection")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after disconnect")
	}
}

func TestCloseStopsRun(t *testing.T) {
	h := New("test")
	done := make(chan struct{})
	go func() {
		h.Run()
		close(done)
	}()
	waitFor(t, "run", h.IsRunning)

	h.Close()
	h.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}
