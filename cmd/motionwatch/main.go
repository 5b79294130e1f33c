// Command motionwatch follows the pose stream of a motionview server and
// prints the active motions of every frame.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/go-motion/internal/log"
	"github.com/teslashibe/go-motion/pkg/protocol"
)

func main() {
	addr := flag.String("addr", "localhost:8090", "Inspector address")
	character := flag.String("character", "", "Only show this character")
	joint := flag.String("joint", "", "Also print this joint's rotation (e.g. mHead)")
	play := flag.String("play", "", "Start this clip on -character before watching")
	flag.Parse()

	log.Init(os.Getenv("MOTION_LOG_LEVEL"))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}

	if *play != "" {
		if err := sendStart(ctx, dialer, *addr, *character, *play); err != nil {
			fmt.Fprintf(os.Stderr, "motionwatch: %v\n", err)
			os.Exit(1)
		}
	}

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws/poses"}
	ws, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "motionwatch: connect %s: %v\n", u.String(), err)
		os.Exit(1)
	}
	defer ws.Close()
	log.Info("watching pose stream", "url", u.String())

	go func() {
		<-ctx.Done()
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("stream closed", "error", err)
			}
			return
		}
		msg, err := protocol.ParseMessage(data)
		if err != nil || msg.Type != protocol.TypePose {
			continue
		}
		frame, err := msg.GetPoseFrame()
		if err != nil {
			log.Debug("bad pose frame", "error", err)
			continue
		}
		if *character != "" && frame.Character != *character {
			continue
		}
		printFrame(frame, *joint)
	}
}

func printFrame(f *protocol.PoseFrame, joint string) {
	fmt.Printf("%-12s t=%7.3f tick=%-6d motions=%d\n", f.Character, f.Time, f.Tick, len(f.Motions))
	for _, m := range f.Motions {
		fmt.Printf("    %-9s %-8s %s prio=%s w=%.2f\n", m.Kind, m.Phase, m.ID, m.Priority, m.Weight)
	}
	if joint == "" {
		return
	}
	for _, j := range f.Joints {
		if j.Name == joint {
			q := j.Rotation
			fmt.Printf("    %s rot=(w %.3f x %.3f y %.3f z %.3f)\n", j.Name, q[0], q[1], q[2], q[3])
		}
	}
}

// sendStart issues a start command on the control socket and waits for the ack.
func sendStart(ctx context.Context, dialer websocket.Dialer, addr, character, clip string) error {
	if character == "" {
		return fmt.Errorf("-play needs -character")
	}
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws/control"}
	ws, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", u.String(), err)
	}
	defer ws.Close()

	msg, err := protocol.NewCommandMessage(protocol.TypeStart, protocol.Command{Character: character, Clip: clip})
	if err != nil {
		return err
	}
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	ws.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, reply, err := ws.ReadMessage()
	if err != nil {
		return fmt.Errorf("waiting for ack: %w", err)
	}
	resp, err := protocol.ParseMessage(reply)
	if err != nil {
		return err
	}
	ack, err := resp.GetAckData()
	if err != nil {
		return fmt.Errorf("unexpected reply %s", resp.Type)
	}
	if !ack.OK {
		return fmt.Errorf("start %s: %s", clip, ack.Error)
	}
	log.Info("clip started", "character", character, "clip", clip)
	return nil
}
