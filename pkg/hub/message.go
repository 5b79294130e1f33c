// Package hub provides a thread-safe websocket broadcast hub
// using the idiomatic Go channel-based fan-out pattern.
package hub

import "github.com/teslashibe/go-motion/pkg/protocol"

// Message is a pre-encoded text frame broadcast to every client
type Message struct {
	Data []byte
}

// Encode wraps a protocol message for broadcast
func Encode(msg *protocol.Message) (Message, error) {
	data, err := msg.Bytes()
	if err != nil {
		return Message{}, err
	}
	return Message{Data: data}, nil
}
