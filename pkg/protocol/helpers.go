package protocol

// =============================================================================
// Helper functions for creating messages
// =============================================================================

// NewPoseMessage creates a pose frame message
func NewPoseMessage(frame PoseFrame) (*Message, error) {
	return NewMessage(TypePose, frame)
}

// NewCommandMessage creates a start, stop or flush command
func NewCommandMessage(t MessageType, cmd Command) (*Message, error) {
	return NewMessage(t, cmd)
}

// NewAckMessage answers command t. A nil err acknowledges success.
func NewAckMessage(t MessageType, err error) (*Message, error) {
	ack := AckData{Command: t, OK: err == nil}
	if err != nil {
		ack.Error = err.Error()
	}
	return NewMessage(TypeAck, ack)
}

// NewErrorMessage reports a message that could not be handled
func NewErrorMessage(err error) (*Message, error) {
	return NewMessage(TypeError, ErrorData{Error: err.Error()})
}

// NewPingMessage creates a ping message
func NewPingMessage(id string) (*Message, error) {
	return NewMessage(TypePing, PingData{
		ID:        id,
		Timestamp: 0, // Will be set by NewMessage
	})
}

// NewPongMessage creates a pong response message
func NewPongMessage(id string, pingTS, pongTS int64) (*Message, error) {
	return NewMessage(TypePong, PongData{
		ID:        id,
		PingTS:    pingTS,
		PongTS:    pongTS,
		LatencyMs: pongTS - pingTS,
	})
}

// =============================================================================
// Helper functions for parsing messages
// =============================================================================

// GetPoseFrame extracts a pose frame from a message
func (m *Message) GetPoseFrame() (*PoseFrame, error) {
	var data PoseFrame
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetCommand extracts a command from a message
func (m *Message) GetCommand() (*Command, error) {
	var data Command
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetAckData extracts an acknowledgement from a message
func (m *Message) GetAckData() (*AckData, error) {
	var data AckData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPingData extracts ping data from a message
func (m *Message) GetPingData() (*PingData, error) {
	var data PingData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetPongData extracts pong data from a message
func (m *Message) GetPongData() (*PongData, error) {
	var data PongData
	if err := m.ParseData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}
