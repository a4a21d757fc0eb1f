package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeCmd     = "CMD"
	TypeState   = "STATE"
	TypeAck     = "ACK"
)

// Driver command types carried inside a CMD message.
const (
	CmdThrottleUp     = "THROTTLE_UP"
	CmdThrottleDown   = "THROTTLE_DOWN"
	CmdBrakeOn        = "BRAKE_ON"
	CmdBrakeOff       = "BRAKE_OFF"
	CmdStart          = "START"
	CmdStop           = "STOP"
	CmdHorn           = "HORN"
	CmdLoad           = "LOAD"
	CmdFill           = "FILL"
	CmdSetDestination = "SET_DESTINATION"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
