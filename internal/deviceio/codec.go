package deviceio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/laurabot-hal/internal/hal"
)

// Command operations understood by Laura-bot hardware.
const (
	OpPing      = "ping"
	OpSpeak     = "speak"
	OpListen    = "listen"
	OpMove      = "move"
	OpRecognize = "recognize"
)

// Command is a request sent to a device.
type Command struct {
	Op        string `json:"op"`
	Text      string `json:"text,omitempty"`
	Actuator  string `json:"actuator,omitempty"`
	Position  *int   `json:"position,omitempty"`
	TimeoutMS int64  `json:"timeout_ms,omitempty"`
}

// Reply is a device's answer to a Command.
//
// Text carries the transcript for listen and the "left,right" pattern pair
// for recognize.
type Reply struct {
	OK    bool   `json:"ok"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// EncodeCommand renders cmd for a transport kind.
//
// Exec helpers read plain text on stdin: speak sends the text itself and
// every other operation sends nothing. Serial and MQTT devices receive a
// JSON object.
func EncodeCommand(kind string, cmd Command) ([]byte, error) {
	if kind == KindExec {
		if cmd.Op == OpSpeak {
			return []byte(cmd.Text), nil
		}
		return nil, nil
	}
	b, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("encoding %s command: %w", cmd.Op, err)
	}
	return b, nil
}

// DecodeReply parses a device reply. JSON objects are decoded as Reply;
// anything else is treated as a successful plain-text answer, which is what
// exec helpers print on stdout.
func DecodeReply(raw []byte) (Reply, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var r Reply
		if err := json.Unmarshal(trimmed, &r); err != nil {
			return Reply{}, fmt.Errorf("%w: %w", ErrMalformedReply, err)
		}
		return r, nil
	}
	return Reply{OK: true, Text: string(trimmed)}, nil
}

// Transact performs one request/reply exchange with an open device.
// A reply reporting failure is returned as hal.ErrDeviceReadFailure.
func Transact(ctx context.Context, io hal.DeviceIO, h hal.Handle, cmd Command) (Reply, error) {
	payload, err := EncodeCommand(h.Candidate.Kind, cmd)
	if err != nil {
		return Reply{}, err
	}
	if err := io.Write(ctx, h, payload); err != nil {
		return Reply{}, fmt.Errorf("%w: write %s: %w", hal.ErrDeviceReadFailure, h.Candidate, err)
	}
	raw, err := io.Read(ctx, h)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: read %s: %w", hal.ErrDeviceReadFailure, h.Candidate, err)
	}
	reply, err := DecodeReply(raw)
	if err != nil {
		return Reply{}, fmt.Errorf("%w: %w", hal.ErrDeviceReadFailure, err)
	}
	if !reply.OK {
		return reply, fmt.Errorf("%w: %s: %s", hal.ErrDeviceReadFailure, h.Candidate, reply.Error)
	}
	return reply, nil
}
