package main

import (
	"bytes"
	"encoding/json"
)

const (
	typeEcho      = "echo"
	typeBroadcast = "broadcast"
	typeError     = "error"

	invalidJSONMessage = "Invalid JSON format"
)

// inbound is a decoded client message. Both fields are optional.
type inbound struct {
	Message   string
	Timestamp string
}

// outbound is the envelope of every frame the relay sends.
type outbound struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// decodeInbound parses a text frame. Any well-formed JSON document is
// accepted: fields are read from an object, anything else yields empty
// fields. Non-string field values are kept as their compact JSON text.
func decodeInbound(data []byte) (inbound, error) {
	var doc json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return inbound{}, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc, &fields); err != nil {
		// Valid JSON, but not an object.
		return inbound{}, nil
	}
	return inbound{
		Message:   fieldText(fields["message"]),
		Timestamp: fieldText(fields["timestamp"]),
	}, nil
}

func fieldText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func echoReply(in inbound) outbound {
	return outbound{Type: typeEcho, Message: "Server received: " + in.Message, Timestamp: in.Timestamp}
}

func broadcastReply(in inbound) outbound {
	return outbound{Type: typeBroadcast, Message: "Broadcast: " + in.Message, Timestamp: in.Timestamp}
}

func errorReply() outbound {
	return outbound{Type: typeError, Message: invalidJSONMessage, Timestamp: ""}
}

func (o outbound) encode() []byte {
	// Marshalling three strings cannot fail.
	b, _ := json.Marshal(o)
	return b
}
