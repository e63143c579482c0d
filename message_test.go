package main

import (
	"encoding/json"
	"testing"
	"testing/quick"
)

func TestDecodeInbound(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want inbound
	}{
		{"both fields", `{"message":"hi","timestamp":"t1"}`, inbound{"hi", "t1"}},
		{"field order", `{"timestamp":"t1","message":"hi"}`, inbound{"hi", "t1"}},
		{"missing fields", `{}`, inbound{}},
		{"extra fields", `{"message":"hi","user":"bob"}`, inbound{Message: "hi"}},
		{"null fields", `{"message":null,"timestamp":null}`, inbound{}},
		{"number", `{"message":42,"timestamp":1.5}`, inbound{"42", "1.5"}},
		{"bool", `{"message":true}`, inbound{Message: "true"}},
		{"object", `{"message":{ "a" : [1, 2] }}`, inbound{Message: `{"a":[1,2]}`}},
		{"array document", `["hi"]`, inbound{}},
		{"string document", `"hi"`, inbound{}},
		{"unicode", `{"message":"héllo ☃"}`, inbound{Message: "héllo ☃"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeInbound([]byte(tt.in))
			if err != nil {
				t.Fatal("Expectation: nil, Received:", err)
			}
			if got != tt.want {
				t.Fatal("Expectation:", tt.want, "Received:", got)
			}
		})
	}
}

func TestDecodeInboundInvalid(t *testing.T) {
	for _, in := range []string{"not json", "", "{", `{"message":"hi"`, `{"message":"hi"} trailing`,
		`{"message": NaN}`, `{"message": Infinity}`, `{"message": -Infinity}`} {
		if _, err := decodeInbound([]byte(in)); err == nil {
			t.Fatalf("Expectation: error for %q, Received: nil", in)
		}
	}
}

func TestReplies(t *testing.T) {
	in := inbound{Message: "hi", Timestamp: "t1"}

	if got := decodeOutbound(t, echoReply(in).encode()); got != (outbound{"echo", "Server received: hi", "t1"}) {
		t.Fatal("Expectation: echo envelope, Received:", got)
	}
	if got := decodeOutbound(t, broadcastReply(in).encode()); got != (outbound{"broadcast", "Broadcast: hi", "t1"}) {
		t.Fatal("Expectation: broadcast envelope, Received:", got)
	}

	var fields map[string]string
	if err := json.Unmarshal(errorReply().encode(), &fields); err != nil {
		t.Fatal(err)
	}
	if len(fields) != 3 || fields["type"] != "error" || fields["message"] != "Invalid JSON format" || fields["timestamp"] != "" {
		t.Fatal("Expectation: error envelope with empty timestamp, Received:", fields)
	}
}

// Any string a client sends comes back prefixed, whatever it contains.
func TestEchoProperty(t *testing.T) {
	f := func(message, timestamp string) bool {
		frame, _ := json.Marshal(map[string]string{"message": message, "timestamp": timestamp})
		in, err := decodeInbound(frame)
		if err != nil {
			return false
		}
		echo := decodeOutbound(t, echoReply(in).encode())
		fan := decodeOutbound(t, broadcastReply(in).encode())
		return echo.Message == "Server received: "+in.Message &&
			fan.Message == "Broadcast: "+in.Message &&
			echo.Timestamp == timestamp && fan.Timestamp == timestamp &&
			in.Message == message
	}
	if err := quick.Check(f, nil); err != nil {
		t.Fatal(err)
	}
}

func decodeOutbound(t *testing.T, data []byte) outbound {
	t.Helper()
	var o outbound
	if err := json.Unmarshal(data, &o); err != nil {
		t.Fatal("ERR: undecodable envelope", string(data), err)
	}
	return o
}
