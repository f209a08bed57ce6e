package wire

import (
	"bytes"
	"reflect"
	"testing"
)

func TestMessageRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{
			name: "hello",
			msg:  Message{Type: MsgHello, Props: map[string]string{"client": "webadb"}},
		},
		{
			name: "challenge",
			msg:  Message{Type: MsgChallenge, Data: bytes.Repeat([]byte{0xAB}, 32)},
		},
		{
			name: "signature",
			msg:  Message{Type: MsgSignature, Key: []byte{1, 2, 3}, Data: []byte{4, 5, 6}},
		},
		{
			name: "push request",
			msg:  Message{Type: MsgRequest, ID: 7, Op: OpPush, Args: []string{"/data/local/tmp/server.jar"}, Size: 1 << 20, Mode: 0o644},
		},
		{
			name: "exec request",
			msg:  Message{Type: MsgRequest, ID: 8, Op: OpExec, Args: []string{"getprop", "ro.product.model"}},
		},
		{
			name: "error response",
			msg:  Message{Type: MsgResponse, ID: 8, Status: StatusNotFound, Error: "no such command"},
		},
		{
			name: "stream close",
			msg:  Message{Type: MsgStreamClose, ID: 8, Code: -1},
		},
		{
			name: "ping",
			msg:  Message{Type: MsgPing, ID: 42},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeMessage(&tt.msg)
			if err != nil {
				t.Fatalf("EncodeMessage failed: %v", err)
			}

			decoded, err := DecodeMessage(data)
			if err != nil {
				t.Fatalf("DecodeMessage failed: %v", err)
			}

			if !reflect.DeepEqual(*decoded, tt.msg) {
				t.Errorf("round trip mismatch:\n got %+v\nwant %+v", *decoded, tt.msg)
			}
		})
	}
}

func TestMessageValidate(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"unknown type", Message{Type: 99}},
		{"request without id", Message{Type: MsgRequest, Op: OpExec}},
		{"request bad op", Message{Type: MsgRequest, ID: 1, Op: 77}},
		{"data without id", Message{Type: MsgData, Data: []byte("x")}},
		{"empty challenge", Message{Type: MsgChallenge}},
		{"signature without key", Message{Type: MsgSignature, Data: []byte{1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EncodeMessage(&tt.msg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestDecodeMessageGarbage(t *testing.T) {
	if _, err := DecodeMessage([]byte{0xFF, 0x00}); err == nil {
		t.Error("expected decode error")
	}
}

func TestMessageIntegerKeys(t *testing.T) {
	data, err := EncodeMessage(&Message{Type: MsgPing, ID: 1})
	if err != nil {
		t.Fatal(err)
	}
	// map(2) {1: 20, 2: 1}
	want := []byte{0xA2, 0x01, 0x14, 0x02, 0x01}
	if !bytes.Equal(data, want) {
		t.Errorf("encoding = %x, want %x", data, want)
	}
}

func TestControlRoundTrip(t *testing.T) {
	controls := []Control{
		{Type: ControlKey, Action: ActionDown, Code: 29, Meta: 1},
		{Type: ControlPointer, Action: ActionMove, Pointer: 1, X: 540, Y: 1200, Width: 1080, Height: 2400, Buttons: 1},
		{Type: ControlScroll, X: 10, Y: 10, DY: -1},
		{Type: ControlBackOrScreenOn, Action: ActionUp},
	}

	for _, c := range controls {
		t.Run(c.Type.String(), func(t *testing.T) {
			data, err := EncodeControl(&c)
			if err != nil {
				t.Fatalf("EncodeControl failed: %v", err)
			}
			got, err := DecodeControl(data)
			if err != nil {
				t.Fatalf("DecodeControl failed: %v", err)
			}
			if *got != c {
				t.Errorf("got %+v, want %+v", *got, c)
			}
		})
	}
}

func TestControlValidate(t *testing.T) {
	bad := []Control{
		{Type: 0},
		{Type: ControlKey, Action: ActionMove},
		{Type: ControlPointer, Action: 9},
	}
	for _, c := range bad {
		if _, err := EncodeControl(&c); err == nil {
			t.Errorf("expected error for %+v", c)
		}
	}
}

func TestStringers(t *testing.T) {
	if MsgStreamClose.String() != "STREAM_CLOSE" {
		t.Errorf("MsgStreamClose.String() = %q", MsgStreamClose.String())
	}
	if OpPowerButton.String() != "PowerButton" {
		t.Errorf("OpPowerButton.String() = %q", OpPowerButton.String())
	}
	if StatusSizeMismatch.String() != "SIZE_MISMATCH" {
		t.Errorf("StatusSizeMismatch.String() = %q", StatusSizeMismatch.String())
	}
	if Status(200).String() != "UNKNOWN" {
		t.Errorf("Status(200).String() = %q", Status(200).String())
	}
}
