// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

package meshlink

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

// ============================================================
// Frame Decoding Tests
// ============================================================

func TestDecodeFrame_Valid(t *testing.T) {
	f, err := DecodeFrame("12:3:5:2:100,25,300\r")
	if err != nil {
		t.Fatalf("DecodeFrame error: %v", err)
	}
	if f.SourceMAC != 12 {
		t.Errorf("SourceMAC = %d, want 12", f.SourceMAC)
	}
	if f.SeqNum != 3 {
		t.Errorf("SeqNum = %d, want 3", f.SeqNum)
	}
	if f.MsgType != MsgSensor {
		t.Errorf("MsgType = %d, want %d", f.MsgType, MsgSensor)
	}
	if f.NumHops != 2 {
		t.Errorf("NumHops = %d, want 2", f.NumHops)
	}
	if f.Payload != "100,25,300" {
		t.Errorf("Payload = %q, want %q", f.Payload, "100,25,300")
	}
	if f.Raw != "12:3:5:2:100,25,300" {
		t.Errorf("Raw = %q, terminator should be stripped", f.Raw)
	}
}

func TestDecodeFrame_LeadingNewline(t *testing.T) {
	f, err := DecodeFrame("\n4:0:7:1:2049,1")
	if err != nil {
		t.Fatalf("DecodeFrame error: %v", err)
	}
	if f.SourceMAC != 4 || f.MsgType != MsgCommandAck {
		t.Errorf("got mac=%d type=%d, want mac=4 type=7", f.SourceMAC, f.MsgType)
	}
}

func TestDecodeFrame_Malformed(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"too few fields", "1:2:5:100,25,300"},
		{"too many fields", "1:2:5:0:100,25,300:extra"},
		{"non-numeric mac", "abc:2:5:0:1,2,3"},
		{"non-numeric seq", "1:x:5:0:1,2,3"},
		{"non-numeric type", "1:2:sensor:0:1,2,3"},
		{"non-numeric hops", "1:2:5::1,2,3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := DecodeFrame(tt.line)
			if !errors.Is(err, ErrMalformedFrame) {
				t.Fatalf("error = %v, want ErrMalformedFrame", err)
			}
			if f != nil {
				t.Errorf("expected no partial frame, got %+v", f)
			}
		})
	}
}

// ============================================================
// Sensor Payload Tests
// ============================================================

func TestDecodeSensorPayload_Standard(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    SensorReading
	}{
		{"plain", "100,25,300", SensorReading{Power: 100, Temperature: 25, Light: 300}},
		{"trailing separator", "1,2,3,", SensorReading{Power: 1, Temperature: 2, Light: 3}},
		{"negative temperature", "0,-5,12", SensorReading{Power: 0, Temperature: -5, Light: 12}},
		{"spaces", " 7, 8 ,9", SensorReading{Power: 7, Temperature: 8, Light: 9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeSensorPayload(tt.payload, LayoutStandard)
			if err != nil {
				t.Fatalf("DecodeSensorPayload error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeSensorPayload_Legacy(t *testing.T) {
	got, err := DecodeSensorPayload("1,22,40,310,95", LayoutLegacy)
	if err != nil {
		t.Fatalf("DecodeSensorPayload error: %v", err)
	}
	want := SensorReading{
		Status: ActionOn, HasStatus: true,
		Temperature: 22,
		Humidity:    40, HasHumidity: true,
		Light: 310,
		Power: 95,
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestDecodeSensorPayload_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		layout  SensorLayout
	}{
		{"standard two values", "1,2", LayoutStandard},
		{"standard four values", "1,2,3,4", LayoutStandard},
		{"standard legacy payload", "1,22,40,310,95", LayoutStandard},
		{"standard non-numeric", "1,two,3", LayoutStandard},
		{"standard empty", "", LayoutStandard},
		{"legacy three values", "1,2,3", LayoutLegacy},
		{"legacy bad status", "2,22,40,310,95", LayoutLegacy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSensorPayload(tt.payload, tt.layout)
			if !errors.Is(err, ErrMalformedPayload) {
				t.Errorf("error = %v, want ErrMalformedPayload", err)
			}
		})
	}
}

func TestDecodeFrameAndSensorPayload_FieldOrder(t *testing.T) {
	f, err := DecodeFrame("9:1:5:0:11,22,33")
	if err != nil {
		t.Fatalf("DecodeFrame error: %v", err)
	}
	r, err := DecodeSensorPayload(f.Payload, LayoutStandard)
	if err != nil {
		t.Fatalf("DecodeSensorPayload error: %v", err)
	}
	if r.Power != 11 || r.Temperature != 22 || r.Light != 33 {
		t.Errorf("field order not preserved: %+v", r)
	}
}

// ============================================================
// Ack Payload Tests
// ============================================================

func TestDecodeAckPayload(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Ack
		wantErr bool
	}{
		{"on", "2049,1", Ack{CommandID: 2049, Status: ActionOn}, false},
		{"off", "7,0", Ack{CommandID: 7, Status: ActionOff}, false},
		{"extra values ignored", "7,1,99", Ack{CommandID: 7, Status: ActionOn}, false},
		{"trailing separator", "7,0,", Ack{CommandID: 7, Status: ActionOff}, false},
		{"single value", "7", Ack{}, true},
		{"bad status", "7,2", Ack{}, true},
		{"non-numeric", "7,on", Ack{}, true},
		{"id out of range", "70000,1", Ack{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeAckPayload(tt.payload)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedPayload) {
					t.Errorf("error = %v, want ErrMalformedPayload", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeAckPayload error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

// ============================================================
// Action / Layout Parsing Tests
// ============================================================

func TestNormalizeAction(t *testing.T) {
	for in, want := range map[string]string{" on ": "ON", "off\n": "OFF", "ON": "ON", "dim": "DIM"} {
		if got := NormalizeAction(in); got != want {
			t.Errorf("NormalizeAction(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		in      string
		want    Action
		wantErr bool
	}{
		{"ON", ActionOn, false},
		{"OFF", ActionOff, false},
		{"on", 0, true},
		{"off", 0, true},
		{" ON ", 0, true},
		{"ON\r", 0, true},
		{"TOGGLE", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q", tt.in), func(t *testing.T) {
			got, err := ParseAction(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAction) {
					t.Errorf("error = %v, want ErrInvalidAction", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("ParseAction(%q) = %v, %v; want %v", tt.in, got, err, tt.want)
			}
		})
	}
}

func TestParseSensorLayout(t *testing.T) {
	if l, err := ParseSensorLayout(""); err != nil || l != LayoutStandard {
		t.Errorf("empty layout = %v, %v; want standard", l, err)
	}
	if l, err := ParseSensorLayout("Legacy"); err != nil || l != LayoutLegacy {
		t.Errorf("Legacy layout = %v, %v; want legacy", l, err)
	}
	if _, err := ParseSensorLayout("v3"); err == nil {
		t.Error("expected error for unknown layout")
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatFrame(t *testing.T) {
	f, err := DecodeFrame("12:3:5:2:100,25,300")
	if err != nil {
		t.Fatal(err)
	}
	out := FormatFrame(f, LayoutStandard)
	for _, want := range []string{"SENSOR_DATA", "mac=12", "Power: 100", "Light: 300"} {
		if !strings.Contains(out, want) {
			t.Errorf("FormatFrame output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatPayload_Undecodable(t *testing.T) {
	out := FormatPayload(MsgSensor, "1,2", LayoutStandard)
	if !strings.Contains(out, "malformed payload") {
		t.Errorf("expected decode error in output, got %q", out)
	}
}

func TestFormatMessageType(t *testing.T) {
	if got := FormatMessageType(MsgHandshakeAck); got != "HANDSHAKE_ACK" {
		t.Errorf("FormatMessageType(9) = %q", got)
	}
	if got := FormatMessageType(42); got != "UNKNOWN" {
		t.Errorf("FormatMessageType(42) = %q", got)
	}
}

// ============================================================
// Statistics Tests
// ============================================================

func TestStatistics_Update(t *testing.T) {
	s := NewStatistics()
	s.Update(&Frame{MsgType: MsgSensor}, nil)
	s.Update(&Frame{MsgType: MsgCommandAck}, nil)
	s.Update(nil, ErrMalformedFrame)
	s.Update(&Frame{MsgType: MsgSensor}, ErrMalformedPayload)
	s.Update(&Frame{MsgType: 42}, ErrUnknownMessageType)
	s.Update(&Frame{MsgType: MsgCommandAck}, errors.New("store down"))

	if s.TotalFrames != 6 {
		t.Errorf("TotalFrames = %d, want 6", s.TotalFrames)
	}
	if s.ValidFrames != 2 || s.SensorFrames != 1 || s.AckFrames != 1 {
		t.Errorf("valid=%d sensor=%d ack=%d", s.ValidFrames, s.SensorFrames, s.AckFrames)
	}
	if s.MalformedFrames != 1 || s.MalformedPayloads != 1 || s.UnknownTypes != 1 || s.OtherErrors != 1 {
		t.Errorf("unexpected error counters: %+v", s)
	}
	if s.Errors() != 4 {
		t.Errorf("Errors() = %d, want 4", s.Errors())
	}

	s.Reset()
	if s.TotalFrames != 0 || s.Errors() != 0 {
		t.Error("Reset should clear counters")
	}
}
