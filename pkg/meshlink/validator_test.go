// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

package meshlink

import "testing"

func mustDecode(t *testing.T, line string) *Frame {
	t.Helper()
	f, err := DecodeFrame(line)
	if err != nil {
		t.Fatalf("DecodeFrame(%q) error: %v", line, err)
	}
	return f
}

func TestValidateFrame_Clean(t *testing.T) {
	errs := ValidateFrame(mustDecode(t, "12:1:5:2:100,25,300"), LayoutStandard)
	if len(errs) != 0 {
		t.Errorf("expected no anomalies, got %v", errs)
	}
}

func TestValidateFrame_Anomalies(t *testing.T) {
	tests := []struct {
		line   string
		layout SensorLayout
		want   AnomalyType
	}{
		{"300:1:5:0:1,2,3", LayoutStandard, AnomalyInvalidMAC},
		{"-1:1:7:0:2048,1", LayoutStandard, AnomalyInvalidMAC},
		{"1:1:5:20:1,2,3", LayoutStandard, AnomalyHopCount},
		{"1:1:5:0:-5,2,3", LayoutStandard, AnomalyNegativeReading},
		{"1:1:5:0:1,22,-4,500,75", LayoutLegacy, AnomalyNegativeReading},
	}

	for _, tt := range tests {
		errs := ValidateFrame(mustDecode(t, tt.line), tt.layout)
		if len(errs) != 1 {
			t.Errorf("%q: expected 1 anomaly, got %d (%v)", tt.line, len(errs), errs)
			continue
		}
		if errs[0].Type != tt.want {
			t.Errorf("%q: anomaly type = %d, want %d", tt.line, errs[0].Type, tt.want)
		}
		if errs[0].Error() == "" {
			t.Errorf("%q: empty message", tt.line)
		}
	}
}

func TestValidateFrame_UndecodablePayloadIgnored(t *testing.T) {
	// Payload errors are the decoder's concern, not the validator's
	errs := ValidateFrame(mustDecode(t, "1:1:5:0:x"), LayoutStandard)
	if len(errs) != 0 {
		t.Errorf("expected no anomalies, got %v", errs)
	}
}

func TestSeqTracker(t *testing.T) {
	tr := NewSeqTracker()

	steps := []struct {
		line string
		want *AnomalyType
	}{
		{"1:10:5:0:1,2,3", nil},
		{"1:11:5:0:1,2,3", nil},
		{"2:500:5:0:1,2,3", nil},
		{"1:11:5:0:1,2,3", ptr(AnomalySeqRepeat)},
		{"1:15:5:0:1,2,3", ptr(AnomalySeqGap)},
		{"1:0:5:0:1,2,3", ptr(AnomalySeqReset)},
		{"1:1:7:0:2048,1", nil},
		{"2:501:5:0:1,2,3", nil},
	}

	for i, s := range steps {
		got := tr.Check(mustDecode(t, s.line))
		switch {
		case s.want == nil && got != nil:
			t.Errorf("step %d: unexpected anomaly %v", i, got)
		case s.want != nil && got == nil:
			t.Errorf("step %d: expected anomaly %d, got none", i, *s.want)
		case s.want != nil && got.Type != *s.want:
			t.Errorf("step %d: anomaly = %d, want %d", i, got.Type, *s.want)
		}
	}

	gap := NewSeqTracker()
	gap.Check(mustDecode(t, "3:1:5:0:1,2,3"))
	v := gap.Check(mustDecode(t, "3:5:5:0:1,2,3"))
	if v == nil || v.Details["missed"] != 3 {
		t.Errorf("expected 3 missed frames, got %v", v)
	}

	tr.Reset()
	if got := tr.Check(mustDecode(t, "1:99:5:0:1,2,3")); got != nil {
		t.Errorf("after Reset: unexpected anomaly %v", got)
	}
}

func ptr(a AnomalyType) *AnomalyType {
	return &a
}
