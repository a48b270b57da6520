// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

package meshlink

import "fmt"

// AnomalyType represents different kinds of suspicious frames
type AnomalyType int

const (
	AnomalyInvalidMAC AnomalyType = iota
	AnomalyHopCount
	AnomalyNegativeReading
	AnomalySeqGap
	AnomalySeqRepeat
	AnomalySeqReset
)

// MaxExpectedHops is the deepest mesh route considered normal
const MaxExpectedHops = 8

// ValidationError describes one anomaly in an otherwise decodable frame
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateFrame checks a decoded frame for values the gateway should never report.
// Returns an empty slice when the frame looks sane.
func ValidateFrame(f *Frame, layout SensorLayout) []ValidationError {
	errors := []ValidationError{}

	if f.SourceMAC < 0 || f.SourceMAC > 0xFF {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidMAC,
			Message: fmt.Sprintf("source mac=%d is not addressable with a single byte", f.SourceMAC),
			Details: map[string]interface{}{"mac": f.SourceMAC},
		})
	}

	if f.NumHops < 0 || f.NumHops > MaxExpectedHops {
		errors = append(errors, ValidationError{
			Type:    AnomalyHopCount,
			Message: fmt.Sprintf("hop count=%d (expected 0..%d)", f.NumHops, MaxExpectedHops),
			Details: map[string]interface{}{"hops": f.NumHops, "max": MaxExpectedHops},
		})
	}

	if f.MsgType == MsgSensor {
		if r, err := DecodeSensorPayload(f.Payload, layout); err == nil {
			errors = append(errors, validateReading(r)...)
		}
	}

	return errors
}

func validateReading(r SensorReading) []ValidationError {
	errors := []ValidationError{}
	values := []struct {
		name  string
		value int
		ok    bool
	}{
		{"power", r.Power, true},
		{"temperature", r.Temperature, true},
		{"light", r.Light, true},
		{"humidity", r.Humidity, r.HasHumidity},
	}
	for _, v := range values {
		if v.ok && v.value < 0 {
			errors = append(errors, ValidationError{
				Type:    AnomalyNegativeReading,
				Message: fmt.Sprintf("negative %s=%d", v.name, v.value),
				Details: map[string]interface{}{"field": v.name, "value": v.value},
			})
		}
	}
	return errors
}

// SeqTracker follows per-outlet sequence numbers to detect lost or repeated frames.
// It is not safe for concurrent use.
type SeqTracker struct {
	last map[int]int
}

// NewSeqTracker creates an empty tracker
func NewSeqTracker() *SeqTracker {
	return &SeqTracker{last: make(map[int]int)}
}

// Check records f and returns an anomaly if its sequence number does not
// follow the previous frame from the same MAC. The first frame from a MAC is
// never an anomaly.
func (t *SeqTracker) Check(f *Frame) *ValidationError {
	prev, seen := t.last[f.SourceMAC]
	t.last[f.SourceMAC] = f.SeqNum
	if !seen {
		return nil
	}

	details := map[string]interface{}{"mac": f.SourceMAC, "prev": prev, "seq": f.SeqNum}
	switch {
	case f.SeqNum == prev+1:
		return nil
	case f.SeqNum == prev:
		return &ValidationError{
			Type:    AnomalySeqRepeat,
			Message: fmt.Sprintf("mac=%d repeated seq=%d", f.SourceMAC, f.SeqNum),
			Details: details,
		}
	case f.SeqNum > prev:
		details["missed"] = f.SeqNum - prev - 1
		return &ValidationError{
			Type:    AnomalySeqGap,
			Message: fmt.Sprintf("mac=%d missed %d frame(s) between seq=%d and seq=%d", f.SourceMAC, f.SeqNum-prev-1, prev, f.SeqNum),
			Details: details,
		}
	default:
		return &ValidationError{
			Type:    AnomalySeqReset,
			Message: fmt.Sprintf("mac=%d sequence restarted at seq=%d (was %d)", f.SourceMAC, f.SeqNum, prev),
			Details: details,
		}
	}
}

// Reset forgets all tracked sequence numbers
func (t *SeqTracker) Reset() {
	t.last = make(map[int]int)
}
