// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

package meshlink

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks inbound frame counts and error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames       uint64
	ValidFrames       uint64
	SensorFrames      uint64
	AckFrames         uint64
	MalformedFrames   uint64
	MalformedPayloads uint64
	UnknownTypes      uint64
	OtherErrors       uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records the outcome of handling one frame. f may be nil when the line
// did not decode.
func (s *Statistics) Update(f *Frame, err error) {
	s.TotalFrames++
	s.LastUpdateTime = time.Now()

	switch {
	case err == nil:
		s.ValidFrames++
		if f != nil {
			switch f.MsgType {
			case MsgSensor:
				s.SensorFrames++
			case MsgCommandAck:
				s.AckFrames++
			}
		}
	case errors.Is(err, ErrMalformedFrame):
		s.MalformedFrames++
	case errors.Is(err, ErrMalformedPayload):
		s.MalformedPayloads++
	case errors.Is(err, ErrUnknownMessageType):
		s.UnknownTypes++
	default:
		s.OtherErrors++
	}
}

// Errors returns the total number of failed frames
func (s *Statistics) Errors() uint64 {
	return s.MalformedFrames + s.MalformedPayloads + s.UnknownTypes + s.OtherErrors
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.Errors()) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var validPercent float64
	if s.TotalFrames > 0 {
		validPercent = float64(s.ValidFrames) * 100.0 / float64(s.TotalFrames)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("Valid Frames:    %8d (%.1f%%)\n", s.ValidFrames, validPercent)
	result += fmt.Sprintf("  Sensor:           %5d\n", s.SensorFrames)
	result += fmt.Sprintf("  Command Ack:      %5d\n", s.AckFrames)

	if s.MalformedFrames > 0 {
		result += fmt.Sprintf("Malformed Frames:%8d\n", s.MalformedFrames)
	}
	if s.MalformedPayloads > 0 {
		result += fmt.Sprintf("Bad Payloads:    %8d\n", s.MalformedPayloads)
	}
	if s.UnknownTypes > 0 {
		result += fmt.Sprintf("Unknown Types:   %8d\n", s.UnknownTypes)
	}
	if s.OtherErrors > 0 {
		result += fmt.Sprintf("Other Errors:    %8d\n", s.OtherErrors)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
