// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The gatewayd Authors

package transport

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/dicio/gatewayd/pkg/meshlink"
)

// DefaultMaxFrameSize bounds a single inbound line, terminator excluded
const DefaultMaxFrameSize = 4096

// FrameReader splits a byte stream on the carriage-return terminator.
//
// A run of more than the size limit without a terminator is discarded up to
// and including the next terminator, and Next reports it as ErrFrameTooLong.
// Reading may continue after that error; the stream is back in sync.
type FrameReader struct {
	r *bufio.Reader
}

// NewFrameReader reads lines of at most max bytes from r. A non-positive max
// uses DefaultMaxFrameSize.
func NewFrameReader(r io.Reader, max int) *FrameReader {
	if max <= 0 {
		max = DefaultMaxFrameSize
	}
	return &FrameReader{r: bufio.NewReaderSize(r, max+1)}
}

// Next returns the next line without its terminator. The slice is only valid
// until the following call. An unterminated tail is returned before io.EOF.
func (fr *FrameReader) Next() ([]byte, error) {
	line, err := fr.r.ReadSlice(meshlink.Terminator)
	switch {
	case err == nil:
		return line[:len(line)-1], nil
	case errors.Is(err, bufio.ErrBufferFull):
		return nil, fr.discard(len(line))
	case errors.Is(err, io.EOF) && len(line) > 0:
		return line, nil
	default:
		return nil, err
	}
}

func (fr *FrameReader) discard(dropped int) error {
	for {
		line, err := fr.r.ReadSlice(meshlink.Terminator)
		dropped += len(line)
		switch {
		case err == nil:
			return fmt.Errorf("%w: discarded %d bytes", ErrFrameTooLong, dropped)
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		default:
			return err
		}
	}
}
