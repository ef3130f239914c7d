// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cmake

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
)

// cookieLength is the length of the request correlation token.
const cookieLength = 8

// newCookie returns a random correlation token of lowercase ASCII letters.
//
// The token is opaque: requests are strictly serialized, so correlation only
// has to distinguish a reply from the out-of-band frames interleaved with it,
// not route between concurrent requests.
func newCookie() string {
	b := make([]byte, cookieLength)
	for i := range b {
		b[i] = byte('a' + rand.Intn(26))
	}
	return string(b)
}

// Protocol handles sentinel-framed message exchange with a cmake server.
//
// Description:
//
//	Implements the cmake server wire format: every message is a JSON payload
//	wrapped between the FrameOpen and FrameClose sentinel lines. The reader
//	accumulates non-blank lines until the closing sentinel and decodes the
//	interior as one message. The writer assembles the whole frame in memory
//	and hands it to the connection in a single Write call, so nothing sits
//	in a client-side buffer while the server waits for the request.
//
// Thread Safety:
//
//	Writes are serialized by an internal mutex. Reads must come from a
//	single goroutine; the Server's request lifecycle guarantees that.
type Protocol struct {
	reader  *bufio.Reader
	writer  io.Writer
	writeMu sync.Mutex
}

// NewProtocol creates a protocol codec over the given reader and writer.
//
// Inputs:
//
//	r - Reader for server frames (the connected socket)
//	w - Writer for client frames (usually the same socket)
//
// Outputs:
//
//	*Protocol - The codec
func NewProtocol(r io.Reader, w io.Writer) *Protocol {
	var reader *bufio.Reader
	if r != nil {
		reader = bufio.NewReader(r)
	}
	return &Protocol{
		reader: reader,
		writer: w,
	}
}

// WriteFrame marshals v and writes it as one sentinel-wrapped frame.
//
// Description:
//
//	Marshals the payload, wraps it between the sentinel lines and writes
//	the complete frame with a single Write. The single write matters: the
//	server parses frames line by line and answers nothing until the closing
//	sentinel arrives, so a partially flushed frame deadlocks the exchange.
//
// Inputs:
//
//	v - Request payload (will be JSON-marshaled)
//
// Outputs:
//
//	error - Non-nil if marshaling or the socket write failed
//
// Thread Safety:
//
//	Safe for concurrent use.
func (p *Protocol) WriteFrame(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	var buf bytes.Buffer
	buf.Grow(len(data) + len(FrameOpen) + len(FrameClose) + 3)
	buf.WriteString(FrameOpen)
	buf.WriteByte('\n')
	buf.Write(data)
	buf.WriteByte('\n')
	buf.WriteString(FrameClose)
	buf.WriteByte('\n')

	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if _, err := p.writer.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one sentinel-wrapped frame and decodes its payload.
//
// Description:
//
//	Blocks on the socket reading lines until the closing sentinel appears.
//	Blank lines are discarded; the first retained line is the opening
//	sentinel and everything between the sentinels is the JSON payload.
//	Routing fields are decoded into the Frame and the raw payload is kept
//	for typed decoding of reply bodies.
//
// Outputs:
//
//	*Frame - The decoded frame
//	error - Non-nil on socket errors (including io.EOF when the server
//	        closed the connection) or undecodable payloads
//
// Thread Safety:
//
//	Must be called from a single goroutine.
func (p *Protocol) ReadFrame() (*Frame, error) {
	if p.reader == nil {
		return nil, fmt.Errorf("no reader configured")
	}

	var lines []string
	for {
		raw, err := p.reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("read frame: %w", err)
		}
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if line == FrameClose {
			break
		}
		lines = append(lines, line)
	}

	// lines[0] is the opening sentinel; the interior is the payload.
	if len(lines) < 2 {
		return nil, fmt.Errorf("empty frame")
	}
	payload := []byte(strings.Join(lines[1:], "\n"))

	var frame Frame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	frame.Raw = payload
	return &frame, nil
}
