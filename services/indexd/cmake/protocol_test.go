// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cmake

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"
)

// countingWriter records how many Write calls it received.
type countingWriter struct {
	buf    bytes.Buffer
	writes int
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.writes++
	return w.buf.Write(p)
}

func TestNewCookie(t *testing.T) {
	t.Run("has fixed length", func(t *testing.T) {
		cookie := newCookie()
		if len(cookie) != cookieLength {
			t.Errorf("len = %d, want %d", len(cookie), cookieLength)
		}
	})

	t.Run("uses only lowercase ASCII letters", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			cookie := newCookie()
			for _, c := range cookie {
				if c < 'a' || c > 'z' {
					t.Fatalf("cookie %q contains %q", cookie, c)
				}
			}
		}
	})
}

func TestProtocol_WriteFrame(t *testing.T) {
	t.Run("wraps payload in sentinels", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewProtocol(nil, &buf)

		if err := p.WriteFrame(basicRequest{Type: TypeCompute, Cookie: "abcdefgh"}); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}

		output := buf.String()
		if !strings.HasPrefix(output, FrameOpen+"\n") {
			t.Errorf("missing opening sentinel in: %s", output)
		}
		if !strings.HasSuffix(output, "\n"+FrameClose+"\n") {
			t.Errorf("missing closing sentinel in: %s", output)
		}
	})

	t.Run("writes valid JSON body", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewProtocol(nil, &buf)

		if err := p.WriteFrame(basicRequest{Type: TypeCompute, Cookie: "abcdefgh"}); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, `"type":"compute"`) {
			t.Errorf("missing type field in: %s", output)
		}
		if !strings.Contains(output, `"cookie":"abcdefgh"`) {
			t.Errorf("missing cookie field in: %s", output)
		}
	})

	t.Run("emits the frame as a single write", func(t *testing.T) {
		w := &countingWriter{}
		p := NewProtocol(nil, w)

		if err := p.WriteFrame(basicRequest{Type: TypeCodemodel, Cookie: "abcdefgh"}); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}

		if w.writes != 1 {
			t.Errorf("writes = %d, want 1", w.writes)
		}
	})
}

func TestProtocol_ReadFrame(t *testing.T) {
	t.Run("reads valid frame", func(t *testing.T) {
		input := FrameOpen + "\n" +
			`{"type":"reply","cookie":"abcdefgh","inReplyTo":"compute"}` + "\n" +
			FrameClose + "\n"
		p := NewProtocol(strings.NewReader(input), nil)

		frame, err := p.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}

		if frame.Type != TypeReply {
			t.Errorf("Type = %q, want %q", frame.Type, TypeReply)
		}
		if frame.Cookie != "abcdefgh" {
			t.Errorf("Cookie = %q, want %q", frame.Cookie, "abcdefgh")
		}
		if frame.InReplyTo != TypeCompute {
			t.Errorf("InReplyTo = %q, want %q", frame.InReplyTo, TypeCompute)
		}
	})

	t.Run("skips blank lines", func(t *testing.T) {
		input := "\n\n" + FrameOpen + "\n\n" +
			`{"type":"hello"}` + "\n\n" +
			FrameClose + "\n"
		p := NewProtocol(strings.NewReader(input), nil)

		frame, err := p.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if frame.Type != TypeHello {
			t.Errorf("Type = %q, want %q", frame.Type, TypeHello)
		}
	})

	t.Run("joins multi-line payloads", func(t *testing.T) {
		input := FrameOpen + "\n" +
			`{"type":"reply",` + "\n" +
			`"cookie":"zzzzzzzz"}` + "\n" +
			FrameClose + "\n"
		p := NewProtocol(strings.NewReader(input), nil)

		frame, err := p.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if frame.Cookie != "zzzzzzzz" {
			t.Errorf("Cookie = %q, want %q", frame.Cookie, "zzzzzzzz")
		}
	})

	t.Run("preserves raw payload for typed decoding", func(t *testing.T) {
		payload := `{"type":"reply","cookie":"abcdefgh","cache":[{"key":"CMAKE_CXX_COMPILER","value":"/usr/bin/c++"}]}`
		input := FrameOpen + "\n" + payload + "\n" + FrameClose + "\n"
		p := NewProtocol(strings.NewReader(input), nil)

		frame, err := p.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if string(frame.Raw) != payload {
			t.Errorf("Raw = %s, want %s", frame.Raw, payload)
		}
	})

	t.Run("returns error for empty input", func(t *testing.T) {
		p := NewProtocol(strings.NewReader(""), nil)

		_, err := p.ReadFrame()
		if err == nil {
			t.Error("expected error for empty input")
		}
	})

	t.Run("returns error for frame without payload", func(t *testing.T) {
		input := FrameOpen + "\n" + FrameClose + "\n"
		p := NewProtocol(strings.NewReader(input), nil)

		_, err := p.ReadFrame()
		if err == nil {
			t.Error("expected error for empty frame")
		}
	})

	t.Run("returns error for truncated stream", func(t *testing.T) {
		input := FrameOpen + "\n" + `{"type":"reply"}` + "\n"
		p := NewProtocol(strings.NewReader(input), nil)

		_, err := p.ReadFrame()
		if err == nil {
			t.Error("expected error for truncated frame")
		}
	})
}

func TestProtocol_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewProtocol(nil, &buf)

	req := handshakeRequest{
		Type:            TypeHandshake,
		Cookie:          "abcdefgh",
		SourceDirectory: "/src/project",
		BuildDirectory:  "/src/project/build",
		ProtocolVersion: ProtocolVersion{Major: 1},
	}
	if err := w.WriteFrame(req); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	r := NewProtocol(&buf, nil)
	frame, err := r.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	if frame.Type != TypeHandshake {
		t.Errorf("Type = %q, want %q", frame.Type, TypeHandshake)
	}
	if frame.Cookie != "abcdefgh" {
		t.Errorf("Cookie = %q, want %q", frame.Cookie, "abcdefgh")
	}
}

func TestHandshakeRequest_GeneratorOmitted(t *testing.T) {
	t.Run("omits generator when empty", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewProtocol(nil, &buf)

		req := handshakeRequest{
			Type:            TypeHandshake,
			Cookie:          "abcdefgh",
			SourceDirectory: "/src",
			BuildDirectory:  "/src/build",
			ProtocolVersion: ProtocolVersion{Major: 1},
		}
		if err := p.WriteFrame(req); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}

		// An empty generator must be absent, not empty: the server rejects
		// "" but falls back to the build cache when the field is missing.
		if strings.Contains(buf.String(), `"generator"`) {
			t.Errorf("generator field present in: %s", buf.String())
		}
	})

	t.Run("includes generator when set", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewProtocol(nil, &buf)

		req := handshakeRequest{
			Type:            TypeHandshake,
			Cookie:          "abcdefgh",
			SourceDirectory: "/src",
			BuildDirectory:  "/src/build",
			ProtocolVersion: ProtocolVersion{Major: 1},
			Generator:       "Unix Makefiles",
		}
		if err := p.WriteFrame(req); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}

		if !strings.Contains(buf.String(), `"generator":"Unix Makefiles"`) {
			t.Errorf("missing generator field in: %s", buf.String())
		}
	})
}

func TestProtocol_Concurrent(t *testing.T) {
	t.Run("handles concurrent writes without interleaving", func(t *testing.T) {
		var buf bytes.Buffer
		p := NewProtocol(nil, &buf)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				err := p.WriteFrame(map[string]string{"type": TypeCompute, "cookie": fmt.Sprintf("%08d", n)})
				if err != nil {
					t.Errorf("WriteFrame: %v", err)
				}
			}(i)
		}
		wg.Wait()

		output := buf.String()
		count := strings.Count(output, FrameOpen)
		if count != 10 {
			t.Errorf("expected 10 frames, found %d", count)
		}
		// Each closing sentinel must directly follow its payload line.
		for _, block := range strings.Split(strings.TrimSuffix(output, "\n"), "\n") {
			if block == "" {
				t.Error("unexpected blank line inside frame stream")
			}
		}
	})
}
