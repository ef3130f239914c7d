// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cmake

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

// newPipedServer returns a ready server wired to an in-memory connection,
// plus the far end the test scripts replies on. The command is never
// started; an open procDone channel is all the liveness check looks at.
func newPipedServer(t *testing.T) (*Server, net.Conn) {
	t.Helper()

	client, remote := net.Pipe()
	s := NewServer()
	s.cmd = exec.Command("true")
	s.conn = client
	s.protocol = NewProtocol(client, client)
	s.state = ServerStateReady

	t.Cleanup(func() {
		_ = client.Close()
		_ = remote.Close()
	})
	return s, remote
}

// serveScript consumes one request frame from the far end of the pipe and
// answers with the given raw JSON frames, in order. The consumed request
// is delivered on the returned channel.
func serveScript(t *testing.T, remote net.Conn, replies ...string) <-chan *Frame {
	t.Helper()

	requests := make(chan *Frame, 1)
	go func() {
		proto := NewProtocol(remote, remote)
		frame, err := proto.ReadFrame()
		if err != nil {
			close(requests)
			return
		}
		requests <- frame
		for _, reply := range replies {
			if err := proto.WriteFrame(json.RawMessage(reply)); err != nil {
				return
			}
		}
	}()
	return requests
}

func TestServerState_String(t *testing.T) {
	cases := map[ServerState]string{
		ServerStateUninitialized: "uninitialized",
		ServerStateStarting:      "starting",
		ServerStateReady:         "ready",
		ServerStateStopping:      "stopping",
		ServerStateStopped:       "stopped",
		ServerState(99):          "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("ServerState(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestNewServer(t *testing.T) {
	s := NewServer()

	if s.State() != ServerStateUninitialized {
		t.Errorf("State() = %v, want uninitialized", s.State())
	}
	if s.PID() != 0 {
		t.Errorf("PID() = %d, want 0", s.PID())
	}
	if s.SourceDir() != "" || s.BuildDir() != "" {
		t.Error("directories should be empty before handshake")
	}
}

func TestServer_Start(t *testing.T) {
	t.Run("returns error for nil context", func(t *testing.T) {
		s := NewServer()
		err := s.Start(nil, "cmake", "/tmp/test.sock") //nolint:staticcheck
		if err == nil {
			t.Error("expected error for nil context")
		}
	})

	t.Run("returns ErrStartupFailure for missing binary", func(t *testing.T) {
		s := NewServer()
		err := s.Start(context.Background(), "/nonexistent/cmake-binary-xyz", "/tmp/test.sock")

		if !errors.Is(err, ErrStartupFailure) {
			t.Errorf("expected ErrStartupFailure, got %v", err)
		}
		if s.State() != ServerStateStopped {
			t.Errorf("State() = %v, want stopped", s.State())
		}
	})

	t.Run("returns ErrAlreadyStarted on second call", func(t *testing.T) {
		s, _ := newPipedServer(t)
		err := s.Start(context.Background(), "cmake", "/tmp/test.sock")

		if !errors.Is(err, ErrAlreadyStarted) {
			t.Errorf("expected ErrAlreadyStarted, got %v", err)
		}
	})
}

func TestServer_OperationsBeforeStart(t *testing.T) {
	ctx := context.Background()

	t.Run("Generate", func(t *testing.T) {
		s := NewServer()
		if err := s.Generate(ctx); !errors.Is(err, ErrServerNotRunning) {
			t.Errorf("expected ErrServerNotRunning, got %v", err)
		}
	})

	t.Run("Configure", func(t *testing.T) {
		s := NewServer()
		if err := s.Configure(ctx, nil); !errors.Is(err, ErrServerNotRunning) {
			t.Errorf("expected ErrServerNotRunning, got %v", err)
		}
	})

	t.Run("Codemodel", func(t *testing.T) {
		s := NewServer()
		if _, err := s.Codemodel(ctx); !errors.Is(err, ErrServerNotRunning) {
			t.Errorf("expected ErrServerNotRunning, got %v", err)
		}
	})

	t.Run("Cache", func(t *testing.T) {
		s := NewServer()
		if _, err := s.Cache(ctx); !errors.Is(err, ErrServerNotRunning) {
			t.Errorf("expected ErrServerNotRunning, got %v", err)
		}
	})
}

func TestServer_Handshake(t *testing.T) {
	t.Run("succeeds against a replying server", func(t *testing.T) {
		s, remote := newPipedServer(t)
		requests := serveScript(t, remote, `{"type":"reply","cookie":"x","inReplyTo":"handshake"}`)

		err := s.Handshake(context.Background(), "/src/project", "/src/project/build", "Unix Makefiles")
		if err != nil {
			t.Fatalf("Handshake: %v", err)
		}

		if s.SourceDir() != "/src/project" {
			t.Errorf("SourceDir() = %q", s.SourceDir())
		}
		if s.BuildDir() != "/src/project/build" {
			t.Errorf("BuildDir() = %q", s.BuildDir())
		}

		req := <-requests
		if req.Type != TypeHandshake {
			t.Errorf("request type = %q, want handshake", req.Type)
		}
		if len(req.Cookie) != cookieLength {
			t.Errorf("cookie = %q, want %d lowercase letters", req.Cookie, cookieLength)
		}
	})

	t.Run("marks initialized even when the request fails", func(t *testing.T) {
		s := NewServer()
		ctx := context.Background()

		err := s.Handshake(ctx, "/src", "/src/build", "")
		if !errors.Is(err, ErrServerNotRunning) {
			t.Fatalf("expected ErrServerNotRunning, got %v", err)
		}

		// The directories stick on the first attempt; a retry is refused.
		if s.SourceDir() != "/src" {
			t.Errorf("SourceDir() = %q, want /src", s.SourceDir())
		}
		if err := s.Handshake(ctx, "/src", "/src/build", ""); !errors.Is(err, ErrAlreadyInitialized) {
			t.Errorf("expected ErrAlreadyInitialized, got %v", err)
		}
	})
}

func TestServer_Configure(t *testing.T) {
	t.Run("sends cache entries as sorted -D arguments", func(t *testing.T) {
		s, remote := newPipedServer(t)
		requests := serveScript(t, remote, `{"type":"reply","cookie":"x","inReplyTo":"configure"}`)

		err := s.Configure(context.Background(), map[string]string{
			"CMAKE_EXPORT_COMPILE_COMMANDS": "ON",
			"CMAKE_BUILD_TYPE":              "Debug",
		})
		if err != nil {
			t.Fatalf("Configure: %v", err)
		}

		req := <-requests
		var payload struct {
			CacheArguments []string `json:"cacheArguments"`
		}
		if err := json.Unmarshal(req.Raw, &payload); err != nil {
			t.Fatalf("decode request: %v", err)
		}

		want := []string{
			"-DCMAKE_BUILD_TYPE=Debug",
			"-DCMAKE_EXPORT_COMPILE_COMMANDS=ON",
		}
		if len(payload.CacheArguments) != len(want) {
			t.Fatalf("cacheArguments = %v, want %v", payload.CacheArguments, want)
		}
		for i := range want {
			if payload.CacheArguments[i] != want[i] {
				t.Errorf("cacheArguments[%d] = %q, want %q", i, payload.CacheArguments[i], want[i])
			}
		}
	})

	t.Run("returns ServerError for an error frame", func(t *testing.T) {
		s, remote := newPipedServer(t)
		serveScript(t, remote, `{"type":"error","cookie":"x","errorMessage":"Error: could not load cache"}`)

		err := s.Configure(context.Background(), nil)
		if !errors.Is(err, ErrServerRequestFailed) {
			t.Fatalf("expected ErrServerRequestFailed, got %v", err)
		}

		var serverErr *ServerError
		if !errors.As(err, &serverErr) {
			t.Fatalf("expected *ServerError, got %T", err)
		}
		if serverErr.Message != "Error: could not load cache" {
			t.Errorf("Message = %q", serverErr.Message)
		}
	})
}

func TestServer_Generate(t *testing.T) {
	t.Run("skips interleaved message frames", func(t *testing.T) {
		s, remote := newPipedServer(t)
		serveScript(t, remote,
			`{"type":"message","cookie":"x","message":"Configuring done","title":""}`,
			`{"type":"message","cookie":"x","message":"Generating done","title":""}`,
			`{"type":"reply","cookie":"x","inReplyTo":"compute"}`,
		)

		if err := s.Generate(context.Background()); err != nil {
			t.Fatalf("Generate: %v", err)
		}
	})

	t.Run("dispatches signal frames to the handler", func(t *testing.T) {
		s, remote := newPipedServer(t)
		serveScript(t, remote,
			`{"type":"signal","cookie":"","name":"dirty"}`,
			`{"type":"reply","cookie":"x","inReplyTo":"compute"}`,
		)

		signals := make(chan string, 1)
		s.SetSignalHandler(func(frame *Frame) {
			signals <- frame.Name
		})

		if err := s.Generate(context.Background()); err != nil {
			t.Fatalf("Generate: %v", err)
		}

		select {
		case name := <-signals:
			if name != "dirty" {
				t.Errorf("signal name = %q, want dirty", name)
			}
		case <-time.After(time.Second):
			t.Error("timeout waiting for signal dispatch")
		}
	})

	t.Run("returns context error between frames", func(t *testing.T) {
		s, remote := newPipedServer(t)
		serveScript(t, remote)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := s.Generate(ctx)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestServer_Codemodel(t *testing.T) {
	s, remote := newPipedServer(t)
	serveScript(t, remote, `{
		"type":"reply","cookie":"x","inReplyTo":"codemodel",
		"configurations":[{"name":"Debug","projects":[{
			"name":"demo","sourceDirectory":"/src","buildDirectory":"/src/build",
			"targets":[{
				"name":"app","type":"EXECUTABLE",
				"sourceDirectory":"/src","buildDirectory":"/src/build",
				"fileGroups":[{
					"language":"CXX",
					"compileFlags":"-Wall -O2",
					"defines":["FOO=1"],
					"includePath":[{"path":"/src/include","isSystem":false}],
					"sources":["main.cc"]
				}]
			}]
		}]}]
	}`)

	reply, err := s.Codemodel(context.Background())
	if err != nil {
		t.Fatalf("Codemodel: %v", err)
	}

	if len(reply.Configurations) != 1 {
		t.Fatalf("configurations = %d, want 1", len(reply.Configurations))
	}
	cfg := reply.Configurations[0]
	if cfg.Name != "Debug" {
		t.Errorf("configuration name = %q", cfg.Name)
	}
	if len(cfg.Projects) != 1 || cfg.Projects[0].Name != "demo" {
		t.Fatalf("projects = %+v", cfg.Projects)
	}

	target := cfg.Projects[0].Targets[0]
	if target.Type != "EXECUTABLE" {
		t.Errorf("target type = %q", target.Type)
	}
	group := target.FileGroups[0]
	if group.CompileFlags != "-Wall -O2" {
		t.Errorf("compileFlags = %q", group.CompileFlags)
	}
	if len(group.IncludePath) != 1 || group.IncludePath[0].Path != "/src/include" {
		t.Errorf("includePath = %+v", group.IncludePath)
	}
	if len(group.Sources) != 1 || group.Sources[0] != "main.cc" {
		t.Errorf("sources = %+v", group.Sources)
	}
}

func TestServer_Cache(t *testing.T) {
	s, remote := newPipedServer(t)
	serveScript(t, remote, `{
		"type":"reply","cookie":"x","inReplyTo":"cache",
		"cache":[
			{"key":"CMAKE_CXX_COMPILER","value":"/usr/bin/c++","type":"FILEPATH"},
			{"key":"CMAKE_BUILD_TYPE","value":"Debug","type":"STRING"}
		]
	}`)

	reply, err := s.Cache(context.Background())
	if err != nil {
		t.Fatalf("Cache: %v", err)
	}

	if len(reply.Cache) != 2 {
		t.Fatalf("cache entries = %d, want 2", len(reply.Cache))
	}
	if reply.Cache[0].Key != "CMAKE_CXX_COMPILER" || reply.Cache[0].Value != "/usr/bin/c++" {
		t.Errorf("entry[0] = %+v", reply.Cache[0])
	}
}

func TestServer_CrashDetection(t *testing.T) {
	t.Run("nonzero exit surfaces as CrashError once", func(t *testing.T) {
		client, remote := net.Pipe()
		defer client.Close()
		defer remote.Close()

		s := NewServer()
		s.cmd = exec.Command("sh", "-c", "exit 3")
		s.conn = client
		s.protocol = NewProtocol(client, client)
		s.state = ServerStateReady

		if err := s.cmd.Start(); err != nil {
			t.Fatalf("start: %v", err)
		}
		go func() {
			s.procErr = s.cmd.Wait()
			close(s.procDone)
		}()
		<-s.procDone

		err := s.checkAlive()
		var crash *CrashError
		if !errors.As(err, &crash) {
			t.Fatalf("expected *CrashError, got %v", err)
		}
		if crash.ExitCode != 3 {
			t.Errorf("ExitCode = %d, want 3", crash.ExitCode)
		}
		if !errors.Is(err, ErrServerCrashed) {
			t.Error("CrashError should match ErrServerCrashed")
		}

		// The crash is reported once; afterwards the server is just gone.
		if err := s.checkAlive(); !errors.Is(err, ErrServerNotRunning) {
			t.Errorf("expected ErrServerNotRunning after crash, got %v", err)
		}
	})

	t.Run("clean exit surfaces as ErrServerNotRunning", func(t *testing.T) {
		client, remote := net.Pipe()
		defer client.Close()
		defer remote.Close()

		s := NewServer()
		s.cmd = exec.Command("true")
		s.conn = client
		s.protocol = NewProtocol(client, client)
		s.state = ServerStateReady

		if err := s.cmd.Start(); err != nil {
			t.Fatalf("start: %v", err)
		}
		go func() {
			s.procErr = s.cmd.Wait()
			close(s.procDone)
		}()
		<-s.procDone

		if err := s.checkAlive(); !errors.Is(err, ErrServerNotRunning) {
			t.Errorf("expected ErrServerNotRunning, got %v", err)
		}
	})
}

func TestServer_Shutdown(t *testing.T) {
	t.Run("is idempotent on a never-started server", func(t *testing.T) {
		s := NewServer()

		if err := s.Shutdown(); err != nil {
			t.Fatalf("Shutdown: %v", err)
		}
		if s.State() != ServerStateStopped {
			t.Errorf("State() = %v, want stopped", s.State())
		}
		if err := s.Shutdown(); err != nil {
			t.Fatalf("second Shutdown: %v", err)
		}
	})

	t.Run("refuses operations afterwards", func(t *testing.T) {
		s, _ := newPipedServer(t)
		if err := s.Shutdown(); err != nil {
			t.Fatalf("Shutdown: %v", err)
		}

		if err := s.Generate(context.Background()); !errors.Is(err, ErrServerNotRunning) {
			t.Errorf("expected ErrServerNotRunning, got %v", err)
		}
	})

	t.Run("removes the socket file", func(t *testing.T) {
		s, _ := newPipedServer(t)
		s.socketPath = filepath.Join(t.TempDir(), "cmake.sock")
		if err := os.WriteFile(s.socketPath, nil, 0600); err != nil {
			t.Fatalf("create socket stand-in: %v", err)
		}

		if err := s.Shutdown(); err != nil {
			t.Fatalf("Shutdown: %v", err)
		}
		if _, err := os.Stat(s.socketPath); !os.IsNotExist(err) {
			t.Errorf("socket file still present: %v", err)
		}
	})
}
