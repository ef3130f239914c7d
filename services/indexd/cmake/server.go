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
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Startup wait: the socket file is polled, not watched. The server creates
// it once its listener is up; a healthy cmake does so well inside the budget.
const (
	socketWaitTries    = 10
	socketWaitInterval = 500 * time.Millisecond
)

// shutdownGrace is how long a terminated server gets to exit on its own
// before it is killed.
const shutdownGrace = 400 * time.Millisecond

// =============================================================================
// SERVER STATE
// =============================================================================

// ServerState represents the lifecycle state of a cmake server.
type ServerState int

const (
	// ServerStateUninitialized is the initial state before Start is called.
	ServerStateUninitialized ServerState = iota

	// ServerStateStarting means the subprocess is launching.
	ServerStateStarting

	// ServerStateReady means the socket is connected and the hello verified.
	ServerStateReady

	// ServerStateStopping means the server is shutting down.
	ServerStateStopping

	// ServerStateStopped means the server has terminated.
	ServerStateStopped
)

// String returns a human-readable state name.
func (s ServerState) String() string {
	names := []string{"uninitialized", "starting", "ready", "stopping", "stopped"}
	if int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// SignalHandler receives out-of-band signal frames observed while waiting
// for a reply. The default handler discards them.
type SignalHandler func(frame *Frame)

// =============================================================================
// SERVER
// =============================================================================

// Server manages one cmake server subprocess and its socket channel.
//
// Description:
//
//	Owns the subprocess from launch to reaping, the Unix socket connection,
//	and the strictly serialized request/reply exchange. One Server serves
//	exactly one build directory; it is handshaked once and never restarted.
//	After Shutdown (or a detected crash) every operation fails with
//	ErrServerNotRunning.
//
// Thread Safety:
//
//	Safe for concurrent use after Start() returns successfully. Requests
//	from concurrent goroutines are serialized, never pipelined.
type Server struct {
	cmd        *exec.Cmd
	conn       net.Conn
	protocol   *Protocol
	socketPath string

	// procDone is closed by the wait goroutine once the subprocess has been
	// reaped; procErr then holds the Wait result.
	procDone chan struct{}
	procErr  error

	sourceDir string
	buildDir  string

	state   ServerState
	stateMu sync.RWMutex

	// sendMu serializes request/reply exchanges: at most one in flight.
	sendMu sync.Mutex

	signalHandler   SignalHandler
	signalHandlerMu sync.Mutex
}

// NewServer creates a server instance (not started).
func NewServer() *Server {
	return &Server{
		state:    ServerStateUninitialized,
		procDone: make(chan struct{}),
	}
}

// Start launches the cmake server subprocess and connects its socket.
//
// Description:
//
//	Launches `<binary> -E server --pipe=<socketPath> --experimental`, waits
//	for the socket file to appear (polled, bounded), connects, reads the
//	hello greeting and verifies the server speaks protocol major version 1.
//
// Inputs:
//
//	ctx - Context for cancellation during the startup wait.
//	binary - Path to the cmake executable.
//	socketPath - Unix socket path the server is asked to listen on.
//
// Outputs:
//
//	error - Non-nil if the server never became reachable.
//
// Errors:
//
//	ErrAlreadyStarted - Start called on a non-uninitialized server.
//	ErrStartupFailure - Process exited immediately, the socket never
//	                    appeared, or the connection could not be made.
//	ErrProtocolMismatch - Hello does not advertise protocol major 1.
//
// On ErrProtocolMismatch the subprocess is left running; callers are
// expected to Shutdown, which is safe after any partial startup.
func (s *Server) Start(ctx context.Context, binary, socketPath string) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}

	s.stateMu.Lock()
	if s.state != ServerStateUninitialized {
		s.stateMu.Unlock()
		return ErrAlreadyStarted
	}
	s.state = ServerStateStarting
	s.stateMu.Unlock()

	path, err := exec.LookPath(binary)
	if err != nil {
		s.setState(ServerStateStopped)
		return fmt.Errorf("%w: binary %q not found", ErrStartupFailure, binary)
	}

	slog.Debug("starting cmake server",
		slog.String("binary", path),
		slog.String("socket", socketPath),
	)

	s.cmd = exec.Command(path, "-E", "server", "--pipe="+socketPath, "--experimental")
	s.socketPath = socketPath

	if err := s.cmd.Start(); err != nil {
		s.setState(ServerStateStopped)
		return fmt.Errorf("%w: %v", ErrStartupFailure, err)
	}

	// Reap the child as soon as it exits so the liveness check can observe
	// the status without leaving a zombie behind.
	go func() {
		s.procErr = s.cmd.Wait()
		close(s.procDone)
	}()

	if s.exited() {
		s.setState(ServerStateStopped)
		return fmt.Errorf("%w: server terminated right after starting", ErrStartupFailure)
	}

	if err := s.waitForSocket(ctx, socketPath); err != nil {
		s.setState(ServerStateStopped)
		return err
	}

	slog.Debug("cmake server running, connecting",
		slog.Int("pid", s.cmd.Process.Pid),
		slog.String("socket", socketPath),
	)

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		s.setState(ServerStateStopped)
		return fmt.Errorf("%w: connect %s: %v", ErrStartupFailure, socketPath, err)
	}
	s.conn = conn
	s.protocol = NewProtocol(conn, conn)

	hello, err := s.protocol.ReadFrame()
	if err != nil {
		s.setState(ServerStateStopped)
		return fmt.Errorf("%w: read hello: %v", ErrStartupFailure, err)
	}

	var greeting Hello
	if err := json.Unmarshal(hello.Raw, &greeting); err != nil {
		s.setState(ServerStateStopped)
		return fmt.Errorf("%w: decode hello: %v", ErrStartupFailure, err)
	}

	supported := false
	for _, version := range greeting.SupportedProtocolVersions {
		if version.Major == protocolMajor {
			supported = true
		}
	}
	if !supported {
		return ErrProtocolMismatch
	}

	s.setState(ServerStateReady)
	recordServerSpawn(ctx, true)
	return nil
}

// waitForSocket polls for the socket file the server was asked to create.
func (s *Server) waitForSocket(ctx context.Context, socketPath string) error {
	for tries := 0; tries < socketWaitTries; tries++ {
		if _, err := os.Stat(socketPath); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrStartupFailure, ctx.Err())
		case <-time.After(socketWaitInterval):
		}
	}
	if s.exited() {
		return fmt.Errorf("%w: server terminated right after starting", ErrStartupFailure)
	}
	if _, err := os.Stat(socketPath); err != nil {
		return fmt.Errorf("%w: socket did not appear within %v", ErrStartupFailure,
			time.Duration(socketWaitTries)*socketWaitInterval)
	}
	return nil
}

// Handshake selects the project for this server instance.
//
// Description:
//
//	Sends the one handshake request of the server's lifetime, binding it to
//	a (source dir, build dir) pair and protocol major version 1. When
//	generator is empty the field is omitted from the payload entirely and
//	the server reuses the generator recorded in the build directory's
//	existing cache; callers pass empty exactly when CMakeCache.txt is
//	already present.
//
// Inputs:
//
//	ctx - Context, checked between protocol frames.
//	sourceDir - Absolute path of the project source tree.
//	buildDir - Absolute path of the build directory.
//	generator - Build system generator name, or empty to reuse the cache's.
//
// Outputs:
//
//	error - ErrAlreadyInitialized on re-entry, otherwise request errors.
func (s *Server) Handshake(ctx context.Context, sourceDir, buildDir, generator string) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}
	if s.sourceDir != "" || s.buildDir != "" {
		return ErrAlreadyInitialized
	}
	s.sourceDir = sourceDir
	s.buildDir = buildDir

	slog.Debug("handshaking cmake server",
		slog.String("source_dir", sourceDir),
		slog.String("build_dir", buildDir),
		slog.String("generator", generator),
	)

	req := handshakeRequest{
		Type:            TypeHandshake,
		Cookie:          newCookie(),
		SourceDirectory: sourceDir,
		BuildDirectory:  buildDir,
		ProtocolVersion: ProtocolVersion{Major: protocolMajor},
		Generator:       generator,
	}
	_, err := s.roundTrip(ctx, TypeHandshake, req)
	return err
}

// Configure runs the configure step.
//
// Description:
//
//	Sends the cache entries as -D command-line definitions. A configure
//	replaces any previous configuration; entries are never merged with an
//	earlier call's.
//
// Inputs:
//
//	ctx - Context, checked between protocol frames.
//	cacheEntries - Cache variables to define; may be nil.
//
// Outputs:
//
//	error - Non-nil if the server rejected the configuration.
func (s *Server) Configure(ctx context.Context, cacheEntries map[string]string) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}

	keys := make([]string, 0, len(cacheEntries))
	for k := range cacheEntries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	args := make([]string, 0, len(keys))
	for _, k := range keys {
		args = append(args, "-D"+k+"="+cacheEntries[k])
	}

	slog.Debug("configuring project", slog.Int("cache_entries", len(args)))

	req := configureRequest{
		Type:           TypeConfigure,
		Cookie:         newCookie(),
		CacheArguments: args,
	}
	_, err := s.roundTrip(ctx, TypeConfigure, req)
	return err
}

// Generate runs the generate (compute) step. Must follow Configure and
// precede any model query.
func (s *Server) Generate(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("ctx must not be nil")
	}
	slog.Debug("generating build system")
	_, err := s.roundTrip(ctx, TypeCompute, basicRequest{Type: TypeCompute, Cookie: newCookie()})
	return err
}

// Codemodel requests the full project/target/file description.
func (s *Server) Codemodel(ctx context.Context) (*CodemodelReply, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	slog.Debug("requesting project model")
	frame, err := s.roundTrip(ctx, TypeCodemodel, basicRequest{Type: TypeCodemodel, Cookie: newCookie()})
	if err != nil {
		return nil, err
	}
	var reply CodemodelReply
	if err := json.Unmarshal(frame.Raw, &reply); err != nil {
		return nil, fmt.Errorf("decode codemodel reply: %w", err)
	}
	return &reply, nil
}

// Cache requests the flattened configuration cache.
func (s *Server) Cache(ctx context.Context) (*CacheReply, error) {
	if ctx == nil {
		return nil, fmt.Errorf("ctx must not be nil")
	}
	slog.Debug("requesting cache variables")
	frame, err := s.roundTrip(ctx, TypeCache, basicRequest{Type: TypeCache, Cookie: newCookie()})
	if err != nil {
		return nil, err
	}
	var reply CacheReply
	if err := json.Unmarshal(frame.Raw, &reply); err != nil {
		return nil, fmt.Errorf("decode cache reply: %w", err)
	}
	return &reply, nil
}

// roundTrip sends one request and reads frames until its reply or error.
//
// Out-of-band frames are consumed along the way: signal frames go to the
// signal handler, message frames are logged. The context is checked between
// frames only; a read in progress blocks until the server answers or dies.
func (s *Server) roundTrip(ctx context.Context, operation string, req interface{}) (*Frame, error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	ctx, span := tracer.Start(ctx, "Server."+operation,
		trace.WithAttributes(attribute.String("cmake.request_type", operation)),
	)
	defer span.End()

	start := time.Now()

	frame, err := s.exchange(ctx, req)
	if err != nil {
		span.RecordError(err)
	}
	recordRequestMetrics(ctx, operation, time.Since(start), err == nil)
	return frame, err
}

func (s *Server) exchange(ctx context.Context, req interface{}) (*Frame, error) {
	if err := s.checkAlive(); err != nil {
		return nil, err
	}
	if err := s.protocol.WriteFrame(req); err != nil {
		if liveErr := s.checkAlive(); liveErr != nil {
			return nil, liveErr
		}
		return nil, err
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.checkAlive(); err != nil {
			return nil, err
		}

		frame, err := s.protocol.ReadFrame()
		if err != nil {
			// The read usually fails because the process died mid-request;
			// report that rather than the bare socket error.
			if liveErr := s.checkAlive(); liveErr != nil {
				return nil, liveErr
			}
			return nil, err
		}

		switch frame.Type {
		case TypeSignal:
			s.dispatchSignal(frame)
		case TypeMessage:
			s.logMessage(frame)
		case TypeError:
			return nil, &ServerError{Message: frame.ErrorMessage, Cookie: frame.Cookie}
		case TypeReply:
			return frame, nil
		}
	}
}

// checkAlive polls the subprocess status before any socket use.
//
// A nonzero exit surfaces as ErrServerCrashed exactly once; the server is
// then marked stopped and every later operation fails with
// ErrServerNotRunning. A clean exit goes straight to ErrServerNotRunning.
func (s *Server) checkAlive() error {
	if s.State() == ServerStateStopped || s.cmd == nil || s.conn == nil {
		return ErrServerNotRunning
	}

	select {
	case <-s.procDone:
		code := s.cmd.ProcessState.ExitCode()
		s.setState(ServerStateStopped)
		if code != 0 {
			return &CrashError{ExitCode: code}
		}
		return ErrServerNotRunning
	default:
		return nil
	}
}

// exited reports whether the subprocess has been reaped, without touching state.
func (s *Server) exited() bool {
	select {
	case <-s.procDone:
		return true
	default:
		return false
	}
}

// dispatchSignal hands an out-of-band signal frame to the handler, if any.
func (s *Server) dispatchSignal(frame *Frame) {
	s.signalHandlerMu.Lock()
	handler := s.signalHandler
	s.signalHandlerMu.Unlock()
	if handler != nil {
		handler(frame)
	}
}

// logMessage logs an out-of-band message frame. CMake reports configure
// diagnostics through these, flagged only by their text.
func (s *Server) logMessage(frame *Frame) {
	if strings.Contains(frame.Message, "CMake Error") {
		slog.Error("cmake reported an error",
			slog.String("title", frame.Title),
			slog.String("message", frame.Message),
		)
		return
	}
	slog.Debug("cmake message",
		slog.String("title", frame.Title),
		slog.String("message", frame.Message),
	)
}

// Shutdown tears the server down.
//
// Description:
//
//	Requests graceful termination, waits briefly, escalates to a kill if
//	the process is still alive, reaps it, closes the socket and unlinks
//	the socket file. Idempotent and safe after partial startup failure.
//
// Outputs:
//
//	error - Non-nil only if the socket file could not be removed.
//
// Thread Safety:
//
//	Safe for concurrent use. Multiple calls are idempotent.
func (s *Server) Shutdown() error {
	s.stateMu.Lock()
	if s.state == ServerStateStopped || s.state == ServerStateStopping {
		s.stateMu.Unlock()
		return nil
	}
	s.state = ServerStateStopping
	s.stateMu.Unlock()

	if s.cmd != nil && s.cmd.Process != nil && !s.exited() {
		_ = s.cmd.Process.Signal(syscall.SIGTERM)

		select {
		case <-s.procDone:
		case <-time.After(shutdownGrace):
			_ = s.cmd.Process.Kill()
			slog.Warn("cmake server force-terminated", slog.Int("pid", s.cmd.Process.Pid))
			<-s.procDone
		}
	}

	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}

	s.setState(ServerStateStopped)

	if s.socketPath != "" {
		if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove socket %s: %w", s.socketPath, err)
		}
	}
	return nil
}

// =============================================================================
// ACCESSORS
// =============================================================================

// State returns the current server state.
//
// Thread Safety:
//
//	Safe for concurrent use.
func (s *Server) State() ServerState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

// SourceDir returns the handshaked source directory, or empty before Handshake.
func (s *Server) SourceDir() string {
	return s.sourceDir
}

// BuildDir returns the handshaked build directory, or empty before Handshake.
func (s *Server) BuildDir() string {
	return s.buildDir
}

// SocketPath returns the socket path the server was started with.
func (s *Server) SocketPath() string {
	return s.socketPath
}

// PID returns the subprocess PID, or 0 before Start.
func (s *Server) PID() int {
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// SetSignalHandler installs the handler for out-of-band signal frames.
//
// Thread Safety:
//
//	Safe for concurrent use.
func (s *Server) SetSignalHandler(handler SignalHandler) {
	s.signalHandlerMu.Lock()
	s.signalHandler = handler
	s.signalHandlerMu.Unlock()
}

// =============================================================================
// INTERNAL HELPERS
// =============================================================================

func (s *Server) setState(state ServerState) {
	s.stateMu.Lock()
	s.state = state
	s.stateMu.Unlock()
}
