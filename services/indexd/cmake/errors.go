// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cmake

import (
	"errors"
	"fmt"
)

// Sentinel errors for cmake server operations.
var (
	// ErrStartupFailure indicates the server subprocess never became reachable:
	// it exited immediately, or its socket file did not appear within the
	// startup wait budget.
	ErrStartupFailure = errors.New("cmake server startup failure")

	// ErrProtocolMismatch indicates the server does not advertise protocol
	// major version 1 in its hello message.
	ErrProtocolMismatch = errors.New("cmake server does not support protocol 1.x")

	// ErrAlreadyStarted indicates Start was called on an already started server.
	ErrAlreadyStarted = errors.New("cmake server already started")

	// ErrAlreadyInitialized indicates Handshake was called twice on one instance.
	ErrAlreadyInitialized = errors.New("cmake server already handshaked")

	// ErrServerCrashed indicates the server process exited with a nonzero status.
	ErrServerCrashed = errors.New("cmake server crashed")

	// ErrServerNotRunning indicates an operation was attempted before Start or
	// after teardown. There is no implicit restart.
	ErrServerNotRunning = errors.New("cmake server not running")

	// ErrServerRequestFailed indicates the server answered a request with an
	// error frame. The frame's message text is carried by ServerError.
	ErrServerRequestFailed = errors.New("cmake server request failed")
)

// ServerError represents an error frame returned by the cmake server.
//
// The server rejects a request by answering with a frame of type "error"
// whose errorMessage field holds human-readable detail (for example the
// CMakeLists.txt diagnostic that made configure fail). The text is kept
// verbatim.
type ServerError struct {
	// Message is the errorMessage text from the error frame.
	Message string

	// Cookie echoes the failed request's correlation token, when present.
	Cookie string
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	return fmt.Sprintf("cmake server request failed: %s", e.Message)
}

// Unwrap makes the error match ErrServerRequestFailed under errors.Is.
func (e *ServerError) Unwrap() error {
	return ErrServerRequestFailed
}

// CrashError reports the exit code of a crashed server process.
type CrashError struct {
	// ExitCode is the process exit status observed by the liveness check.
	ExitCode int
}

// Error implements the error interface.
func (e *CrashError) Error() string {
	return fmt.Sprintf("cmake server crashed: exit code %d", e.ExitCode)
}

// Unwrap makes the error match ErrServerCrashed under errors.Is.
func (e *CrashError) Unwrap() error {
	return ErrServerCrashed
}
