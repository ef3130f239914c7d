// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package indexd

import (
	"context"
	"errors"
	"net/http"

	"github.com/cmakekit/cmakeindex/services/indexd/cmake"
	"github.com/cmakekit/cmakeindex/services/indexd/index"
	"github.com/cmakekit/cmakeindex/services/indexd/session"
)

// statusForError maps a domain error to an HTTP status and error code.
//
// Lookup failures are 404s, state conflicts (locked build dir, not yet
// indexed, ambiguous target) are 409s, and anything that went wrong on
// the cmake side of the socket is a 502. Unrecognized errors fall through
// to a plain 500.
func statusForError(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound, "SESSION_NOT_FOUND"
	case errors.Is(err, session.ErrNoProjectRoot):
		return http.StatusNotFound, "NO_PROJECT_ROOT"
	case errors.Is(err, session.ErrUnknownTarget):
		return http.StatusNotFound, "UNKNOWN_TARGET"
	case errors.Is(err, session.ErrNoArtifacts):
		return http.StatusNotFound, "NO_ARTIFACTS"
	case errors.Is(err, session.ErrNotExecutable):
		return http.StatusBadRequest, "NOT_EXECUTABLE"
	case errors.Is(err, session.ErrBuildDirLocked):
		return http.StatusConflict, "BUILD_DIR_LOCKED"
	case errors.Is(err, session.ErrSessionClosed):
		return http.StatusConflict, "SESSION_CLOSED"
	case errors.Is(err, session.ErrNotIndexed):
		return http.StatusConflict, "NOT_INDEXED"
	case errors.Is(err, index.ErrSquashedTarget):
		return http.StatusConflict, "TARGET_SQUASHED"
	case errors.Is(err, cmake.ErrStartupFailure):
		return http.StatusBadGateway, "CMAKE_UNAVAILABLE"
	case errors.Is(err, cmake.ErrProtocolMismatch):
		return http.StatusBadGateway, "PROTOCOL_MISMATCH"
	case errors.Is(err, cmake.ErrServerCrashed):
		return http.StatusBadGateway, "CMAKE_CRASHED"
	case errors.Is(err, cmake.ErrServerNotRunning):
		return http.StatusBadGateway, "CMAKE_NOT_RUNNING"
	case errors.Is(err, cmake.ErrServerRequestFailed):
		return http.StatusBadGateway, "CONFIGURE_FAILED"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
