// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cmake provides a client for the cmake server protocol.
//
// The server (`cmake -E server --experimental`) exposes project introspection
// over a Unix domain socket: the client starts the subprocess, handshakes for
// protocol version 1, drives configure/compute, and retrieves the codemodel
// and cache dumps that the index layer converts into a queryable model.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                        Session Registry                      │
//	│                                                              │
//	│   Start ─► Handshake ─► Configure ─► Generate ─► Codemodel   │
//	│                                                   Cache      │
//	└───────────────┬──────────────────────────────────────────────┘
//	                │ framed request/reply (one in flight)
//	        ┌───────▼────────┐     Unix socket      ┌─────────────┐
//	        │ Server (client)│ ◄──────────────────► │ cmake -E    │
//	        │  + Protocol    │   sentinel frames    │ server      │
//	        └────────────────┘                      └─────────────┘
//
// # Components
//
//   - Server: owns the subprocess, the socket, and the request lifecycle
//   - Protocol: sentinel framing and frame decoding over the socket
//   - Frame: one decoded protocol message (reply, error, message, signal)
//
// # Wire format
//
// Every message in both directions is wrapped between two sentinel lines:
//
//	[== "CMake Server" ==[
//	{"type": "handshake", "cookie": "qwhjzlpd", ...}
//	]== "CMake Server" ==]
//
// Requests carry a random cookie echoed by the reply. Requests are strictly
// serialized: there is never more than one in flight per connection, and
// reads block until the server answers. There is no cancellation for an
// in-flight request; process death is detected on the next liveness check.
//
// # Example
//
//	srv := cmake.NewServer()
//	defer srv.Shutdown()
//
//	if err := srv.Start(ctx, "/usr/bin/cmake", "/tmp/cmake-index.sock"); err != nil {
//	    return err
//	}
//	if err := srv.Handshake(ctx, srcDir, buildDir, "Unix Makefiles"); err != nil {
//	    return err
//	}
package cmake
