// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package cmake

import "encoding/json"

// Frame sentinels. Every message in both directions is wrapped between
// these two lines, per cmake-server(7).
const (
	// FrameOpen is the line that opens a protocol frame.
	FrameOpen = `[== "CMake Server" ==[`

	// FrameClose is the line that closes a protocol frame.
	FrameClose = `]== "CMake Server" ==]`
)

// Message type discriminators used in the "type" field.
const (
	// TypeHello is sent by the server immediately after connect.
	TypeHello = "hello"

	// TypeHandshake selects the protocol version and project directories.
	TypeHandshake = "handshake"

	// TypeConfigure runs the configure step with cache arguments.
	TypeConfigure = "configure"

	// TypeCompute runs the generate step after a successful configure.
	TypeCompute = "compute"

	// TypeCodemodel requests the full project/target/file description.
	TypeCodemodel = "codemodel"

	// TypeCache requests the flattened configuration cache.
	TypeCache = "cache"

	// TypeReply is a successful answer to a request.
	TypeReply = "reply"

	// TypeError is a failed answer to a request.
	TypeError = "error"

	// TypeMessage is an out-of-band informational message (progress text).
	TypeMessage = "message"

	// TypeSignal is an out-of-band state-change notification.
	TypeSignal = "signal"
)

// protocolMajor is the protocol generation this client speaks. The hello
// message must advertise it or Start fails with ErrProtocolMismatch.
const protocolMajor = 1

// =============================================================================
// FRAMES
// =============================================================================

// Frame is one decoded protocol message as read off the socket.
//
// Only the routing fields are decoded eagerly; Raw retains the full payload
// so reply bodies can be unmarshaled into their typed form by the caller.
type Frame struct {
	// Type is the message type discriminator (reply, error, message, signal, hello).
	Type string `json:"type"`

	// Cookie echoes the request's correlation token on replies and errors.
	Cookie string `json:"cookie,omitempty"`

	// InReplyTo names the request type this frame answers, when present.
	InReplyTo string `json:"inReplyTo,omitempty"`

	// Message holds the text of a "message" frame.
	Message string `json:"message,omitempty"`

	// Title holds the optional title of a "message" frame.
	Title string `json:"title,omitempty"`

	// ErrorMessage holds the text of an "error" frame.
	ErrorMessage string `json:"errorMessage,omitempty"`

	// Name holds the signal name of a "signal" frame (e.g. "dirty", "fileChange").
	Name string `json:"name,omitempty"`

	// Raw is the complete frame payload for typed decoding of reply bodies.
	Raw json.RawMessage `json:"-"`
}

// ProtocolVersion identifies one protocol generation advertised by the server.
type ProtocolVersion struct {
	// Major is the protocol generation. This client requires major 1.
	Major int `json:"major"`

	// Minor is the revision within the generation.
	Minor int `json:"minor,omitempty"`

	// IsExperimental marks versions behind the --experimental gate.
	IsExperimental bool `json:"isExperimental,omitempty"`
}

// Hello is the payload of the server's greeting, sent before any request.
type Hello struct {
	// SupportedProtocolVersions lists every protocol generation the server speaks.
	SupportedProtocolVersions []ProtocolVersion `json:"supportedProtocolVersions"`
}

// =============================================================================
// REQUESTS
// =============================================================================

// handshakeRequest selects the project directories and protocol version.
//
// Generator is omitted from the payload entirely when empty; the server then
// reuses the generator recorded in the build directory's existing cache.
type handshakeRequest struct {
	Type            string          `json:"type"`
	Cookie          string          `json:"cookie"`
	SourceDirectory string          `json:"sourceDirectory"`
	BuildDirectory  string          `json:"buildDirectory"`
	ProtocolVersion ProtocolVersion `json:"protocolVersion"`
	Generator       string          `json:"generator,omitempty"`
}

// configureRequest runs the configure step. CacheArguments are -D definitions
// in command-line form; a configure replaces any previous configuration.
type configureRequest struct {
	Type           string   `json:"type"`
	Cookie         string   `json:"cookie"`
	CacheArguments []string `json:"cacheArguments"`
}

// basicRequest covers the requests that carry no payload beyond their type:
// compute, codemodel, cache.
type basicRequest struct {
	Type   string `json:"type"`
	Cookie string `json:"cookie"`
}

// =============================================================================
// REPLY PAYLOADS
// =============================================================================

// CodemodelReply is the payload of a reply to a codemodel request.
type CodemodelReply struct {
	// Configurations holds one entry per build configuration. Single-config
	// generators produce exactly one; the index uses the first.
	Configurations []Configuration `json:"configurations"`
}

// Configuration is one build configuration within the codemodel.
type Configuration struct {
	// Name is the configuration name (empty for single-config generators).
	Name string `json:"name"`

	// Projects lists every project in the configuration.
	Projects []Project `json:"projects"`
}

// Project is the wire form of one CMake project.
type Project struct {
	// Name is the project name from the project() invocation.
	Name string `json:"name"`

	// SourceDirectory is the project's top-level source directory.
	SourceDirectory string `json:"sourceDirectory"`

	// BuildDirectory is the project's top-level build directory.
	BuildDirectory string `json:"buildDirectory"`

	// Targets lists every target defined by the project.
	Targets []Target `json:"targets"`
}

// Target is the wire form of one CMake target.
type Target struct {
	// Name is the target name.
	Name string `json:"name"`

	// Type is the target kind: EXECUTABLE, STATIC_LIBRARY, SHARED_LIBRARY,
	// MODULE_LIBRARY, OBJECT_LIBRARY, UTILITY or INTERFACE_LIBRARY.
	Type string `json:"type"`

	// FullName is the on-disk name of the build result, when applicable.
	FullName string `json:"fullName,omitempty"`

	// SourceDirectory is the directory holding the target's CMakeLists.txt.
	SourceDirectory string `json:"sourceDirectory"`

	// BuildDirectory is the directory the target builds into.
	BuildDirectory string `json:"buildDirectory"`

	// LinkerLanguage is the language used for the final link step.
	LinkerLanguage string `json:"linkerLanguage,omitempty"`

	// Artifacts lists absolute paths of the build result files.
	Artifacts []string `json:"artifacts,omitempty"`

	// FileGroups partitions the target's sources by shared compile settings.
	FileGroups []FileGroup `json:"fileGroups,omitempty"`
}

// FileGroup is a set of sources sharing identical compile settings.
type FileGroup struct {
	// Language is the compile language of the group (e.g. "CXX", "C").
	Language string `json:"language,omitempty"`

	// CompileFlags is the free-form compiler flag string for the group.
	CompileFlags string `json:"compileFlags,omitempty"`

	// Defines lists preprocessor definitions without the -D prefix.
	Defines []string `json:"defines,omitempty"`

	// IncludePath lists the group's include directories in search order.
	IncludePath []IncludePath `json:"includePath,omitempty"`

	// Sources lists the group's files, absolute or relative to the target
	// source directory.
	Sources []string `json:"sources"`

	// IsGenerated marks groups of generated sources.
	IsGenerated bool `json:"isGenerated,omitempty"`
}

// IncludePath is one include directory entry of a file group.
type IncludePath struct {
	// Path is the directory, absolute or relative to the target source dir.
	Path string `json:"path"`

	// IsSystem marks system include directories (-isystem rather than -I).
	IsSystem bool `json:"isSystem,omitempty"`
}

// CacheReply is the payload of a reply to a cache request.
type CacheReply struct {
	// Cache lists every variable in the configuration cache.
	Cache []CacheEntry `json:"cache"`
}

// CacheEntry is one cache variable.
type CacheEntry struct {
	// Key is the variable name (e.g. "CMAKE_CXX_COMPILER").
	Key string `json:"key"`

	// Value is the variable value as a string.
	Value string `json:"value"`

	// Type is the cache entry type (STRING, FILEPATH, BOOL, ...).
	Type string `json:"type,omitempty"`

	// Properties carries auxiliary metadata such as HELPSTRING.
	Properties map[string]string `json:"properties,omitempty"`
}
