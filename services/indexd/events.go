// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package indexd

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/cmakekit/cmakeindex/services/indexd/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Subscribers are editor plugins, not browsers; there is no origin
	// to check.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// HandleEvents handles GET /v1/events.
//
// Description:
//
//	Upgrades the connection to a websocket and streams session lifecycle
//	events (opened, refreshed, invalidated, closed) as JSON frames. The
//	currently open sessions are replayed as opened events first, so a
//	subscriber starts from complete state. A subscriber that stops
//	reading loses events rather than blocking the registry.
//
// Response:
//
//	101 Switching Protocols, then one session.Event per frame.
func (h *Handlers) HandleEvents(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleEvents")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	events, cancel := h.registry.Subscribe()
	defer cancel()

	now := time.Now().UnixMilli()
	for _, info := range h.registry.Snapshots() {
		replay := session.Event{
			Type:       session.EventOpened,
			RootDir:    info.RootDir,
			BuildDir:   info.BuildDir,
			Generation: info.Generation,
			UnixMilli:  now,
		}
		if err := ws.WriteJSON(replay); err != nil {
			logger.Warn("failed to send session snapshot", "error", err)
			return
		}
	}

	// The read pump only exists to notice the peer going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	logger.Info("event subscriber connected")

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			if err := ws.WriteJSON(evt); err != nil {
				logger.Warn("event write failed, dropping subscriber", "error", err)
				return
			}
		case <-done:
			logger.Info("event subscriber disconnected")
			return
		}
	}
}
