// Copyright (C) 2025 CMakeKit Contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"fmt"
	"sync"
	"time"
)

// Braille dot frames render in every modern terminal emulator.
var spinnerGlyphs = [...]string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const spinnerInterval = 80 * time.Millisecond

// Spinner animates a one-line progress indicator on stdout while a
// long-running operation (configure, index, export) is in flight. In
// machine mode it degrades to a single PROGRESS line and never spins.
type Spinner struct {
	mu      sync.Mutex
	message string
	active  bool

	// Replaced on every Start so a stopped spinner can run again.
	cancel chan struct{}
	idle   chan struct{}
}

// NewSpinner creates a spinner displaying message. It does not start
// animating until Start is called.
func NewSpinner(message string) *Spinner {
	return &Spinner{message: message}
}

// Start begins the animation. Starting a running spinner is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return
	}
	s.active = true

	if GetPersonality().Level == PersonalityMachine {
		fmt.Printf("PROGRESS: %s\n", s.message)
		return
	}

	s.cancel = make(chan struct{})
	s.idle = make(chan struct{})
	go s.spin(s.cancel, s.idle)
}

func (s *Spinner) spin(cancel <-chan struct{}, idle chan<- struct{}) {
	ticker := time.NewTicker(spinnerInterval)
	defer ticker.Stop()

	for frame := 0; ; frame++ {
		select {
		case <-cancel:
			// Clear the spinner line before handing stdout back.
			fmt.Print("\r\033[K")
			close(idle)
			return
		case <-ticker.C:
			glyph := Styles.Highlight.Render(spinnerGlyphs[frame%len(spinnerGlyphs)])
			fmt.Printf("\r%s %s", glyph, s.Message())
		}
	}
}

// Stop halts the animation and clears the line. Stopping a stopped
// spinner is a no-op.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.active {
		s.mu.Unlock()
		return
	}
	s.active = false
	cancel, idle := s.cancel, s.idle
	s.mu.Unlock()

	// Machine mode never started the goroutine.
	if cancel == nil {
		return
	}
	close(cancel)
	<-idle
}

// Message returns the text currently displayed next to the glyph.
func (s *Spinner) Message() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.message
}

// UpdateMessage swaps the displayed text; the next frame picks it up.
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// StopWithSuccess stops the animation and prints a success line.
func (s *Spinner) StopWithSuccess(message string) {
	s.Stop()
	Success(message)
}

// StopWithError stops the animation and prints an error line.
func (s *Spinner) StopWithError(message string) {
	s.Stop()
	Error(message)
}

// WithSpinner animates while fn runs and reports its outcome.
func WithSpinner(message string, fn func() error) error {
	spin := NewSpinner(message)
	spin.Start()

	if err := fn(); err != nil {
		spin.StopWithError(fmt.Sprintf("%s: %v", message, err))
		return err
	}
	spin.StopWithSuccess(message)
	return nil
}
