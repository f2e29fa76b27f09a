// Copyright (c) 2025 Parley Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/parley-chat/parley/internal/config"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineEditor wraps the prompt with input history and line editing.
// Arrow keys navigate history; history survives restarts through a
// file in the config directory.
type lineEditor struct {
	line        *liner.State
	historyFile string
}

func newLineEditor() *lineEditor {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}

	ed := &lineEditor{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	ed.loadHistory()
	return ed
}

func (e *lineEditor) loadHistory() {
	if f, err := os.Open(e.historyFile); err == nil {
		e.line.ReadHistory(f)
		f.Close()
	}
}

// saveHistory persists input history with owner-only permissions.
func (e *lineEditor) saveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(e.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	e.line.WriteHistory(f)
}

// ReadInput reads one line with the given prompt. Non-empty input is
// added to history.
func (e *lineEditor) ReadInput(prompt string) (string, error) {
	input, err := e.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		e.line.AppendHistory(input)
	}
	return input, nil
}

// Close restores the terminal and saves history.
func (e *lineEditor) Close() {
	e.saveHistory()
	e.line.Close()
}
