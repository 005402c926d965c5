// Package ui provides the terminal user interface for a tally class session.
//
// # Architecture Overview
//
// The UI is a Bubble Tea program. It renders the state.Store view that the
// engine hooks keep current and drives the engine through the Session
// interface. Every Session call may block on the network, so calls run
// inside tea.Cmd functions and report back through actionMsg.
//
// # Package Structure
//
//   - app.go: Model, Update loop, key handling, and the Run function
//   - input.go: Parsers for value entry and ":" commands
//   - render.go: Header, data panel, prompt, and footer rendering
//   - logs.go: Log view backed by logtail
//   - help.go: Key binding and command overlay
//   - theme.go: Color palettes and prebuilt lipgloss styles
//
// # Views
//
//   - Data View: Grouped values per group (with count and mean) or the
//     paired observation table
//   - Logs View: Tail of the tally log file, filtered by minimum level
//
// # Event Flow
//
//  1. Run() builds the Model and starts the program
//  2. A render tick copies the state.Store snapshot and engine Status
//  3. Keys either edit the prompt or dispatch a Session call as a tea.Cmd
//  4. The call's actionMsg sets the notice line and triggers a redraw
//  5. Context cancellation or q exits the program
//
// # Key Bindings
//
//   - a or Enter: Enter values for the selected group (or x y pairs)
//   - [ and ]: Select group
//   - ":": Run a command (delete, rename-var, add-group, ...)
//   - r: Refresh now; also resumes after idle suspension
//   - o, n, x: Open/close collection, renew window, extend session (admin)
//   - Tab or l: Log view; f toggles follow, v cycles level
//   - T: Cycle theme (saved to preferences)
//   - q or Ctrl+C: Exit
package ui
