// Package app is tally's composition root.
//
// # Overview
//
// Run wires configuration, logging, preferences, the store client, the
// sync engine, and the UI into one program:
//
//	┌──────────────┐
//	│   Run()      │
//	└──────┬───────┘
//	       ├─────> config.Load()        Read ~/.config/tally/config.toml
//	       ├─────> logging.Open()       JSON log file (the terminal is the UI's)
//	       ├─────> classapi.NewClient() HTTP client for the store
//	       ├─────> Connect()            engine.Join / engine.Create
//	       ├─────> prefs.Save()         Remember code and admin token
//	       └─────> ui.Run()             Start TUI (blocks)
//
// The engine reports through storeHooks, which mirror every callback into
// a state.Store. The UI never touches the engine's state directly; it
// reads store snapshots on its render tick and calls Session methods for
// user actions.
//
// # Error Handling
//
// Fatal (returned from Run): invalid config, unreachable store or unknown
// code at join, a rejected admin token. Everything after the join is
// recoverable and shows up in the UI through the store.
package app
