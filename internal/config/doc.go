// Package config loads tally's TOML configuration.
//
// # Configuration Discovery
//
// The Load function follows this resolution order:
//
//  1. If a path is explicitly provided, use it
//  2. Otherwise, use ~/.config/tally/config.toml (default)
//  3. If the config file doesn't exist, fall back to defaults
//  4. If the file exists but fields are missing, empty, or zero, use defaults
//
// # TOML Format
//
//	store_url = "127.0.0.1:8750"
//	log_path = "~/.local/share/tally/tally.log"
//	log_level = "info"
//
//	[poll]
//	default_interval_ms = 3000
//	max_interval_ms = 20000
//
//	[activity]
//	idle_timeout_ms = 300000
//	slow_response_ms = 8000
//
//	[collection]
//	window_ms = 900000
//	warning_ms = 60000
//
//	[server]
//	listen = "127.0.0.1:8750"
//	database = "~/.local/share/tally/tally.db"
//	cache_ttl_ms = 2000
//	session_ttl_hours = 24
//
// Every field is optional. Tilde expansion is performed for paths.
//
// # Validation
//
// Combinations the engine cannot honour are clamped rather than rejected:
// a max_interval_ms below default_interval_ms is raised to it, and a
// warning_ms that does not fit inside window_ms is shrunk.
//
// # Error Handling
//
// Load returns errors for path expansion failures, read errors other than
// a missing file, and TOML parse errors ("parse config").
package config
