// Package logtail reads the tail of tally's log file for the in-app log
// view.
//
// Read extracts the last N lines by reading backward from the end of the
// file in fixed blocks, so a long-running log is never scanned in full. Parse decodes the JSON records
// written by internal/logging into an Entry, and Tail combines the two with
// a minimum-level filter:
//
//	lines, err := logtail.Tail(cfg.LogPath, 400, "info")
//
// Lines that are not JSON (a panic trace, say) pass through unchanged.
package logtail
