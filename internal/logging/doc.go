// Package logging configures structured logging for docindex.
//
// Long-running commands (serve, worker) write JSON logs to a rotating file
// under ~/.docindex/logs/ and a human-readable copy to stderr. One-shot
// commands log to stderr only. The logs command reads the file back through
// Viewer.
package logging
