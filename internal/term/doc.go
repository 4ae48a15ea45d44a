// Package term implements persistent interactive shell sessions for the
// browser terminal.
//
// Each session owns a PTY-backed shell process that outlives any single
// WebSocket connection: the browser can disconnect and reconnect at will and
// the shell keeps running. The package provides the process supervisor
// (spawn/resize/write/kill), the session state machine and registry, the
// JSON wire protocol spoken over WebSocket frames, and the idle sweep that
// reclaims abandoned sessions.
package term
