// Package ws provides WebSocket connection handling for terminal sessions.
//
// The package implements:
//   - Conn: a gorilla/websocket connection adapted to bridge.Conn, with
//     ping/pong keepalive and context-aware reads
//   - Handler: upgrades HTTP requests, runs one terminal session per
//     connection and closes it with a code describing the outcome
//
// Close codes:
//   - 1000 "session ended": the terminal or the client ended the session
//   - 1011 "failed to start terminal": the PTY could not be spawned
//   - 1001 "server shutting down": the server stopped the session
//   - 1009 (sent by gorilla): a frame exceeded the read limit
package ws
