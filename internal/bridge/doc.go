// Package bridge connects one PTY session to one client connection.
//
// The package implements:
//   - Bridge: the supervisor that spawns the PTY, drives the duplex pump and
//     releases every resource when either side ends
//   - the duplex pump: PTY output to binary frames, and client frames to PTY input
//   - DecodeControl: recognition of resize control messages on text frames
//
// Key features:
//   - Byte order is preserved within each direction
//   - The first direction to end cancels the other at its next suspension point
//   - Only a spawn failure is reported to the caller; every other ending is a
//     normal close
//   - Text frames that are not control messages reach the PTY verbatim
package bridge
