// Package server owns the NMEA sentence dispatch engine.
//
// Ownership boundary:
// - handler registry (absent/muted/active per sentence id)
// - per-line dispatch through pre/post/missing/checksum/error hooks
// - per-connection worker loop and optional response streamer
// - accept loop and cooperative shutdown
//
// Registration (handlers and hooks) is configuration: it must happen before
// Start or Serve, and the Server rejects it afterwards with ErrServerStarted.
package server
