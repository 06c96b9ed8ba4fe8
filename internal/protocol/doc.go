// Package protocol owns the NMEA 0183 sentence wire contract.
//
// Ownership boundary:
// - checksum computation
// - sentence formatting and line termination
// - sentence parsing (strict and lax)
package protocol
