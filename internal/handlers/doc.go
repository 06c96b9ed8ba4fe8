// Package handlers provides config-driven builtin sentence handlers and the
// builtin response streamer.
package handlers
