package server

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidID        = errors.New("server: invalid sentence id")
	ErrEndOfStream      = errors.New("server: end of stream")
	ErrHandlerFailure   = errors.New("server: handler failure")
	ErrServerStarted    = errors.New("server: already started")
	ErrServerNotStarted = errors.New("server: not started")
	ErrConnClosed       = errors.New("server: connection closed")
)

// Stage names the dispatch step that failed.
type Stage string

const (
	StagePre      Stage = "pre"
	StageChecksum Stage = "checksum"
	StageMissing  Stage = "missing"
	StageHandler  Stage = "handler"
	StagePost     Stage = "post"
)

// HandlerFailure wraps an error or recovered panic from a user hook.
type HandlerFailure struct {
	Stage      Stage
	SentenceID string
	Err        error
}

func (f *HandlerFailure) Error() string {
	if f.SentenceID == "" {
		return fmt.Sprintf("server: %s hook failed: %v", f.Stage, f.Err)
	}
	return fmt.Sprintf("server: %s hook failed sentence_id=%s: %v", f.Stage, f.SentenceID, f.Err)
}

func (f *HandlerFailure) Unwrap() []error {
	return []error{ErrHandlerFailure, f.Err}
}
