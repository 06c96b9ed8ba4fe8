package server

import "github.com/danmuck/nmead/internal/protocol"

// Handler answers one parsed sentence. An empty response sends nothing.
type Handler interface {
	ServeSentence(cc *ConnContext, s protocol.Sentence) (string, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(cc *ConnContext, s protocol.Sentence) (string, error)

func (f HandlerFunc) ServeSentence(cc *ConnContext, s protocol.Sentence) (string, error) {
	return f(cc, s)
}

// PreHandlerFunc sees each raw line first. Returning ok=false drops the line
// silently; otherwise the returned line replaces the input.
type PreHandlerFunc func(cc *ConnContext, line string) (out string, ok bool, err error)

// PostHandlerFunc sees the handler response and returns what is sent.
type PostHandlerFunc func(cc *ConnContext, s protocol.Sentence, response string) (string, error)

// MissingHandlerFunc answers sentences whose id is absent or muted.
type MissingHandlerFunc func(cc *ConnContext, s protocol.Sentence) (string, error)

// ChecksumHandlerFunc answers lines that fail to parse or fail the checksum.
type ChecksumHandlerFunc func(cc *ConnContext, raw string) (string, error)

// ErrorHandlerFunc observes hook failures. It may reply through cc.Send.
type ErrorHandlerFunc func(cc *ConnContext, err error)

// ContextCreatorFunc enriches a new connection's context. An error closes
// the connection.
type ContextCreatorFunc func(cc *ConnContext) error

// StreamerFunc runs once per connection in its own goroutine and may send
// unsolicited sentences until cc.Streaming reports false.
type StreamerFunc func(cc *ConnContext)

// Hooks holds one slot per hook. A nil slot is disabled.
type Hooks struct {
	Pre            PreHandlerFunc
	Post           PostHandlerFunc
	Missing        MissingHandlerFunc
	Checksum       ChecksumHandlerFunc
	Error          ErrorHandlerFunc
	ContextCreator ContextCreatorFunc
	Streamer       StreamerFunc
}
