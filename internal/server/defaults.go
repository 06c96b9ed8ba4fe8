package server

import (
	"fmt"
	"strings"

	"github.com/danmuck/nmead/internal/protocol"
	"github.com/rs/zerolog/log"
)

const DefaultErrorSentenceID = "TXERR"

// DefaultHooks returns the fallbacks a new Server starts with.
func DefaultHooks(registry *Registry, errorSentenceID string) Hooks {
	return Hooks{
		Missing:  DefaultMissingHandler(registry, errorSentenceID),
		Checksum: DefaultChecksumHandler(errorSentenceID),
		Error:    DefaultErrorHandler(),
	}
}

// DefaultChecksumHandler replies with a diagnostic naming the correct checksum.
func DefaultChecksumHandler(errorSentenceID string) ChecksumHandlerFunc {
	return func(cc *ConnContext, raw string) (string, error) {
		good := protocol.Checksum(raw)
		msg := fmt.Sprintf("Message '%s' has a bad checksum. Correct checksum is '%s'", diagnosticBody(raw), good)
		log.Debug().Str("remote", cc.RemoteAddr()).Msg(msg)
		return protocol.Format(errorSentenceID+","+msg, false), nil
	}
}

// DefaultMissingHandler replies with a diagnostic listing the registered ids.
func DefaultMissingHandler(registry *Registry, errorSentenceID string) MissingHandlerFunc {
	return func(cc *ConnContext, s protocol.Sentence) (string, error) {
		valid := strings.Join(registry.IDs(), ", ")
		msg := fmt.Sprintf("Received message '%s' but the valid messageIds are: '%s'", s.ID, valid)
		log.Debug().Str("remote", cc.RemoteAddr()).Msg(msg)
		return protocol.Format(errorSentenceID+","+msg, false), nil
	}
}

// DefaultErrorHandler logs the failure and sends nothing to the peer.
func DefaultErrorHandler() ErrorHandlerFunc {
	return func(cc *ConnContext, err error) {
		log.Debug().Str("remote", cc.RemoteAddr()).Err(err).Msg("nmea.dispatch default error handler")
	}
}

// diagnosticBody strips the delimiters from raw so the echoed text cannot
// terminate the diagnostic sentence's own checksum.
func diagnosticBody(raw string) string {
	body := strings.TrimPrefix(raw, "$")
	if i := strings.IndexByte(body, '*'); i >= 0 {
		body = body[:i]
	}
	return strings.NewReplacer("$", "", "\r", "", "\n", "").Replace(body)
}
