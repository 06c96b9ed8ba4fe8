package handlers

import (
	"time"

	"github.com/danmuck/nmead/internal/protocol"
	"github.com/danmuck/nmead/internal/server"
	"github.com/rs/zerolog/log"
)

// Ticker sends Format(body) every interval while the connection streams.
// A non-positive interval returns nil, which leaves streaming disabled.
func Ticker(interval time.Duration, body string) server.StreamerFunc {
	if interval <= 0 {
		return nil
	}
	line := protocol.Format(body, false)
	return func(cc *server.ConnContext) {
		t := time.NewTicker(interval)
		defer t.Stop()
		for cc.Streaming() {
			select {
			case <-cc.Done():
				return
			case <-t.C:
			}
			if !cc.Streaming() {
				return
			}
			if err := cc.Send(line); err != nil {
				log.Debug().Str("remote", cc.RemoteAddr()).Err(err).Msg("handlers.ticker stopped")
				return
			}
		}
	}
}
