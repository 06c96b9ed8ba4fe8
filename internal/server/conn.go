package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/danmuck/nmead/internal/observability"
	"github.com/rs/zerolog/log"
)

// handleConn reads one line at a time and writes at most one response per line.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	defer s.untrackConn(conn)

	remote := conn.RemoteAddr().String()
	active := s.activeConns.Add(1)
	observability.ConnectionOpened()
	log.Info().Str("remote", remote).Int64("active_clients", active).Msg("nmea.conn client connected")
	defer func() {
		remaining := s.activeConns.Add(-1)
		observability.ConnectionClosed()
		log.Info().Str("remote", remote).Int64("active_clients", remaining).Msg("nmea.conn client disconnected")
	}()

	cc := NewConnContext(remote, conn)
	defer cc.finish()

	hooks := s.dispatcher.hooks
	if hooks.ContextCreator != nil {
		if err := guard(func() error { return hooks.ContextCreator(cc) }); err != nil {
			log.Warn().Str("remote", remote).Err(err).Msg("nmea.conn context creator failed")
			return
		}
	}
	if hooks.Streamer != nil {
		cc.SetStreaming(true)
		s.wg.Add(1)
		go s.runStreamer(hooks.Streamer, cc)
	}

	reader := bufio.NewReader(conn)
	for {
		if s.stopping.Load() {
			return
		}
		if s.cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		} else {
			_ = conn.SetReadDeadline(time.Time{})
		}
		// stop may have fired between the first check and arming the deadline.
		if s.stopping.Load() {
			return
		}

		raw, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && strings.TrimSpace(raw) != "" {
				s.handleLine(ctx, cc, raw)
			}
			logReadEnd(remote, err)
			return
		}
		if !s.handleLine(ctx, cc, raw) {
			return
		}
	}
}

// handleLine dispatches one line and reports whether the connection stays open.
func (s *Server) handleLine(ctx context.Context, cc *ConnContext, raw string) bool {
	line := strings.TrimSpace(raw)
	if s.cfg.Debug {
		log.Debug().Str("remote", cc.RemoteAddr()).Msgf("< %s", line)
	}

	resp, err := s.dispatcher.Dispatch(ctx, cc, line)
	if errors.Is(err, ErrEndOfStream) {
		log.Debug().Str("remote", cc.RemoteAddr()).Msg("nmea.conn end of stream")
		return false
	}
	if resp == "" {
		return true
	}
	if err := cc.Send(resp); err != nil {
		log.Warn().Str("remote", cc.RemoteAddr()).Err(err).Msg("nmea.conn write failed")
		return false
	}
	if s.cfg.Debug {
		log.Debug().Str("remote", cc.RemoteAddr()).Msgf("> %s", strings.TrimRight(resp, "\r\n"))
	}
	return true
}

func (s *Server) runStreamer(fn StreamerFunc, cc *ConnContext) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("remote", cc.RemoteAddr()).Interface("panic", r).Msg("nmea.conn streamer panicked")
		}
	}()
	fn(cc)
}

func logReadEnd(remote string, err error) {
	var ne net.Error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		log.Debug().Str("remote", remote).Msg("nmea.conn peer closed")
	case errors.As(err, &ne) && ne.Timeout():
		log.Debug().Str("remote", remote).Msg("nmea.conn read deadline reached")
	default:
		log.Warn().Str("remote", remote).Err(err).Msg("nmea.conn read failed")
	}
}
