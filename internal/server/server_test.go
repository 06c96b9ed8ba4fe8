package server

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/nmead/internal/protocol"
	"github.com/danmuck/nmead/internal/testutil/testlog"
)

func startTestServer(t *testing.T, cfg Config, configure func(s *Server)) *Server {
	t.Helper()
	cfg.Host = "127.0.0.1"
	cfg.Port = 0
	srv := New(cfg)
	if err := srv.HandleFunc("RBHRB", func(cc *ConnContext, s protocol.Sentence) (string, error) {
		return protocol.Format("TXHRB,Success", false), nil
	}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if configure != nil {
		configure(srv)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv
}

func dialTestServer(t *testing.T, srv *Server) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", srv.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	_ = conn.SetDeadline(time.Now().Add(3 * time.Second))
	return conn, bufio.NewReader(conn)
}

func roundTrip(t *testing.T, conn net.Conn, r *bufio.Reader, line string) string {
	t.Helper()
	if _, err := io.WriteString(conn, line+"\r\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	resp, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return resp
}

func expectClosed(t *testing.T, r *bufio.Reader) {
	t.Helper()
	if line, err := r.ReadString('\n'); !errors.Is(err, io.EOF) {
		t.Fatalf("expected server close, got line=%q err=%v", line, err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestServerRespondsPerLine(t *testing.T) {
	testlog.Start(t)
	srv := startTestServer(t, Config{Debug: true}, nil)
	conn, r := dialTestServer(t, srv)

	for i := 0; i < 3; i++ {
		if got := roundTrip(t, conn, r, hrbLine); got != hrbReply+"\n" {
			t.Fatalf("round %d unexpected response %q", i, got)
		}
	}
	got := roundTrip(t, conn, r, "$RBHRB,Test*28")
	if !strings.HasPrefix(got, "$TXERR,Message 'RBHRB,Test' has a bad checksum") {
		t.Fatalf("unexpected checksum diagnostic %q", got)
	}
	got = roundTrip(t, conn, r, protocol.Format("GPGGA,1", false))
	if !strings.Contains(got, "valid messageIds are: 'RBHRB'") {
		t.Fatalf("unexpected missing diagnostic %q", got)
	}
}

func TestServerEmptyLineClosesConnection(t *testing.T) {
	testlog.Start(t)
	srv := startTestServer(t, Config{}, nil)
	conn, r := dialTestServer(t, srv)

	if got := roundTrip(t, conn, r, hrbLine); got != hrbReply+"\n" {
		t.Fatalf("unexpected response %q", got)
	}
	if _, err := io.WriteString(conn, "\r\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	expectClosed(t, r)
	waitFor(t, "connection release", func() bool { return srv.ActiveConnections() == 0 })
}

func TestServerHandlesFinalLineWithoutTerminator(t *testing.T) {
	testlog.Start(t)
	seen := make(chan string, 1)
	srv := startTestServer(t, Config{}, func(s *Server) {
		_ = s.HandleFunc("RBXYZ", func(cc *ConnContext, sentence protocol.Sentence) (string, error) {
			seen <- sentence.Field(0)
			return "", nil
		})
	})
	conn, _ := dialTestServer(t, srv)
	if _, err := io.WriteString(conn, protocol.Format("RBXYZ,last", false)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.(*net.TCPConn).CloseWrite()
	select {
	case got := <-seen:
		if got != "last" {
			t.Fatalf("unexpected field %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("final unterminated line was not dispatched")
	}
}

func TestServerContextCreatorAndHandlerShareContext(t *testing.T) {
	testlog.Start(t)
	srv := startTestServer(t, Config{}, func(s *Server) {
		_ = s.SetContextCreator(func(cc *ConnContext) error {
			cc.Set("vehicle", "auvsi")
			return nil
		})
		_ = s.HandleFunc("RBWHO", func(cc *ConnContext, sentence protocol.Sentence) (string, error) {
			return protocol.Format("TXWHO,"+cc.String("vehicle")+","+cc.String(KeyClientAddress), false), nil
		})
	})
	conn, r := dialTestServer(t, srv)
	got := roundTrip(t, conn, r, protocol.Format("RBWHO,1", false))
	if got != protocol.Format("TXWHO,auvsi,127.0.0.1", false)+"\n" {
		t.Fatalf("unexpected response %q", got)
	}
}

func TestServerContextCreatorErrorClosesConnection(t *testing.T) {
	testlog.Start(t)
	srv := startTestServer(t, Config{}, func(s *Server) {
		_ = s.SetContextCreator(func(cc *ConnContext) error {
			return errors.New("rejected")
		})
	})
	_, r := dialTestServer(t, srv)
	expectClosed(t, r)
}

func TestServerStreamerSendsUntilDisconnect(t *testing.T) {
	testlog.Start(t)
	stopped := make(chan struct{})
	srv := startTestServer(t, Config{}, func(s *Server) {
		_ = s.SetStreamer(func(cc *ConnContext) {
			defer close(stopped)
			ticker := time.NewTicker(10 * time.Millisecond)
			defer ticker.Stop()
			for cc.Streaming() {
				if err := cc.Send(protocol.Format("TXSTA,alive", false)); err != nil {
					return
				}
				select {
				case <-cc.Done():
					return
				case <-ticker.C:
				}
			}
		})
	})
	conn, r := dialTestServer(t, srv)
	for i := 0; i < 2; i++ {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if line != "$TXSTA,alive*11\n" {
			t.Fatalf("unexpected streamed line %q", line)
		}
	}
	_ = conn.Close()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("streamer did not stop after disconnect")
	}
}

func TestServerShutdownWakesIdleConnections(t *testing.T) {
	testlog.Start(t)
	srv := startTestServer(t, Config{}, nil)
	_, r := dialTestServer(t, srv)
	waitFor(t, "connection accepted", func() bool { return srv.ActiveConnections() == 1 })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	expectClosed(t, r)
	if srv.ActiveConnections() != 0 {
		t.Fatalf("expected no active connections, got %d", srv.ActiveConnections())
	}
	if _, err := net.DialTimeout("tcp", srv.Addr().String(), 200*time.Millisecond); err == nil {
		t.Fatalf("expected listener closed after shutdown")
	}
}

func TestServerShutdownLetsRunningHandlerReply(t *testing.T) {
	testlog.Start(t)
	entered := make(chan struct{})
	srv := startTestServer(t, Config{}, func(s *Server) {
		_ = s.HandleFunc("RBSLW", func(cc *ConnContext, _ protocol.Sentence) (string, error) {
			close(entered)
			time.Sleep(300 * time.Millisecond)
			return protocol.Format("TXSLW,done", false), nil
		})
	})
	conn, r := dialTestServer(t, srv)
	if _, err := io.WriteString(conn, protocol.Format("RBSLW,go", true)); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler never ran")
	}

	done := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		done <- srv.Shutdown(ctx)
	}()

	got, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("expected reply before close, got err=%v", err)
	}
	if want := protocol.Format("TXSLW,done", false) + "\n"; got != want {
		t.Fatalf("unexpected reply %q want %q", got, want)
	}
	expectClosed(t, r)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("shutdown: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("shutdown did not return")
	}
	if srv.ActiveConnections() != 0 {
		t.Fatalf("expected no active connections, got %d", srv.ActiveConnections())
	}
}

func TestServerReadTimeoutClosesIdleConnection(t *testing.T) {
	testlog.Start(t)
	srv := startTestServer(t, Config{ReadTimeout: 50 * time.Millisecond}, nil)
	_, r := dialTestServer(t, srv)
	expectClosed(t, r)
}

func TestServerRejectsRegistrationAfterStart(t *testing.T) {
	testlog.Start(t)
	srv := startTestServer(t, Config{}, nil)
	checks := map[string]error{
		"handle":   srv.Handle("RBNEW", okHandler("x")),
		"mute":     srv.Mute("RBNEW"),
		"unhandle": srv.Unhandle("RBHRB"),
		"pre":      srv.SetPreHandler(nil),
		"post":     srv.SetPostHandler(nil),
		"missing":  srv.SetMissingHandler(nil),
		"checksum": srv.SetChecksumHandler(nil),
		"error":    srv.SetErrorHandler(nil),
		"context":  srv.SetContextCreator(nil),
		"streamer": srv.SetStreamer(nil),
		"start":    srv.Start(),
	}
	for name, err := range checks {
		if !errors.Is(err, ErrServerStarted) {
			t.Fatalf("%s: expected ErrServerStarted, got %v", name, err)
		}
	}
	if _, state := srv.Registry().Lookup("RBHRB"); state != StateActive {
		t.Fatalf("registry changed after start: %s", state)
	}
}

func TestServerHookSlots(t *testing.T) {
	testlog.Start(t)
	srv := New(DefaultConfig())
	h := srv.Hooks()
	if h.Missing == nil || h.Checksum == nil || h.Error == nil {
		t.Fatalf("expected default fallbacks installed")
	}
	if h.Pre != nil || h.Post != nil || h.Streamer != nil || h.ContextCreator != nil {
		t.Fatalf("expected optional hooks empty")
	}
	_ = srv.SetPreHandler(func(cc *ConnContext, line string) (string, bool, error) { return line, true, nil })
	if srv.Hooks().Pre == nil {
		t.Fatalf("expected pre-handler set")
	}
	_ = srv.SetPreHandler(nil)
	_ = srv.SetMissingHandler(nil)
	if srv.Hooks().Pre != nil || srv.Hooks().Missing != nil {
		t.Fatalf("expected slots cleared")
	}
	if err := srv.HandleFunc("RBOFF", nil); err != nil {
		t.Fatalf("handle nil: %v", err)
	}
	if _, state := srv.Registry().Lookup("RBOFF"); state != StateMuted {
		t.Fatalf("expected nil HandleFunc to mute, got %s", state)
	}
}

func TestServerShutdownBeforeStart(t *testing.T) {
	testlog.Start(t)
	srv := New(Config{})
	if err := srv.Shutdown(context.Background()); !errors.Is(err, ErrServerNotStarted) {
		t.Fatalf("expected ErrServerNotStarted, got %v", err)
	}
	if srv.Addr() != nil {
		t.Fatalf("expected nil addr before start")
	}
	if srv.Config().Port != 0 || srv.Config().ErrorSentenceID != DefaultErrorSentenceID {
		t.Fatalf("unexpected defaults: %+v", srv.Config())
	}
}

func TestServeStopsOnContextCancel(t *testing.T) {
	testlog.Start(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := New(DefaultConfig())
	_ = srv.HandleFunc("RBHRB", func(cc *ConnContext, s protocol.Sentence) (string, error) {
		return hrbReply, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, ln) }()

	conn, err := net.DialTimeout("tcp", ln.Addr().String(), time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(3 * time.Second))
	r := bufio.NewReader(conn)
	if got := roundTrip(t, conn, r, hrbLine); got != hrbReply+"\n" {
		t.Fatalf("unexpected response %q", got)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("serve did not return after cancel")
	}
	expectClosed(t, r)
}

func TestServerMaxConnections(t *testing.T) {
	testlog.Start(t)
	srv := startTestServer(t, Config{MaxConnections: 1}, nil)
	first, r1 := dialTestServer(t, srv)
	if got := roundTrip(t, first, r1, hrbLine); got != hrbReply+"\n" {
		t.Fatalf("unexpected response %q", got)
	}

	second, r2 := dialTestServer(t, srv)
	if _, err := io.WriteString(second, hrbLine+"\r\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = second.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, err := r2.ReadString('\n'); err == nil {
		t.Fatalf("expected second connection to wait for capacity")
	}

	_ = first.Close()
	_ = second.SetReadDeadline(time.Now().Add(2 * time.Second))
	got, err := r2.ReadString('\n')
	if err != nil || got != hrbReply+"\n" {
		t.Fatalf("expected queued line served after capacity frees, got %q err=%v", got, err)
	}
}
