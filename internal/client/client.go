package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"os"
	"strings"
	"time"

	"github.com/danmuck/nmead/internal/protocol"
	"github.com/rs/zerolog/log"
)

var (
	ErrAddressRequired = errors.New("client: address required")
	ErrNoResponse      = errors.New("client: no response")
)

type Config struct {
	Address        string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	// MaxAttempts bounds dial attempts. Zero or less retries until ctx ends.
	MaxAttempts int
	Backoff     BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
		MaxAttempts:    3,
		Backoff:        DefaultBackoff(),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	return c
}

// Client dials an NMEA sentence server.
type Client struct {
	cfg Config
	rng *rand.Rand
}

func New(cfg Config) (*Client, error) {
	cfg.Address = strings.TrimSpace(cfg.Address)
	if cfg.Address == "" {
		return nil, ErrAddressRequired
	}
	return &Client{
		cfg: cfg.withDefaults(),
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Dial connects, retrying with backoff until MaxAttempts or ctx ends.
func (c *Client) Dial(ctx context.Context) (*Conn, error) {
	var attempt int
	for {
		attempt++
		dialer := net.Dialer{Timeout: c.cfg.ConnectTimeout}
		conn, err := dialer.DialContext(ctx, "tcp", c.cfg.Address)
		if err == nil {
			log.Debug().Str("addr", c.cfg.Address).Int("attempt", attempt).Msg("client.dial connected")
			return &Conn{cfg: c.cfg, conn: conn, reader: bufio.NewReader(conn)}, nil
		}
		log.Warn().Str("addr", c.cfg.Address).Int("attempt", attempt).Err(err).Msg("client.dial failed")
		if !c.shouldRetry(attempt) || ctx.Err() != nil {
			return nil, err
		}
		if err := c.sleepBackoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

func (c *Client) shouldRetry(attempt int) bool {
	if c.cfg.MaxAttempts <= 0 {
		return true
	}
	return attempt < c.cfg.MaxAttempts
}

func (c *Client) sleepBackoff(ctx context.Context, attempt int) error {
	delay := NextBackoffDelay(c.cfg.Backoff, attempt, c.rng)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Conn is one live connection. It is not safe for concurrent Sends.
type Conn struct {
	cfg    Config
	conn   net.Conn
	reader *bufio.Reader
}

// Send writes one sentence and waits for one reply line. Unless raw is set,
// body is completed with '$' and checksum first. The reply is returned
// without its terminator.
func (c *Conn) Send(ctx context.Context, body string, raw bool) (string, error) {
	line := body
	if !raw {
		line = protocol.Format(body, false)
	}
	line = strings.TrimRight(line, "\r\n") + protocol.Terminator

	if err := c.setWriteDeadline(ctx); err != nil {
		return "", err
	}
	if _, err := io.WriteString(c.conn, line); err != nil {
		return "", err
	}
	return c.Receive(ctx)
}

// Receive reads the next line the server sends.
func (c *Conn) Receive(ctx context.Context) (string, error) {
	if err := c.setReadDeadline(ctx); err != nil {
		return "", err
	}
	resp, err := c.reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, os.ErrDeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", ErrNoResponse, err)
		}
		return "", err
	}
	return strings.TrimRight(resp, "\r\n"), nil
}

func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) setWriteDeadline(ctx context.Context) error {
	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	return c.conn.SetWriteDeadline(deadline)
}

func (c *Conn) setReadDeadline(ctx context.Context) error {
	deadline := time.Now().Add(c.cfg.ReadTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	return c.conn.SetReadDeadline(deadline)
}
