package server

import (
	"bufio"
	"io"
	"net"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

const (
	KeyClientAddress = "client_address"
	KeyRemoteAddr    = "remote_addr"
)

// ConnContext is the mutable state of one connection. It is shared only by
// the connection worker and its streamer, so every method is goroutine-safe.
type ConnContext struct {
	remote string

	mu     sync.RWMutex
	values map[string]any

	streaming atomic.Bool
	done      chan struct{}
	closeOnce sync.Once

	wmu    sync.Mutex
	w      *bufio.Writer
	closed atomic.Bool
}

// NewConnContext seeds a context with the peer address. w receives Send
// output and may be nil for contexts that never write.
func NewConnContext(remote string, w io.Writer) *ConnContext {
	cc := &ConnContext{
		remote: remote,
		values: map[string]any{
			KeyClientAddress: clientHost(remote),
			KeyRemoteAddr:    remote,
		},
		done: make(chan struct{}),
	}
	if w != nil {
		cc.w = bufio.NewWriter(w)
	}
	return cc
}

func (c *ConnContext) RemoteAddr() string {
	return c.remote
}

func (c *ConnContext) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

// String returns the value at key when it holds a string.
func (c *ConnContext) String(key string) string {
	v, _ := c.Get(key)
	s, _ := v.(string)
	return s
}

func (c *ConnContext) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

func (c *ConnContext) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
}

func (c *ConnContext) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot copies the current values.
func (c *ConnContext) Snapshot() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Streaming reports whether the streamer should keep sending.
func (c *ConnContext) Streaming() bool {
	return c.streaming.Load()
}

func (c *ConnContext) SetStreaming(v bool) {
	c.streaming.Store(v)
}

// Done is closed when the connection ends.
func (c *ConnContext) Done() <-chan struct{} {
	return c.done
}

// Send writes one newline-terminated line and flushes. Writes from the
// worker and the streamer never interleave.
func (c *ConnContext) Send(line string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if c.closed.Load() || c.w == nil {
		return ErrConnClosed
	}
	if _, err := c.w.WriteString(terminate(line)); err != nil {
		return err
	}
	return c.w.Flush()
}

// finish stops streaming, releases Done waiters, and rejects further Sends.
func (c *ConnContext) finish() {
	c.closeOnce.Do(func() {
		c.streaming.Store(false)
		c.closed.Store(true)
		close(c.done)
	})
}

// terminate guarantees exactly one trailing newline.
func terminate(s string) string {
	return strings.TrimRight(s, "\n") + "\n"
}

func clientHost(remote string) string {
	host, _, err := net.SplitHostPort(remote)
	if err != nil {
		return remote
	}
	return host
}
