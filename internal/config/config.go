package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/nmead/internal/handlers"
	"github.com/danmuck/nmead/internal/protocol"
	"github.com/danmuck/nmead/internal/server"
)

var (
	ErrInvalidPort            = errors.New("config: invalid port")
	ErrInvalidErrorSentenceID = errors.New("config: invalid error_sentence_id")
	ErrInvalidDuration        = errors.New("config: invalid duration")
	ErrInvalidMaxConnections  = errors.New("config: invalid max_connections")
	ErrInvalidStreamSentence  = errors.New("config: invalid stream sentence")
	ErrUndecodedKeys          = errors.New("config: unknown keys")
)

const DefaultStreamSentence = "TXSTA,alive"

// Config is the resolved nmead runtime configuration.
type Config struct {
	Server      server.Config
	AdminAddr   string
	AdminToken  string
	CorsOrigins []string
	Trace       bool
	Stream      StreamConfig
	Handlers    []handlers.Spec
}

// StreamConfig drives the builtin ticker streamer. Zero Interval disables it.
type StreamConfig struct {
	Interval time.Duration
	Sentence string
}

// fileConfig is the config.toml key mapping.
type fileConfig struct {
	Host            string          `toml:"host"`
	Port            int             `toml:"port"`
	Debug           bool            `toml:"debug"`
	ErrorSentenceID string          `toml:"error_sentence_id"`
	ReadTimeout     string          `toml:"read_timeout"`
	MaxConnections  int             `toml:"max_connections"`
	ShutdownTimeout string          `toml:"shutdown_timeout"`
	AdminAddr       string          `toml:"admin_addr"`
	AdminToken      string          `toml:"admin_token"`
	CorsOrigins     []string        `toml:"cors_origins"`
	Trace           bool            `toml:"trace"`
	Stream          streamFile      `toml:"stream"`
	Handlers        []handlers.Spec `toml:"handlers"`
}

type streamFile struct {
	Interval string `toml:"interval"`
	Sentence string `toml:"sentence"`
}

func Default() Config {
	return Config{
		Server:      server.DefaultConfig(),
		CorsOrigins: []string{},
		Stream:      StreamConfig{Sentence: DefaultStreamSentence},
	}
}

// Load overlays the keys present in path onto Default and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Config{}, fmt.Errorf("%w (%s): %s", ErrUndecodedKeys, path, strings.Join(keys, ", "))
	}

	if meta.IsDefined("host") {
		cfg.Server.Host = strings.TrimSpace(raw.Host)
	}
	if meta.IsDefined("port") {
		cfg.Server.Port = raw.Port
	}
	if meta.IsDefined("debug") {
		cfg.Server.Debug = raw.Debug
	}
	if meta.IsDefined("error_sentence_id") {
		cfg.Server.ErrorSentenceID = strings.ToUpper(strings.TrimSpace(raw.ErrorSentenceID))
	}
	if meta.IsDefined("read_timeout") {
		if cfg.Server.ReadTimeout, err = parseDuration("read_timeout", raw.ReadTimeout); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("max_connections") {
		cfg.Server.MaxConnections = raw.MaxConnections
	}
	if meta.IsDefined("shutdown_timeout") {
		if cfg.Server.ShutdownTimeout, err = parseDuration("shutdown_timeout", raw.ShutdownTimeout); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if meta.IsDefined("admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = trimAll(raw.CorsOrigins)
	}
	if meta.IsDefined("trace") {
		cfg.Trace = raw.Trace
	}
	if meta.IsDefined("stream", "interval") {
		if cfg.Stream.Interval, err = parseDuration("stream.interval", raw.Stream.Interval); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("stream", "sentence") {
		cfg.Stream.Sentence = strings.TrimSpace(raw.Stream.Sentence)
	}
	if meta.IsDefined("handlers") {
		cfg.Handlers = raw.Handlers
	}

	if err := Validate(cfg); err != nil {
		return Config{}, fmt.Errorf("config invalid (%s): %w", path, err)
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, cfg.Server.Port)
	}
	if !isSentenceID(cfg.Server.ErrorSentenceID) {
		return fmt.Errorf("%w: %q (want 2-char talker + 3-char type)", ErrInvalidErrorSentenceID, cfg.Server.ErrorSentenceID)
	}
	if cfg.Server.ReadTimeout < 0 {
		return fmt.Errorf("%w: read_timeout=%s", ErrInvalidDuration, cfg.Server.ReadTimeout)
	}
	if cfg.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: shutdown_timeout=%s", ErrInvalidDuration, cfg.Server.ShutdownTimeout)
	}
	if cfg.Server.MaxConnections < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMaxConnections, cfg.Server.MaxConnections)
	}
	if cfg.Stream.Interval < 0 {
		return fmt.Errorf("%w: stream.interval=%s", ErrInvalidDuration, cfg.Stream.Interval)
	}
	if cfg.Stream.Interval > 0 {
		if _, err := protocol.Parse(protocol.Format(cfg.Stream.Sentence, false), true); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidStreamSentence, cfg.Stream.Sentence, err)
		}
	}
	for i, spec := range cfg.Handlers {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("handlers[%d] invalid: %w", i, err)
		}
	}
	return nil
}

func parseDuration(key, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %v", ErrInvalidDuration, key, raw, err)
	}
	return d, nil
}

func isSentenceID(id string) bool {
	if len(id) != 5 {
		return false
	}
	for _, r := range id {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
