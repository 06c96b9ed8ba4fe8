package config

import (
	"fmt"
	"os"

	"github.com/danmuck/nmead/internal/handlers"
	"github.com/pelletier/go-toml/v2"
)

// Template renders a starter config.toml from the defaults
// plus one sample acknowledging handler.
func Template() (string, error) {
	def := Default()
	file := fileConfig{
		Host:            def.Server.Host,
		Port:            def.Server.Port,
		Debug:           def.Server.Debug,
		ErrorSentenceID: def.Server.ErrorSentenceID,
		ReadTimeout:     def.Server.ReadTimeout.String(),
		MaxConnections:  def.Server.MaxConnections,
		ShutdownTimeout: def.Server.ShutdownTimeout.String(),
		AdminAddr:       "127.0.0.1:9100",
		CorsOrigins:     []string{"http://localhost:3000"},
		Trace:           def.Trace,
		Stream: streamFile{
			Interval: def.Stream.Interval.String(),
			Sentence: def.Stream.Sentence,
		},
		Handlers: []handlers.Spec{
			{ID: "RBHRB", Kind: handlers.KindAck, Reply: "TXHRB,Success"},
			{ID: "RBECH", Kind: handlers.KindEcho, Reply: "TXECH"},
		},
	}
	out, err := toml.Marshal(file)
	if err != nil {
		return "", fmt.Errorf("config template render failed: %w", err)
	}
	return string(out), nil
}

func WriteTemplate(path string, overwrite bool) error {
	template, err := Template()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
