package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/nmead/internal/protocol"
	"github.com/danmuck/nmead/internal/server"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownKind   = errors.New("handlers: unknown handler kind")
	ErrReplyRequired = errors.New("handlers: reply required")
)

type Kind string

const (
	KindAck  Kind = "ack"
	KindEcho Kind = "echo"
	KindMute Kind = "mute"
)

// Spec declares one builtin handler bound to a sentence id.
type Spec struct {
	ID    string `toml:"id"`
	Kind  Kind   `toml:"kind"`
	Reply string `toml:"reply"`
}

// Registrar is the registration surface Install needs from a server.
type Registrar interface {
	Handle(id string, h server.Handler) error
	Mute(id string) error
}

// Validate checks one spec without registering it.
func (s Spec) Validate() error {
	if err := server.ValidateID(s.ID); err != nil {
		return err
	}
	switch normalizeKind(s.Kind) {
	case KindAck:
		if strings.TrimSpace(s.Reply) == "" {
			return fmt.Errorf("%w: kind=%s id=%q", ErrReplyRequired, KindAck, s.ID)
		}
	case KindEcho, KindMute:
	default:
		return fmt.Errorf("%w: %q for id=%q", ErrUnknownKind, s.Kind, s.ID)
	}
	return nil
}

// Build returns the handler for s. Mute specs build a nil handler.
func (s Spec) Build() (server.Handler, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	switch normalizeKind(s.Kind) {
	case KindAck:
		return Ack(s.Reply), nil
	case KindEcho:
		return Echo(s.Reply), nil
	default:
		return nil, nil
	}
}

// Install validates every spec first, then registers them in order.
func Install(r Registrar, specs []Spec) error {
	for _, spec := range specs {
		if err := spec.Validate(); err != nil {
			return err
		}
	}
	for _, spec := range specs {
		h, err := spec.Build()
		if err != nil {
			return err
		}
		if h == nil {
			err = r.Mute(spec.ID)
		} else {
			err = r.Handle(spec.ID, h)
		}
		if err != nil {
			return fmt.Errorf("handlers: install id=%q: %w", spec.ID, err)
		}
		log.Debug().Str("sentence_id", spec.ID).Str("kind", string(normalizeKind(spec.Kind))).Msg("handlers.install")
	}
	return nil
}

// Ack answers every sentence with the same formatted reply.
func Ack(reply string) server.HandlerFunc {
	out := protocol.Format(reply, false)
	return func(cc *server.ConnContext, s protocol.Sentence) (string, error) {
		return out, nil
	}
}

// Echo repeats the payload under replyID, or "TX"+type when replyID is empty.
func Echo(replyID string) server.HandlerFunc {
	replyID = strings.TrimSpace(replyID)
	return func(cc *server.ConnContext, s protocol.Sentence) (string, error) {
		id := replyID
		if id == "" {
			id = "TX" + s.Type
		}
		return protocol.Format(id+","+strings.Join(s.Data, ","), false), nil
	}
}

func normalizeKind(k Kind) Kind {
	return Kind(strings.ToLower(strings.TrimSpace(string(k))))
}
