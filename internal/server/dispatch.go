package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/nmead/internal/observability"
	"github.com/danmuck/nmead/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Outcome labels how one line left the dispatcher.
type Outcome string

const (
	OutcomeHandled     Outcome = "handled"
	OutcomeSuppressed  Outcome = "suppressed"
	OutcomeEndOfStream Outcome = "eos"
	OutcomeInvalid     Outcome = "invalid"
	OutcomeMissing     Outcome = "missing"
	OutcomeFailed      Outcome = "failed"
)

// Dispatcher routes one inbound line through the hook chain. It holds a copy
// of the hooks taken at construction; the registry is shared.
type Dispatcher struct {
	registry *Registry
	hooks    Hooks
}

func NewDispatcher(registry *Registry, hooks Hooks) *Dispatcher {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Dispatcher{registry: registry, hooks: hooks}
}

type result struct {
	outcome    Outcome
	sentenceID string
	response   string
	failure    error
}

// Dispatch returns the response for line, newline-terminated, or "" when
// nothing should be sent. The only error returned is ErrEndOfStream; hook
// failures go to the error hook and are absorbed.
func (d *Dispatcher) Dispatch(ctx context.Context, cc *ConnContext, line string) (string, error) {
	start := time.Now()
	_, span := observability.StartDispatchSpan(ctx, cc.RemoteAddr())
	res := d.dispatch(cc, line)
	observability.EndDispatchSpan(span, res.sentenceID, string(res.outcome), res.failure)
	observability.RecordDispatch(metricID(res), string(res.outcome), time.Since(start))

	if res.outcome == OutcomeEndOfStream {
		return "", ErrEndOfStream
	}
	if res.response == "" {
		return "", nil
	}
	return terminate(res.response), nil
}

func (d *Dispatcher) dispatch(cc *ConnContext, line string) result {
	if d.hooks.Pre != nil {
		var (
			out string
			ok  bool
		)
		err := guard(func() error {
			var err error
			out, ok, err = d.hooks.Pre(cc, line)
			return err
		})
		if err != nil {
			return d.fail(cc, StagePre, "", err)
		}
		if !ok {
			return result{outcome: OutcomeSuppressed}
		}
		line = out
	}

	if line == "" {
		return result{outcome: OutcomeEndOfStream}
	}

	sentence, err := protocol.Parse(line, true)
	if err != nil {
		log.Debug().Str("remote", cc.RemoteAddr()).Err(err).Msg("nmea.dispatch invalid sentence")
		if d.hooks.Checksum == nil {
			return result{outcome: OutcomeInvalid}
		}
		resp, err := call(func() (string, error) { return d.hooks.Checksum(cc, line) })
		if err != nil {
			return d.fail(cc, StageChecksum, "", err)
		}
		return result{outcome: OutcomeInvalid, response: resp}
	}

	handler, state := d.registry.Lookup(sentence.ID)
	if state != StateActive {
		if d.hooks.Missing == nil {
			return result{outcome: OutcomeMissing, sentenceID: sentence.ID}
		}
		resp, err := call(func() (string, error) { return d.hooks.Missing(cc, sentence) })
		if err != nil {
			return d.fail(cc, StageMissing, sentence.ID, err)
		}
		return result{outcome: OutcomeMissing, sentenceID: sentence.ID, response: resp}
	}

	resp, err := call(func() (string, error) { return handler.ServeSentence(cc, sentence) })
	if err != nil {
		return d.fail(cc, StageHandler, sentence.ID, err)
	}
	if d.hooks.Post != nil {
		resp, err = call(func() (string, error) { return d.hooks.Post(cc, sentence, resp) })
		if err != nil {
			return d.fail(cc, StagePost, sentence.ID, err)
		}
	}
	return result{outcome: OutcomeHandled, sentenceID: sentence.ID, response: resp}
}

func (d *Dispatcher) fail(cc *ConnContext, stage Stage, sentenceID string, err error) result {
	failure := &HandlerFailure{Stage: stage, SentenceID: sentenceID, Err: err}
	log.Error().
		Str("remote", cc.RemoteAddr()).
		Str("stage", string(stage)).
		Str("sentence_id", sentenceID).
		Err(err).
		Msg("nmea.dispatch hook failed")

	if d.hooks.Error != nil {
		if herr := guard(func() error {
			d.hooks.Error(cc, failure)
			return nil
		}); herr != nil {
			log.Error().Str("remote", cc.RemoteAddr()).Err(herr).Msg("nmea.dispatch error hook failed")
		}
	}
	return result{outcome: OutcomeFailed, sentenceID: sentenceID, failure: failure}
}

// call runs a response-producing hook, converting panics into errors.
func call(fn func() (string, error)) (resp string, err error) {
	err = guard(func() error {
		var ferr error
		resp, ferr = fn()
		return ferr
	})
	return resp, err
}

func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// metricID keeps the sentence_id label bounded to registered ids.
func metricID(res result) string {
	switch res.outcome {
	case OutcomeHandled:
		return res.sentenceID
	case OutcomeMissing:
		return "unregistered"
	case OutcomeFailed:
		var failure *HandlerFailure
		if !errors.As(res.failure, &failure) {
			return ""
		}
		switch failure.Stage {
		case StageHandler, StagePost:
			return res.sentenceID
		case StageMissing:
			return "unregistered"
		}
	}
	return ""
}
