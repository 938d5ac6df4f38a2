package answer

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cra88y/answerstream/provider"
)

// events buffered between the upstream read loop and the downstream writer.
// A slow caller blocks the upstream read beyond this window.
const eventBuffer = 16

// State is the session lifecycle phase.
type State int32

const (
	StateIdle State = iota
	StateAuthorizing
	StateContextReady
	StateStreaming
	StateCompleted
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAuthorizing:
		return "authorizing"
	case StateContextReady:
		return "context_ready"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Verifier gates the Authorizing transition. Implemented by the token
// authority; the session only needs the verified subject.
type Verifier interface {
	Verify(token string) (subject string, err error)
}

// Params describes one answer generation.
type Params struct {
	Query       string
	Lang        string
	Context     GroundingContext
	Token       string // stream token; empty on the pre-verified follow-up path
	PrevAnswer  string // prior transcript for follow-ups
	Turn        int
	MaxTokens   int
	Temperature float64

	// RenewState, when set, signs the conversation state carried by the
	// final done event so the client can chain another turn. It receives
	// the text generated this turn.
	RenewState func(generated string) (string, error)
}

// Session orchestrates one answer generation: authorization, prompt
// construction, provider streaming and inline citation linking. Each session
// serves exactly one request and is independently schedulable.
type Session struct {
	id       string
	prov     provider.Provider
	verifier Verifier
	params   Params
	linker   *Linker
	logger   *log.Logger
	state    atomic.Int32

	// generated accumulates the turn's text for state renewal.
	generated strings.Builder
}

// NewSession builds a session for a fresh stream-open request. The token is
// verified when Run starts.
func NewSession(prov provider.Provider, verifier Verifier, params Params, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.New(log.Writer(), "[STREAM] ", log.LstdFlags)
	}
	return &Session{
		id:       uuid.NewString(),
		prov:     prov,
		verifier: verifier,
		params:   params,
		linker:   NewLinker(params.Context.Deep),
		logger:   logger,
	}
}

// NewFollowUp builds a session from an already-verified conversation state.
// It skips authorization and goes straight to the carried-over context;
// there is no search re-run and no loopback request.
func NewFollowUp(prov provider.Provider, params Params, logger *log.Logger) *Session {
	s := NewSession(prov, nil, params, logger)
	return s
}

// ID identifies the session in logs and metrics.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle phase.
func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Run drives the session and returns its event stream. The channel is
// closed after the terminal event; when ctx is cancelled the upstream
// connection is torn down and the channel closes without a terminal event.
func (s *Session) Run(ctx context.Context) <-chan Event {
	ch := make(chan Event, eventBuffer)
	go s.run(ctx, ch)
	return ch
}

func (s *Session) run(ctx context.Context, ch chan<- Event) {
	defer close(ch)

	emit := func(ev Event) bool {
		if ctx.Err() != nil {
			s.setState(StateCancelled)
			return false
		}
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			s.setState(StateCancelled)
			return false
		}
	}

	fail := func(kind ErrorKind, msg string) {
		s.setState(StateFailed)
		s.logger.Printf("session %s failed: %s: %s", s.id, kind, msg)
		emit(Event{Type: EventError, Kind: kind, Message: msg})
	}

	if s.verifier != nil {
		s.setState(StateAuthorizing)
		subject, err := s.verifier.Verify(s.params.Token)
		if err != nil || subject != Fingerprint(s.params.Query, s.params.Context) {
			fail(ErrorUnauthorized, "stream token rejected")
			return
		}
	}
	s.setState(StateContextReady)

	req := provider.Request{
		Prompt:      BuildPrompt(s.params.Query, s.params.Context, s.params.PrevAnswer, s.params.Lang, s.params.MaxTokens, time.Now()),
		MaxTokens:   s.params.MaxTokens,
		Temperature: s.params.Temperature,
		Stop:        StopSequences,
	}

	stream, err := s.prov.Open(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			s.setState(StateCancelled)
			return
		}
		kind, msg := classify(err)
		fail(kind, msg)
		return
	}
	defer stream.Close()

	s.setState(StateStreaming)
	for {
		if ctx.Err() != nil {
			s.setState(StateCancelled)
			return
		}
		chunk, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.complete(emit)
				return
			}
			if ctx.Err() != nil {
				s.setState(StateCancelled)
				return
			}
			kind, msg := classify(err)
			fail(kind, msg)
			return
		}
		if !s.deliver(s.linker.Feed(chunk.Delta), emit) {
			return
		}
		if chunk.FinishReason != "" {
			s.complete(emit)
			return
		}
	}
}

// complete flushes the linker tail and emits the single terminal done event.
func (s *Session) complete(emit func(Event) bool) {
	if !s.deliver(s.linker.Flush(), emit) {
		return
	}
	done := Event{Type: EventDone}
	if s.params.RenewState != nil {
		st, err := s.params.RenewState(s.generated.String())
		if err != nil {
			s.logger.Printf("session %s: state renewal: %v", s.id, err)
		} else {
			done.State = st
		}
	}
	if emit(done) {
		s.setState(StateCompleted)
	}
}

func (s *Session) deliver(events []Event, emit func(Event) bool) bool {
	for _, ev := range events {
		switch ev.Type {
		case EventDelta:
			s.generated.WriteString(ev.Text)
		case EventCitation:
			s.generated.WriteString(ev.Marker)
		}
		if !emit(ev) {
			return false
		}
	}
	return true
}

func classify(err error) (ErrorKind, string) {
	var apiErr *provider.APIError
	switch {
	case errors.Is(err, provider.ErrIdleTimeout):
		return ErrorTimeout, "no data from provider within idle window"
	case errors.As(err, &apiErr):
		return ErrorProvider, apiErr.Error()
	default:
		return ErrorProvider, err.Error()
	}
}
