package answer

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/cra88y/answerstream/provider"
)

// scriptedStream replays a fixed chunk sequence, then a final error.
type scriptedStream struct {
	chunks []provider.Chunk
	final  error
	closed chan struct{}
	pos    int
}

func (s *scriptedStream) Recv() (provider.Chunk, error) {
	if s.pos < len(s.chunks) {
		c := s.chunks[s.pos]
		s.pos++
		return c, nil
	}
	return provider.Chunk{}, s.final
}

func (s *scriptedStream) Close() error {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	return nil
}

type scriptedProvider struct {
	stream  *scriptedStream
	openErr error
}

func (p *scriptedProvider) Kind() provider.Kind { return provider.KindOpenAI }

func (p *scriptedProvider) Open(ctx context.Context, req provider.Request) (provider.Stream, error) {
	if p.openErr != nil {
		return nil, p.openErr
	}
	return p.stream, nil
}

func scripted(final error, deltas ...string) *scriptedProvider {
	chunks := make([]provider.Chunk, len(deltas))
	for i, d := range deltas {
		chunks[i] = provider.Chunk{Delta: d}
	}
	return &scriptedProvider{stream: &scriptedStream{chunks: chunks, final: final, closed: make(chan struct{})}}
}

type staticVerifier struct {
	subject string
	err     error
}

func (v staticVerifier) Verify(string) (string, error) { return v.subject, v.err }

func collect(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var events []Event
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func testContext() GroundingContext {
	return GroundingContext{Deep: []SearchResult{{Title: "A", URL: "u1", Snippet: "s1"}}}
}

func testParams() Params {
	return Params{Query: "q", Context: testContext(), Token: "tok", MaxTokens: 100, Temperature: 0.2}
}

func TestSessionHappyPath(t *testing.T) {
	t.Parallel()
	prov := scripted(io.EOF, "The capital is [1", "].")
	verifier := staticVerifier{subject: Fingerprint("q", testContext())}
	sess := NewSession(prov, verifier, testParams(), nil)

	events := collect(t, sess.Run(context.Background()))

	if len(events) != 4 {
		t.Fatalf("events = %#v, want delta, citation, delta, done", events)
	}
	if events[0].Type != EventDelta || events[0].Text != "The capital is " {
		t.Fatalf("event 0 = %#v", events[0])
	}
	if events[1].Type != EventCitation || events[1].Index != 1 || events[1].URL != "u1" {
		t.Fatalf("event 1 = %#v", events[1])
	}
	if events[2].Type != EventDelta || events[2].Text != "." {
		t.Fatalf("event 2 = %#v", events[2])
	}
	if events[3].Type != EventDone {
		t.Fatalf("event 3 = %#v", events[3])
	}
	if sess.State() != StateCompleted {
		t.Fatalf("state = %s, want completed", sess.State())
	}
}

func TestSessionSingleTerminalEvent(t *testing.T) {
	t.Parallel()
	prov := scripted(io.EOF, "hello")
	verifier := staticVerifier{subject: Fingerprint("q", testContext())}
	sess := NewSession(prov, verifier, testParams(), nil)

	events := collect(t, sess.Run(context.Background()))
	terminals := 0
	for i, ev := range events {
		if ev.Terminal() {
			terminals++
			if i != len(events)-1 {
				t.Fatalf("terminal event not last: %#v", events)
			}
		}
	}
	if terminals != 1 {
		t.Fatalf("terminal events = %d, want 1", terminals)
	}
}

func TestSessionUnauthorized(t *testing.T) {
	t.Parallel()
	prov := scripted(io.EOF, "never")
	sess := NewSession(prov, staticVerifier{err: errors.New("bad")}, testParams(), nil)

	events := collect(t, sess.Run(context.Background()))
	if len(events) != 1 || events[0].Type != EventError || events[0].Kind != ErrorUnauthorized {
		t.Fatalf("events = %#v, want single unauthorized error", events)
	}
	if sess.State() != StateFailed {
		t.Fatalf("state = %s, want failed", sess.State())
	}
}

func TestSessionRejectsSubjectMismatch(t *testing.T) {
	t.Parallel()
	prov := scripted(io.EOF, "never")
	sess := NewSession(prov, staticVerifier{subject: "someone-else"}, testParams(), nil)

	events := collect(t, sess.Run(context.Background()))
	if len(events) != 1 || events[0].Kind != ErrorUnauthorized {
		t.Fatalf("events = %#v, want unauthorized", events)
	}
}

func TestSessionProviderErrorMidStream(t *testing.T) {
	t.Parallel()
	apiErr := &provider.APIError{Kind: provider.KindOpenAI, Status: 429, Body: "rate limited"}
	prov := scripted(apiErr, "one ", "two ")
	verifier := staticVerifier{subject: Fingerprint("q", testContext())}
	sess := NewSession(prov, verifier, testParams(), nil)

	events := collect(t, sess.Run(context.Background()))
	if len(events) != 3 {
		t.Fatalf("events = %#v, want two deltas then one error", events)
	}
	if events[0].Text != "one " || events[1].Text != "two " {
		t.Fatalf("prior deltas not preserved: %#v", events)
	}
	last := events[2]
	if last.Type != EventError || last.Kind != ErrorProvider {
		t.Fatalf("terminal = %#v, want provider_error", last)
	}
	if sess.State() != StateFailed {
		t.Fatalf("state = %s, want failed", sess.State())
	}
}

func TestSessionTimeout(t *testing.T) {
	t.Parallel()
	prov := scripted(provider.ErrIdleTimeout, "partial ")
	verifier := staticVerifier{subject: Fingerprint("q", testContext())}
	sess := NewSession(prov, verifier, testParams(), nil)

	events := collect(t, sess.Run(context.Background()))
	last := events[len(events)-1]
	if last.Type != EventError || last.Kind != ErrorTimeout {
		t.Fatalf("terminal = %#v, want timeout", last)
	}
}

// blockingProvider emits one chunk, then blocks until the request context is
// cancelled, the way a live HTTP stream does.
type blockingProvider struct {
	stream *blockingStream
}

type blockingStream struct {
	ctx    context.Context
	sent   bool
	closed chan struct{}
}

func (p *blockingProvider) Kind() provider.Kind { return provider.KindOpenAI }

func (p *blockingProvider) Open(ctx context.Context, req provider.Request) (provider.Stream, error) {
	p.stream.ctx = ctx
	return p.stream, nil
}

func (s *blockingStream) Recv() (provider.Chunk, error) {
	if !s.sent {
		s.sent = true
		return provider.Chunk{Delta: "one "}, nil
	}
	<-s.ctx.Done()
	return provider.Chunk{}, s.ctx.Err()
}

func (s *blockingStream) Close() error {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	return nil
}

func TestSessionCancelEmitsNothingFurther(t *testing.T) {
	t.Parallel()
	stream := &blockingStream{closed: make(chan struct{})}
	prov := &blockingProvider{stream: stream}
	verifier := staticVerifier{subject: Fingerprint("q", testContext())}
	sess := NewSession(prov, verifier, testParams(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	ch := sess.Run(ctx)

	first := <-ch
	if first.Type != EventDelta {
		t.Fatalf("first event = %#v", first)
	}
	cancel()

	for ev := range ch {
		if ev.Terminal() {
			t.Fatalf("terminal event after cancel: %#v", ev)
		}
	}

	select {
	case <-stream.closed:
	case <-time.After(time.Second):
		t.Fatal("upstream stream not closed after cancel")
	}
	if st := sess.State(); st != StateCancelled {
		t.Fatalf("state = %s, want cancelled", st)
	}
}

func TestSessionFollowUpSkipsAuthorization(t *testing.T) {
	t.Parallel()
	prov := scripted(io.EOF, "more detail")
	params := Params{
		Query:      "and then?",
		Context:    testContext(),
		PrevAnswer: "Earlier answer.",
		Turn:       1,
		MaxTokens:  100,
	}
	sess := NewFollowUp(prov, params, nil)

	events := collect(t, sess.Run(context.Background()))
	if events[len(events)-1].Type != EventDone {
		t.Fatalf("events = %#v, want done terminal", events)
	}
}

func TestSessionRenewStateOnDone(t *testing.T) {
	t.Parallel()
	prov := scripted(io.EOF, "generated [1", "] text")
	verifier := staticVerifier{subject: Fingerprint("q", testContext())}
	params := testParams()
	var got string
	params.RenewState = func(generated string) (string, error) {
		got = generated
		return "signed-state", nil
	}
	sess := NewSession(prov, verifier, params, nil)

	events := collect(t, sess.Run(context.Background()))
	last := events[len(events)-1]
	if last.Type != EventDone || last.State != "signed-state" {
		t.Fatalf("terminal = %#v, want done with state", last)
	}
	if got != "generated [1] text" {
		t.Fatalf("renewal saw %q, want full rendered text", got)
	}
}
