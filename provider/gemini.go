package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
)

// geminiClient speaks the streamGenerateContent wire format: the response is
// one top-level JSON array whose elements arrive incrementally.
type geminiClient struct {
	settings   Settings
	httpClient *http.Client
	logger     *log.Logger
}

func newGeminiClient(s Settings, logger *log.Logger) *geminiClient {
	return &geminiClient{settings: s, httpClient: &http.Client{}, logger: logger}
}

func (c *geminiClient) Kind() Kind { return KindGemini }

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiGenConfig struct {
	MaxOutputTokens int      `json:"maxOutputTokens"`
	Temperature     float64  `json:"temperature"`
	StopSequences   []string `json:"stopSequences,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent `json:"contents"`
	GenerationConfig geminiGenConfig `json:"generationConfig"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiChunk struct {
	Candidates []geminiCandidate `json:"candidates"`
}

func (c *geminiClient) Open(ctx context.Context, req Request) (Stream, error) {
	payload := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: req.Prompt}}}},
		GenerationConfig: geminiGenConfig{
			MaxOutputTokens: req.MaxTokens,
			Temperature:     req.Temperature,
			StopSequences:   req.Stop,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/models/%s:streamGenerateContent",
		strings.TrimSuffix(c.settings.BaseURL, "/"), c.settings.Model)

	ctx, cancel := context.WithCancel(ctx)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.settings.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := readAPIError(KindGemini, resp)
		cancel()
		return nil, apiErr
	}

	return &geminiStream{
		body:    resp.Body,
		decoder: json.NewDecoder(resp.Body),
		cancel:  cancel,
		dog:     newWatchdog(c.settings.IdleTimeout, cancel),
		logger:  c.logger,
	}, nil
}

// geminiStream walks the streamed JSON array element by element.
type geminiStream struct {
	body    io.ReadCloser
	decoder *json.Decoder
	cancel  context.CancelFunc
	dog     *watchdog
	logger  *log.Logger
	started bool
	done    bool
}

func (s *geminiStream) Recv() (Chunk, error) {
	if s.done {
		return Chunk{}, io.EOF
	}
	for {
		if !s.started {
			if _, err := s.decoder.Token(); err != nil { // opening bracket
				return Chunk{}, s.finish(err)
			}
			s.started = true
		}
		if !s.decoder.More() {
			// False both at the closing bracket and when the underlying
			// read failed, so the watchdog has to be consulted here too.
			s.done = true
			if s.dog.Fired() {
				return Chunk{}, ErrIdleTimeout
			}
			return Chunk{}, io.EOF
		}
		s.dog.Reset()

		var chunk geminiChunk
		if err := s.decoder.Decode(&chunk); err != nil {
			// The decoder cannot resync after a malformed element; end
			// the stream and keep the text already surfaced.
			s.logger.Printf("WARN: gemini: malformed chunk ends stream: %v", err)
			return Chunk{}, s.finish(err)
		}
		if len(chunk.Candidates) == 0 {
			continue
		}
		cand := chunk.Candidates[0]
		text := ""
		if len(cand.Content.Parts) > 0 {
			text = cand.Content.Parts[0].Text
		}
		if text == "" && cand.FinishReason == "" {
			continue
		}
		return Chunk{Delta: text, FinishReason: cand.FinishReason}, nil
	}
}

func (s *geminiStream) finish(err error) error {
	s.done = true
	if s.dog.Fired() {
		return ErrIdleTimeout
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, context.Canceled) {
		return io.EOF
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return io.EOF
	}
	return fmt.Errorf("gemini read: %w", err)
}

func (s *geminiStream) Close() error {
	s.dog.Stop()
	s.cancel()
	return s.body.Close()
}
