package provider

import (
	"bufio"
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

// openaiClient speaks the OpenAI chat-completions wire format. It covers the
// openai, openrouter, ollama, localai, lmstudio, azure and huggingface
// presets; Azure authenticates with an api-key header instead of Bearer.
type openaiClient struct {
	settings   Settings
	httpClient *http.Client
	logger     *log.Logger
}

func newOpenAIClient(s Settings, logger *log.Logger) *openaiClient {
	// No client-level timeout: the response body is read for the lifetime
	// of the stream and the idle watchdog handles stalls.
	return &openaiClient{settings: s, httpClient: &http.Client{}, logger: logger}
}

func (c *openaiClient) Kind() Kind { return c.settings.Kind }

// chatMessage is one entry of the messages array.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the streaming chat-completion request payload.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Stream      bool          `json:"stream"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
	Stop        []string      `json:"stop,omitempty"`
}

// chatChunk is one SSE data payload of a streaming response.
type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

func (c *openaiClient) Open(ctx context.Context, req Request) (Stream, error) {
	payload := chatRequest{
		Model:       c.settings.Model,
		Messages:    []chatMessage{{Role: "user", Content: req.Prompt}},
		Stream:      true,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stop:        req.Stop,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.settings.BaseURL, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("HTTP-Referer", "https://github.com/searxng/searxng")
	httpReq.Header.Set("X-Title", "SearXNG")
	if c.settings.Kind == KindAzure {
		httpReq.Header.Set("api-key", c.settings.APIKey)
	} else {
		httpReq.Header.Set("Authorization", "Bearer "+c.settings.APIKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%s request: %w", c.settings.Kind, err)
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := readAPIError(c.settings.Kind, resp)
		cancel()
		return nil, apiErr
	}

	return &sseStream{
		kind:   c.settings.Kind,
		body:   resp.Body,
		reader: bufio.NewReader(resp.Body),
		cancel: cancel,
		dog:    newWatchdog(c.settings.IdleTimeout, cancel),
		logger: c.logger,
	}, nil
}

// sseStream parses data: lines from a streaming chat-completion response.
type sseStream struct {
	kind   Kind
	body   io.ReadCloser
	reader *bufio.Reader
	cancel context.CancelFunc
	dog    *watchdog
	logger *log.Logger
	done   bool
}

func (s *sseStream) Recv() (Chunk, error) {
	if s.done {
		return Chunk{}, io.EOF
	}
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			s.done = true
			if s.dog.Fired() {
				return Chunk{}, ErrIdleTimeout
			}
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				return Chunk{}, io.EOF
			}
			return Chunk{}, fmt.Errorf("%s read: %w", s.kind, err)
		}
		s.dog.Reset()

		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			s.done = true
			return Chunk{}, io.EOF
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			s.logger.Printf("WARN: %s: skipping malformed chunk: %v", s.kind, err)
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]
		if choice.Delta.Content == "" && choice.FinishReason == "" {
			continue
		}
		return Chunk{Delta: choice.Delta.Content, FinishReason: choice.FinishReason}, nil
	}
}

func (s *sseStream) Close() error {
	s.dog.Stop()
	s.cancel()
	return s.body.Close()
}

// readAPIError drains a bounded slice of a non-success response body into a
// typed error.
func readAPIError(kind Kind, resp *http.Response) *APIError {
	defer resp.Body.Close()
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &APIError{Kind: kind, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
}
