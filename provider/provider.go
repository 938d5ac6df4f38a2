package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind identifies a supported LLM backend family.
type Kind string

const (
	KindOpenAI      Kind = "openai"
	KindOpenRouter  Kind = "openrouter"
	KindOllama      Kind = "ollama"
	KindLocalAI     Kind = "localai"
	KindLMStudio    Kind = "lmstudio"
	KindGemini      Kind = "gemini"
	KindAzure       Kind = "azure"
	KindHuggingFace Kind = "huggingface"
)

// Preset is the default endpoint and model for a provider kind. An empty URL
// (Azure) means the deployment URL must be configured explicitly. The
// Hugging Face URL contains a {model} placeholder resolved at config time.
type Preset struct {
	URL   string
	Model string
}

// Presets mirrors the provider table of the original plugin.
var Presets = map[Kind]Preset{
	KindOpenAI:      {URL: "https://api.openai.com/v1/chat/completions", Model: "gpt-4o-mini"},
	KindOpenRouter:  {URL: "https://openrouter.ai/api/v1/chat/completions", Model: "google/gemma-3-27b-it:free"},
	KindOllama:      {URL: "http://localhost:11434/v1/chat/completions", Model: "llama3.2"},
	KindLocalAI:     {URL: "http://localhost:8080/v1/chat/completions", Model: "gpt-4"},
	KindLMStudio:    {URL: "http://localhost:1234/v1/chat/completions", Model: "local-model"},
	KindGemini:      {URL: "https://generativelanguage.googleapis.com", Model: "gemma-3-27b-it"},
	KindAzure:       {URL: "", Model: "azure-deployment"},
	KindHuggingFace: {URL: "https://api-inference.huggingface.co/models/{model}/v1/chat/completions", Model: "meta-llama/Meta-Llama-3-8B-Instruct"},
}

// Known reports whether k is a supported provider kind.
func Known(k Kind) bool {
	_, ok := Presets[k]
	return ok
}

// Local reports whether k is a local provider that accepts a placeholder
// API key.
func Local(k Kind) bool {
	return k == KindOllama || k == KindLocalAI || k == KindLMStudio
}

// Detect guesses the provider kind from a base URL. Ambiguous URLs fall back
// to the OpenAI-compatible family.
func Detect(rawURL string) Kind {
	u := strings.ToLower(rawURL)
	switch {
	case strings.Contains(u, "openai.com"):
		return KindOpenAI
	case strings.Contains(u, "openrouter.ai"):
		return KindOpenRouter
	case strings.Contains(u, ":11434"):
		return KindOllama
	case strings.Contains(u, "generativelanguage.googleapis.com"):
		return KindGemini
	default:
		return KindOpenAI
	}
}

// Settings carries the resolved endpoint configuration a provider client
// needs. It is built once from config and shared read-only.
type Settings struct {
	Kind        Kind
	BaseURL     string
	Model       string
	APIKey      string
	IdleTimeout time.Duration
}

// Request is the canonical chat-completion request shared by all provider
// families.
type Request struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
	Stop        []string
}

// Chunk is one canonical increment of generated text. FinishReason is set on
// the chunk that ends generation, when the provider reports one.
type Chunk struct {
	Delta        string
	FinishReason string
}

// Stream is a finite, non-restartable sequence of chunks. Recv returns
// io.EOF after the last chunk. Close releases the upstream connection and is
// safe to call more than once.
type Stream interface {
	Recv() (Chunk, error)
	Close() error
}

// Provider opens streaming chat completions against one backend family.
type Provider interface {
	Kind() Kind
	Open(ctx context.Context, req Request) (Stream, error)
}

// APIError is a non-success response from the upstream provider.
type APIError struct {
	Kind   Kind
	Status int
	Body   string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("%s API %d: %s", e.Kind, e.Status, body)
}

// ErrIdleTimeout reports that no bytes arrived from the upstream within the
// configured idle window.
var ErrIdleTimeout = errors.New("provider: idle read timeout")
