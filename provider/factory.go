package provider

import (
	"fmt"
	"log"
)

// New creates the provider client for the configured kind. Everything except
// Gemini speaks the OpenAI-compatible wire format; Azure and Hugging Face
// differ only in URL shape and auth header.
func New(s Settings, logger *log.Logger) (Provider, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[PROVIDER] ", log.LstdFlags)
	}
	switch {
	case s.Kind == KindGemini:
		return newGeminiClient(s, logger), nil
	case Known(s.Kind):
		return newOpenAIClient(s, logger), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider %q", s.Kind)
	}
}
