package provider

import (
	"testing"
)

func TestDetect(t *testing.T) {
	t.Parallel()
	cases := []struct {
		url  string
		want Kind
	}{
		{"https://api.openai.com/v1/chat/completions", KindOpenAI},
		{"https://openrouter.ai/api/v1/chat/completions", KindOpenRouter},
		{"http://localhost:11434/v1/chat/completions", KindOllama},
		{"https://generativelanguage.googleapis.com", KindGemini},
		{"https://my-box.example.com/v1/chat/completions", KindOpenAI},
		{"http://10.0.0.5:8080/v1/chat/completions", KindOpenAI},
	}
	for _, c := range cases {
		if got := Detect(c.url); got != c.want {
			t.Fatalf("Detect(%q) = %q, want %q", c.url, got, c.want)
		}
	}
}

func TestPresetsCoverAllKinds(t *testing.T) {
	t.Parallel()
	kinds := []Kind{
		KindOpenAI, KindOpenRouter, KindOllama, KindLocalAI,
		KindLMStudio, KindGemini, KindAzure, KindHuggingFace,
	}
	if len(Presets) != len(kinds) {
		t.Fatalf("preset table has %d entries, want %d", len(Presets), len(kinds))
	}
	for _, k := range kinds {
		if !Known(k) {
			t.Fatalf("kind %q missing from presets", k)
		}
		p := Presets[k]
		if p.Model == "" {
			t.Fatalf("kind %q has no default model", k)
		}
		if p.URL == "" && k != KindAzure {
			t.Fatalf("kind %q has no default URL", k)
		}
	}
	if Known("anthropic") {
		t.Fatal("unknown kind reported as known")
	}
}

func TestLocalKinds(t *testing.T) {
	t.Parallel()
	for _, k := range []Kind{KindOllama, KindLocalAI, KindLMStudio} {
		if !Local(k) {
			t.Fatalf("kind %q should be local", k)
		}
	}
	for _, k := range []Kind{KindOpenAI, KindGemini, KindAzure, KindHuggingFace} {
		if Local(k) {
			t.Fatalf("kind %q should not be local", k)
		}
	}
}

func TestNewSelectsFamily(t *testing.T) {
	t.Parallel()
	p, err := New(Settings{Kind: KindGemini, BaseURL: "https://generativelanguage.googleapis.com", Model: "m", APIKey: "k"}, nil)
	if err != nil {
		t.Fatalf("New(gemini): %v", err)
	}
	if _, ok := p.(*geminiClient); !ok {
		t.Fatalf("New(gemini) = %T, want *geminiClient", p)
	}

	p, err = New(Settings{Kind: KindAzure, BaseURL: "https://x.openai.azure.com/...", Model: "m", APIKey: "k"}, nil)
	if err != nil {
		t.Fatalf("New(azure): %v", err)
	}
	if _, ok := p.(*openaiClient); !ok {
		t.Fatalf("New(azure) = %T, want *openaiClient", p)
	}

	if _, err := New(Settings{Kind: "anthropic"}, nil); err == nil {
		t.Fatal("New with unknown kind must fail")
	}
}
