package answer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// snippet text beyond this length adds prompt cost without grounding value.
const maxSnippetLen = 500

// SearchResult is one ranked item supplied by the search engine. Its ordinal
// position within the ranked list is the citation key.
type SearchResult struct {
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Snippet   string    `json:"snippet"`
	Tab       string    `json:"tab"`
	Published time.Time `json:"published,omitempty"`
}

// Headline is a shallow-context item: title and URL only.
type Headline struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// GroundingContext is the bounded source material for one answer. Deep items
// keep their snippets and are citable; shallow items are headlines only.
// Built once per query and immutable thereafter.
type GroundingContext struct {
	Deep    []SearchResult `json:"deep"`
	Shallow []Headline     `json:"shallow,omitempty"`
}

// BuildContext partitions the ranked results into the grounding context.
// Results whose tab is not whitelisted are dropped (an empty whitelist
// admits everything); ranking order is preserved. The deep window is the
// first deepCount filtered results, the shallow window the next
// shallowCount. Fewer results than requested simply yield smaller
// partitions.
func BuildContext(results []SearchResult, whitelist []string, deepCount, shallowCount int) GroundingContext {
	allowed := func(tab string) bool {
		if len(whitelist) == 0 {
			return true
		}
		for _, t := range whitelist {
			if t == tab {
				return true
			}
		}
		return false
	}

	var g GroundingContext
	for _, r := range results {
		if !allowed(r.Tab) {
			continue
		}
		switch {
		case len(g.Deep) < deepCount:
			g.Deep = append(g.Deep, r)
		case len(g.Shallow) < shallowCount:
			g.Shallow = append(g.Shallow, Headline{Title: r.Title, URL: r.URL})
		default:
			return g
		}
	}
	return g
}

// Empty reports whether the context has no source material at all.
func (g GroundingContext) Empty() bool {
	return len(g.Deep) == 0 && len(g.Shallow) == 0
}

// URLs returns the deep-context URLs in citation order.
func (g GroundingContext) URLs() []string {
	urls := make([]string, len(g.Deep))
	for i, r := range g.Deep {
		urls[i] = r.URL
	}
	return urls
}

// Render produces the numbered source block fed to the model. Deep entries
// carry their snippet; shallow entries are headline-only and not citable.
func (g GroundingContext) Render() string {
	var b strings.Builder
	for i, r := range g.Deep {
		date := ""
		if !r.Published.IsZero() {
			date = " (" + r.Published.Format("2006-01-02") + ")"
		}
		snippet := r.Snippet
		if len(snippet) > maxSnippetLen {
			snippet = snippet[:maxSnippetLen]
		}
		fmt.Fprintf(&b, "[%d] %s%s: %s: %s\n", i+1, domainOf(r.URL), date, r.Title, snippet)
	}
	if len(g.Shallow) > 0 {
		b.WriteString("Additional headlines (not citable):\n")
		for _, h := range g.Shallow {
			fmt.Fprintf(&b, "- %s: %s\n", domainOf(h.URL), h.Title)
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Fingerprint derives the token subject binding a query to its context, so
// a stream token cannot be replayed against different content.
func Fingerprint(query string, g GroundingContext) string {
	h := sha256.New()
	h.Write([]byte(query))
	h.Write([]byte{0})
	h.Write([]byte(g.Render()))
	return hex.EncodeToString(h.Sum(nil))
}

func domainOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Hostname()
}
