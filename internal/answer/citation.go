package answer

import (
	"fmt"
)

// Linker is an incremental scanner that detects citation markers in the
// growing answer text as chunks arrive and resolves them against the deep
// context. State is carried between Feed calls so a marker split across a
// chunk boundary still resolves; one Linker serves one session and is not
// safe for concurrent use.
//
// Marker grammar, fixed here: '[' ws* index (ws* ',' ws* index)* ws* ']'
// where index is one or two digits, 1-based into the deep partition. Each
// resolved index is re-rendered canonically as [n], matching how markers
// were rendered by the original result page; anything else that merely
// looks like a marker stays literal text. An out-of-range index is emitted
// as literal [n] rather than a citation.
type Linker struct {
	deep []SearchResult
	pend []byte
}

// NewLinker builds a linker resolving against the deep context items.
func NewLinker(deep []SearchResult) *Linker {
	return &Linker{deep: deep}
}

// Feed scans one provider chunk and returns the events it releases. A
// possibly-incomplete marker at the tail is held back until the next Feed
// or Flush resolves it.
func (l *Linker) Feed(delta string) []Event {
	if delta == "" {
		return nil
	}
	data := append(l.pend, delta...)
	l.pend = nil
	return l.scan(data, false)
}

// Flush releases any held-back tail as literal text. Call once after the
// provider stream ends.
func (l *Linker) Flush() []Event {
	if len(l.pend) == 0 {
		return nil
	}
	data := l.pend
	l.pend = nil
	return l.scan(data, true)
}

func (l *Linker) scan(data []byte, final bool) []Event {
	var events []Event
	var text []byte

	flushText := func() {
		if len(text) > 0 {
			events = append(events, Event{Type: EventDelta, Text: string(text)})
			text = nil
		}
	}

	i := 0
	for i < len(data) {
		if data[i] != '[' {
			text = append(text, data[i])
			i++
			continue
		}
		indices, n, status := parseMarker(data[i:])
		switch status {
		case markerPartial:
			if final {
				// No more input is coming; the prefix is literal.
				text = append(text, data[i:]...)
				i = len(data)
				continue
			}
			l.pend = append([]byte(nil), data[i:]...)
			flushText()
			return events
		case markerNone:
			text = append(text, '[')
			i++
		case markerMatch:
			for _, idx := range indices {
				marker := fmt.Sprintf("[%d]", idx)
				if idx >= 1 && idx <= len(l.deep) {
					flushText()
					events = append(events, Event{
						Type:   EventCitation,
						Index:  idx,
						URL:    l.deep[idx-1].URL,
						Marker: marker,
					})
				} else {
					text = append(text, marker...)
				}
			}
			i += n
		}
	}
	flushText()
	return events
}

type markerStatus int

const (
	markerNone markerStatus = iota
	markerMatch
	markerPartial
)

// parseMarker attempts to read one complete marker at the start of s (which
// begins with '['). It returns the parsed indices and consumed length on a
// match, markerPartial when s is a valid prefix that may complete with more
// input, and markerNone when s can never become a marker.
func parseMarker(s []byte) ([]int, int, markerStatus) {
	var indices []int
	i := 1
	for {
		i = skipSpace(s, i)
		if i >= len(s) {
			return nil, 0, markerPartial
		}
		if !isDigit(s[i]) {
			return nil, 0, markerNone
		}
		n := 0
		digits := 0
		for i < len(s) && isDigit(s[i]) && digits < 2 {
			n = n*10 + int(s[i]-'0')
			i++
			digits++
		}
		if i < len(s) && isDigit(s[i]) {
			// three digits or more never forms a marker
			return nil, 0, markerNone
		}
		if i >= len(s) {
			return nil, 0, markerPartial
		}
		indices = append(indices, n)

		i = skipSpace(s, i)
		if i >= len(s) {
			return nil, 0, markerPartial
		}
		switch s[i] {
		case ',':
			i++
		case ']':
			return indices, i + 1, markerMatch
		default:
			return nil, 0, markerNone
		}
	}
}

func skipSpace(s []byte, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
