package answer

// EventType tags one record of the normalized answer stream.
type EventType string

const (
	EventDelta    EventType = "delta"
	EventCitation EventType = "citation"
	EventDone     EventType = "done"
	EventError    EventType = "error"
)

// ErrorKind classifies terminal stream errors. Malformed upstream chunks are
// recovered inside the provider layer and never surface here; cancellation
// emits no event at all.
type ErrorKind string

const (
	ErrorUnauthorized ErrorKind = "unauthorized"
	ErrorProvider     ErrorKind = "provider_error"
	ErrorTimeout      ErrorKind = "timeout"
	ErrorState        ErrorKind = "state_invalid"
)

// Event is one record of the answer stream. Delta events carry Text;
// citation events carry Index (1-based into the deep context), URL and the
// rendered Marker; error events carry Kind and Message; done events carry
// the refreshed conversation state when follow-ups are enabled.
type Event struct {
	Type    EventType `json:"-"`
	Text    string    `json:"text,omitempty"`
	Index   int       `json:"index,omitempty"`
	URL     string    `json:"url,omitempty"`
	Marker  string    `json:"marker,omitempty"`
	Kind    ErrorKind `json:"kind,omitempty"`
	Message string    `json:"message,omitempty"`
	State   string    `json:"state,omitempty"`
}

// Terminal reports whether no further events may follow ev.
func (ev Event) Terminal() bool {
	return ev.Type == EventDone || ev.Type == EventError
}
