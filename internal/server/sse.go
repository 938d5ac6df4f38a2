package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/cra88y/answerstream/internal/answer"
)

// writeSSEHeaders commits the response as an event stream. Nothing may be
// written to the response before this point; token failures must have been
// rejected already.
func writeSSEHeaders(resp *echo.Response) {
	h := resp.Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-store")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	resp.WriteHeader(http.StatusOK)
}

// writeEvent frames one answer event as a typed SSE record and flushes it so
// the client sees tokens as they arrive.
func writeEvent(resp *echo.Response, ev answer.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(resp, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return err
	}
	resp.Flush()
	return nil
}
