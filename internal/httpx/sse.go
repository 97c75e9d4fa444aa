package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorStreamingUnsupported indica que el ResponseWriter no puede hacer flush.
var ErrorStreamingUnsupported = errors.New("streaming unsupported")

// EventStream escribe eventos Server-Sent Events sobre una respuesta abierta.
type EventStream struct {
	writer  http.ResponseWriter
	flusher http.Flusher
}

// NewEventStream escribe los headers de SSE y el status 200.
func NewEventStream(writer http.ResponseWriter) (*EventStream, error) {
	flusher, ok := writer.(http.Flusher)
	if !ok {
		return nil, ErrorStreamingUnsupported
	}

	header := writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	writer.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &EventStream{writer: writer, flusher: flusher}, nil
}

// Send escribe un evento con data en JSON (una sola línea) y hace flush.
func (stream *EventStream) Send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(stream.writer, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	stream.flusher.Flush()
	return nil
}
