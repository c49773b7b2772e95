package mixpanel

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	"github.com/upb/analytics-tools/services"
	"go.uber.org/zap"
)

// EventStream decodes newline-delimited JSON events from an export response
// body as they arrive. It is finite and cannot be restarted.
//
// Iteration follows the bufio.Scanner pattern:
//
//	for s.Next() {
//		ev := s.Event()
//	}
//	if err := s.Err(); err != nil { ... }
type EventStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
	logger *zap.Logger

	current Event
	err     error
	count   int
	line    int
	done    bool
}

func newEventStream(body io.ReadCloser, logger *zap.Logger) *EventStream {
	return &EventStream{
		body:   body,
		reader: bufio.NewReaderSize(body, 64*1024),
		logger: logger,
	}
}

// NewEventStream wraps an NDJSON reader, e.g. a saved export file.
func NewEventStream(r io.Reader, logger *zap.Logger) *EventStream {
	rc, ok := r.(io.ReadCloser)
	if !ok {
		rc = io.NopCloser(r)
	}
	return newEventStream(rc, logger)
}

// Next advances to the next event. It returns false at the end of the
// stream or on the first error; see Err.
func (s *EventStream) Next() bool {
	if s.done {
		return false
	}

	for {
		raw, readErr := s.reader.ReadBytes('\n')
		if readErr != nil && !errors.Is(readErr, io.EOF) {
			s.fail(services.WrapError(services.ErrorTypeTransport, "export stream interrupted", readErr))
			s.logger.Error("export stream read failed",
				zap.Int("events_read", s.count),
				zap.Error(readErr))
			return false
		}

		line := bytes.TrimSpace(raw)
		if len(line) > 0 {
			s.line++
			ev, err := decodeEvent(line)
			if err != nil {
				s.fail(services.NewDomainError(services.ErrorTypeDecode,
					fmt.Sprintf("malformed event on line %d", s.line), err).
					WithDetail("line", s.line))
				return false
			}
			s.current = ev
			s.count++
			return true
		}

		if errors.Is(readErr, io.EOF) {
			s.done = true
			s.current = nil
			s.logger.Info("export stream finished", zap.Int("total_events", s.count))
			return false
		}
	}
}

func decodeEvent(line []byte) (Event, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()

	var ev Event
	if err := dec.Decode(&ev); err != nil {
		return nil, err
	}
	if ev == nil {
		return nil, errors.New("line is not a JSON object")
	}
	return ev, nil
}

func (s *EventStream) fail(err error) {
	s.err = err
	s.done = true
	s.current = nil
}

// Event returns the event decoded by the last successful Next.
func (s *EventStream) Event() Event {
	return s.current
}

// Err returns the error that ended iteration, or nil at a clean end.
// Transport failures match services.ErrTransport, undecodable lines
// services.ErrMalformedEvent.
func (s *EventStream) Err() error {
	return s.err
}

// Count returns the number of events decoded so far.
func (s *EventStream) Count() int {
	return s.count
}

// Close releases the response body.
func (s *EventStream) Close() error {
	s.done = true
	return s.body.Close()
}
