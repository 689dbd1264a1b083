package llamaserver

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// streamFrame is one event of the /completion stream. content carries the
// newly generated delta; stop marks the final frame.
type streamFrame struct {
	Content string `json:"content"`
	Stop    bool   `json:"stop"`
}

// Stream is the lazy, finite, non-restartable sequence of cumulative
// generated text. Usage follows bufio.Scanner:
//
//	for stream.Next() {
//	    latest := stream.Text() // full text so far, not a delta
//	}
//	err := stream.Err()
//
// Next observes the request context before each frame, so cancellation takes
// effect promptly; a canceled stream simply ends, discarding the rest of the
// response without error. The underlying connection is closed on every exit
// path; calling Close again is safe.
type Stream struct {
	ctx    context.Context
	resp   *http.Response
	reader *bufio.Reader
	log    zerolog.Logger

	full   strings.Builder
	err    error
	done   bool
	closed bool
}

func newStream(ctx context.Context, resp *http.Response, log zerolog.Logger) *Stream {
	return &Stream{
		ctx:    ctx,
		resp:   resp,
		reader: bufio.NewReader(resp.Body),
		log:    log,
	}
}

// Next advances to the next cumulative-text item. It returns false when the
// stream is exhausted, canceled, or failed; check Err afterwards.
func (s *Stream) Next() bool {
	if s.done {
		return false
	}
	for {
		if s.ctx.Err() != nil {
			// Cooperative stop: discard the remainder without error.
			s.finish(nil)
			return false
		}

		line, readErr := s.reader.ReadString('\n')
		if frame, ok := s.decodeFrame(line); ok {
			yielded := false
			if frame.Content != "" {
				s.full.WriteString(frame.Content)
				yielded = true
			}
			if frame.Stop {
				s.finish(nil)
				return yielded
			}
			if yielded {
				return true
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				s.finish(nil)
			} else if s.ctx.Err() != nil {
				s.finish(nil)
			} else {
				s.finish(readErr)
			}
			return false
		}
	}
}

// decodeFrame parses one line of the response. Malformed JSON is logged and
// skipped; a single bad frame never aborts the generation.
func (s *Stream) decodeFrame(line string) (streamFrame, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return streamFrame{}, false
	}
	line = strings.TrimPrefix(line, "data: ")

	var frame streamFrame
	if err := json.Unmarshal([]byte(line), &frame); err != nil {
		streamFramesDropped.Inc()
		s.log.Warn().Err(err).Str("line", line).Msg("skipping malformed stream frame")
		return streamFrame{}, false
	}
	return frame, true
}

// Text returns the cumulative generated text up to the last Next.
func (s *Stream) Text() string { return s.full.String() }

// Err returns the first error encountered, if any. Cancellation and normal
// completion both leave Err nil.
func (s *Stream) Err() error { return s.err }

// Close releases the underlying connection. Idempotent.
func (s *Stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.resp.Body.Close()
}

func (s *Stream) finish(err error) {
	s.done = true
	if s.err == nil {
		s.err = err
	}
	_ = s.Close()
}
