package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/failover"
)

var (
	// ErrStreamBroken is returned when the committed provider fails after its first fragment.
	// The stream never switches providers at that point.
	ErrStreamBroken = errors.New("stream broken")
	// ErrStreamClosed is returned by Next after Close.
	ErrStreamClosed = errors.New("stream closed")
)

// Stream is a pull-based, single-consumer token sequence. The first Next selects the
// provider: unavailable providers are skipped and a provider that fails before its first
// fragment is replaced by the next one. Once a fragment has been produced, or the provider
// ended cleanly, the stream is committed to that provider until it ends.
type Stream struct {
	ctx    context.Context
	prompt string
	router *Router

	started  bool
	provider string
	reader   FragmentReader
	cancel   context.CancelFunc
	pending  []string
	err      error
}

// NewStaticStream returns a stream that yields fragments without any provider.
func NewStaticStream(fragments ...string) *Stream {
	return &Stream{started: true, pending: fragments}
}

// Next returns the next fragment, or io.EOF when the stream is complete. Once Next returns
// an error every later call returns the same error.
func (s *Stream) Next() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if !s.started {
		s.started = true
		if err := s.open(); err != nil {
			s.err = err
			return "", err
		}
	}
	if len(s.pending) > 0 {
		f := s.pending[0]
		s.pending = s.pending[1:]
		return f, nil
	}
	if s.reader == nil {
		s.finish(io.EOF)
		return "", io.EOF
	}
	for {
		f, err := s.reader.Recv()
		switch {
		case errors.Is(err, io.EOF):
			s.finish(io.EOF)
			return "", io.EOF
		case err != nil:
			s.router.logger.Warn("generation stream broke after commit",
				zap.String("provider", s.provider), zap.Error(err))
			s.finish(fmt.Errorf("%w: %s: %w", ErrStreamBroken, s.provider, err))
			return "", s.err
		case f != "":
			return f, nil
		}
	}
}

// open tries each provider in order until one yields a first fragment or ends cleanly.
func (s *Stream) open() error {
	r := s.router
	exhausted := &failover.ExhaustedError{Op: "stream"}
	fail := func(a failover.Attempt) {
		exhausted.Attempts = append(exhausted.Attempts, a)
		r.observe(a)
	}

	for _, p := range r.providers {
		if err := s.ctx.Err(); err != nil {
			return err
		}
		actx, cancel := failover.WithTimeout(s.ctx, r.streamTimeout)
		if st := p.Status(actx); !st.Available {
			cancel()
			fail(failover.Attempt{Provider: p.Name(), Outcome: failover.OutcomeUnavailable, Err: failover.Unavailable(st)})
			continue
		}
		reader, err := p.Stream(actx, s.prompt)
		if err != nil {
			cancel()
			fail(failover.Attempt{Provider: p.Name(), Outcome: failover.OutcomeFailed, Err: err})
			continue
		}
		first, err := firstFragment(reader)
		if err != nil && !errors.Is(err, io.EOF) {
			_ = reader.Close()
			cancel()
			fail(failover.Attempt{Provider: p.Name(), Outcome: failover.OutcomeFailed, Err: err})
			continue
		}

		r.observe(failover.Attempt{Provider: p.Name(), Outcome: failover.OutcomeSuccess})
		r.logger.Debug("generation stream committed", zap.String("provider", p.Name()))
		s.provider = p.Name()
		if errors.Is(err, io.EOF) {
			_ = reader.Close()
			cancel()
			return nil
		}
		s.reader = reader
		s.cancel = cancel
		s.pending = []string{first}
		return nil
	}
	r.logger.Error("no generation provider could stream", zap.Error(exhausted))
	return exhausted
}

func firstFragment(reader FragmentReader) (string, error) {
	for {
		f, err := reader.Recv()
		if err != nil {
			return "", err
		}
		if f != "" {
			return f, nil
		}
	}
}

func (s *Stream) finish(err error) {
	s.err = err
	s.release()
}

func (s *Stream) release() {
	if s.reader != nil {
		_ = s.reader.Close()
		s.reader = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Close releases the committed provider connection. Next returns ErrStreamClosed afterwards
// unless the stream had already ended.
func (s *Stream) Close() error {
	s.started = true
	s.pending = nil
	if s.err == nil {
		s.err = ErrStreamClosed
	}
	s.release()
	return nil
}

// Provider returns the name of the committed provider, or "" before selection and for
// static streams.
func (s *Stream) Provider() string {
	return s.provider
}

// Fragments adapts the stream to a range-over-func iterator. Iteration stops after the
// first error; io.EOF is not reported.
func (s *Stream) Fragments() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for {
			f, err := s.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
			if !yield(f, nil) {
				return
			}
		}
	}
}

// ReadAll drains s and returns the concatenated text. On error the text read so far is
// returned with it.
func ReadAll(s *Stream) (string, error) {
	var b strings.Builder
	for f, err := range s.Fragments() {
		if err != nil {
			return b.String(), err
		}
		b.WriteString(f)
	}
	return b.String(), nil
}
