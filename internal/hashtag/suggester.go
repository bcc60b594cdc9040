// internal/hashtag/suggester.go
package hashtag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/fallback"
	"github.com/failsafe-go/failsafe-go/timeout"
)

// Result is the outcome of a bounded suggestion. Fallback is set when Tags
// came from the static list; Err then holds the generator failure, if any.
type Result struct {
	Tags     []string
	Fallback bool
	Err      error
}

var errNoHashtags = errors.New("generator returned no hashtags")

// Suggester wraps a Generator with a hard time limit and a static fallback
// so callers never wait on the generator longer than the limit.
type Suggester struct {
	generator Generator
	static    []string
	timeout   timeout.Timeout[[]string]
}

func NewSuggester(generator Generator, static []string, limit time.Duration) *Suggester {
	if limit <= 0 {
		limit = 10 * time.Second
	}
	return &Suggester{
		generator: generator,
		static:    Normalize(static, 0),
		timeout:   timeout.New[[]string](limit),
	}
}

type suggestion struct {
	tags []string
	err  error
}

func (s *Suggester) Suggest(ctx context.Context, req Request) Result {
	if s.generator == nil {
		return s.fallback(errors.New("hashtag generator not configured"))
	}

	// The fallback sits outside the timeout so an exceeded limit also lands on
	// the static list; cause records why.
	var cause error
	static := fallback.NewWithFunc(func(exec failsafe.Execution[[]string]) ([]string, error) {
		cause = exec.LastError()
		return append([]string(nil), s.static...), nil
	})

	tags, err := failsafe.With[[]string](static, s.timeout).
		WithContext(ctx).
		GetWithExecution(func(exec failsafe.Execution[[]string]) ([]string, error) {
			return s.generate(exec, req)
		})
	if err != nil {
		return s.fallback(err)
	}
	if cause != nil {
		return Result{Tags: tags, Fallback: true, Err: cause}
	}
	return Result{Tags: tags}
}

// generate runs the generator on its own goroutine so a generator that
// ignores its context still yields to the timeout policy.
func (s *Suggester) generate(exec failsafe.Execution[[]string], req Request) ([]string, error) {
	done := make(chan suggestion, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- suggestion{err: fmt.Errorf("hashtag generator panicked: %v", r)}
			}
		}()
		tags, err := s.generator.Suggest(exec.Context(), req)
		done <- suggestion{tags: tags, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		tags := Normalize(r.tags, 0)
		if len(tags) == 0 {
			return nil, errNoHashtags
		}
		return tags, nil
	case <-exec.Canceled():
		return nil, exec.Context().Err()
	}
}

func (s *Suggester) fallback(err error) Result {
	return Result{
		Tags:     append([]string(nil), s.static...),
		Fallback: true,
		Err:      err,
	}
}
