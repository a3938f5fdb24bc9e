package inferd

import (
	"context"

	"github.com/blueberrycongee/inferd/pkg/types"
)

// Stream delivers one generation as a sequence of tokens. The engine
// resolves the full response first (cache, batcher, filtering, screening)
// and then replays it token by token, so a streamed request yields exactly
// the text its non-streaming twin would.
type Stream struct {
	tokens chan string
	done   chan struct{}
	result *types.GenerateResult
	err    error
}

// Tokens returns the channel of response tokens. It is closed when the
// stream ends, whether normally or with an error.
func (s *Stream) Tokens() <-chan string {
	return s.tokens
}

// Result blocks until the stream has finished and returns the final
// result. Tokens still buffered in the channel remain readable.
func (s *Stream) Result() (*types.GenerateResult, error) {
	<-s.done
	return s.result, s.err
}

// GenerateStream runs Generate and emits the response as whitespace-split
// tokens. Cached and fresh responses stream identically. The stream stops
// emitting when ctx is cancelled.
func (e *Engine) GenerateStream(ctx context.Context, req types.GenerateRequest) *Stream {
	s := &Stream{
		tokens: make(chan string, 16),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		defer close(s.tokens)

		res, err := e.Generate(ctx, req)
		s.result, s.err = res, err
		if err != nil {
			return
		}

		for _, token := range splitTokens(res.Response) {
			select {
			case s.tokens <- token:
			case <-ctx.Done():
				return
			}
		}
	}()
	return s
}

// splitTokens cuts text into word-plus-trailing-whitespace tokens so the
// concatenation of all tokens reproduces the input exactly.
func splitTokens(text string) []string {
	var tokens []string
	start := 0
	inSpace := false
	for i, r := range text {
		isSpace := r == ' ' || r == '\t' || r == '\n' || r == '\r'
		if inSpace && !isSpace {
			tokens = append(tokens, text[start:i])
			start = i
		}
		inSpace = isSpace
	}
	if start < len(text) {
		tokens = append(tokens, text[start:])
	}
	return tokens
}
