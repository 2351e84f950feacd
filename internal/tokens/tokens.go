// Package tokens measures the size of prompts sent to the model.
package tokens

import (
	"io"
	"log/slog"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// FallbackEncoding is used for models tiktoken does not know, which
// includes every DashScope model.
const FallbackEncoding = "cl100k_base"

// Counter counts the tokens of a text.
type Counter interface {
	Count(text string) int
}

// Estimate approximates token counts without an encoding: four ASCII
// bytes per token and one token per other rune, which is close for
// English and CJK text alike.
type Estimate struct{}

func (Estimate) Count(text string) int {
	ascii, other := 0, 0
	for _, r := range text {
		if r < utf8.RuneSelf {
			ascii++
		} else {
			other++
		}
	}
	return (ascii+3)/4 + other
}

// Tiktoken counts with a BPE encoding. The encoding is loaded on first
// use; if it cannot be loaded the counter falls back to Estimate.
type Tiktoken struct {
	model  string
	logger *slog.Logger

	once     sync.Once
	mu       sync.Mutex
	encoding *tiktoken.Tiktoken
}

// New returns a tiktoken counter for model.
func New(model string, logger *slog.Logger) *Tiktoken {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Tiktoken{model: model, logger: logger}
}

func (t *Tiktoken) load() {
	encoding, err := tiktoken.EncodingForModel(t.model)
	if err != nil {
		// tiktoken fetches its ranks on first use
		encoding, err = tiktoken.GetEncoding(FallbackEncoding)
	}
	if err != nil {
		t.logger.Warn("token encoding unavailable, estimating prompt sizes", "model", t.model, "error", err)
		return
	}
	t.encoding = encoding
}

// Count returns the number of tokens in text.
func (t *Tiktoken) Count(text string) int {
	t.once.Do(t.load)
	if t.encoding == nil {
		return Estimate{}.Count(text)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.encoding.Encode(text, nil, nil))
}
