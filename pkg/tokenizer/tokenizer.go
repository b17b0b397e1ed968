// Package tokenizer counts tokens of prompts and tier documents. It uses the
// cl100k_base BPE from tiktoken-go and falls back to a character estimate
// while the encoding is loading or when it cannot be loaded.
package tokenizer

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE used for counting.
const DefaultEncoding = "cl100k_base"

// Tokenizer counts tokens with a tiktoken encoding.
type Tokenizer struct {
	encoding *tiktoken.Tiktoken
	mu       sync.Mutex
}

// New loads the default encoding.
func New() (*Tokenizer, error) {
	enc, err := tiktoken.GetEncoding(DefaultEncoding)
	if err != nil {
		return nil, fmt.Errorf("tokenizer: load %s: %w", DefaultEncoding, err)
	}
	return &Tokenizer{encoding: enc}, nil
}

// CountTokens returns the number of tokens in text.
func (t *Tokenizer) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.encoding.Encode(text, nil, nil))
}

// Estimate approximates a token count as one token per four characters.
func Estimate(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}

var (
	// loadEncoding fetches the BPE, which may go to the network on first use.
	loadEncoding = New

	shared   atomic.Pointer[Tokenizer]
	loadOnce sync.Once
	loaded   = make(chan struct{})
)

func startLoad() {
	load, done := loadEncoding, loaded
	go func() {
		defer close(done)
		if tok, err := load(); err == nil {
			shared.Store(tok)
		}
	}()
}

// Count counts tokens with the shared tokenizer. It never waits for the
// encoding: until it has loaded, or if loading fails, Count estimates.
func Count(text string) int {
	loadOnce.Do(startLoad)
	if tok := shared.Load(); tok != nil {
		return tok.CountTokens(text)
	}
	return Estimate(text)
}

// Warm starts loading the shared encoding and waits at most timeout for it.
// It reports whether exact counts are available.
func Warm(timeout time.Duration) bool {
	loadOnce.Do(startLoad)
	select {
	case <-loaded:
	case <-time.After(timeout):
	}
	return shared.Load() != nil
}
