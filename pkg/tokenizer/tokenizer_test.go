package tokenizer

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// withLoader swaps the encoding loader and resets the shared state for one test.
func withLoader(t *testing.T, fn func() (*Tokenizer, error)) {
	t.Helper()
	reset := func() {
		shared.Store(nil)
		loadOnce = sync.Once{}
		loaded = make(chan struct{})
	}
	prev := loadEncoding
	loadEncoding = fn
	reset()
	t.Cleanup(func() {
		loadEncoding = prev
		reset()
	})
}

func TestEstimate(t *testing.T) {
	assert.Equal(t, 0, Estimate(""))
	assert.Equal(t, 1, Estimate("abc"))
	assert.Equal(t, 1, Estimate("abcd"))
	assert.Equal(t, 2, Estimate("abcde"))
	// Runes, not bytes.
	assert.Equal(t, 1, Estimate("日本語"))
}

func TestCount(t *testing.T) {
	assert.Equal(t, 0, Count(""))
	Warm(30 * time.Second)

	n := Count("The quick brown fox jumps over the lazy dog.")
	assert.Greater(t, n, 0)
	assert.Less(t, n, 45)
}

func TestNew(t *testing.T) {
	tok, err := New()
	if err != nil {
		t.Logf("Tokenizer initialization failed (expected in some environments): %v", err)
		return
	}
	assert.Equal(t, 0, tok.CountTokens(""))
	assert.Greater(t, tok.CountTokens("hello world"), 0)
}

func TestCount_DoesNotWaitForEncoding(t *testing.T) {
	release := make(chan struct{})
	withLoader(t, func() (*Tokenizer, error) {
		<-release
		return nil, errors.New("offline")
	})

	done := make(chan int)
	go func() { done <- Count("abcdefgh") }()
	select {
	case n := <-done:
		assert.Equal(t, 2, n, "estimate while the encoding loads")
	case <-time.After(time.Second):
		t.Fatal("Count blocked on a stalled encoding load")
	}
	assert.False(t, Warm(10*time.Millisecond))

	close(release)
	assert.False(t, Warm(time.Second))
	assert.Equal(t, 2, Count("abcdefgh"))
}
