// Package oracle wraps one external single-turn summarization call behind a
// uniform contract: Summarize returns the generated text and true, or "" and
// false on any failure. Failures are logged here and never returned.
//
// Backends:
//   - OpenAIBackend: any OpenAI-compatible chat completions endpoint
//   - OllamaBackend: a local Ollama server (/api/generate)
//   - CommandBackend: a local subprocess reading the prompt on stdin
//   - MockBackend: scripted responses for tests
package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/entrhq/mnemo/pkg/logging"
)

// DefaultTimeout bounds every Summarize call unless overridden.
const DefaultTimeout = 2 * time.Minute

// ErrNoCredentials is returned by backend constructors, and logged by the
// client, when no credential or endpoint is configured.
var ErrNoCredentials = errors.New("oracle: no credentials configured")

// ErrEmptyResponse is reported when a backend answers with blank text.
var ErrEmptyResponse = errors.New("oracle: empty response")

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("oracle")
	if err != nil {
		debugLog.Warnf("Failed to initialize oracle logger, using stderr fallback: %v", err)
	}
}

// Backend performs one completion. Implementations honour ctx cancellation
// and perform no retries.
type Backend interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	Name() string
}

// Observer is notified after every Summarize call.
type Observer func(backend string, ok bool, elapsed time.Duration)

// Client applies the uniform contract on top of a Backend.
type Client struct {
	backend  Backend
	timeout  time.Duration
	observer Observer
	setupErr error
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the per-call timeout. Non-positive values keep the default.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithObserver registers a callback run after each call.
func WithObserver(o Observer) ClientOption {
	return func(c *Client) {
		c.observer = o
	}
}

// NewClient wraps backend. A nil backend yields a client whose every call
// fails with ErrNoCredentials.
func NewClient(backend Backend, opts ...ClientOption) *Client {
	c := &Client{backend: backend, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Unavailable returns a client that always fails with err. It lets callers
// keep running (and purging) when the oracle cannot be configured.
func Unavailable(err error) *Client {
	if err == nil {
		err = ErrNoCredentials
	}
	return &Client{timeout: DefaultTimeout, setupErr: err}
}

// BackendName returns the wrapped backend name, or "none".
func (c *Client) BackendName() string {
	if c == nil || c.backend == nil {
		return "none"
	}
	return c.backend.Name()
}

// Timeout returns the per-call timeout.
func (c *Client) Timeout() time.Duration { return c.timeout }

// Summarize runs one completion. ok is false on missing credentials, any
// backend error, timeout, or blank output; the reason is logged.
func (c *Client) Summarize(ctx context.Context, system, prompt string) (text string, ok bool) {
	if c == nil {
		debugLog.Warnf("summarize skipped: %v", ErrNoCredentials)
		return "", false
	}
	start := time.Now()
	name := c.BackendName()
	defer func() {
		if c.observer != nil {
			c.observer(name, ok, time.Since(start))
		}
	}()

	if c.backend == nil {
		err := c.setupErr
		if err == nil {
			err = ErrNoCredentials
		}
		debugLog.Warnf("summarize skipped: %v", err)
		return "", false
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	// Buffered so a backend that ignores ctx does not leak a blocked sender.
	done := make(chan result, 1)
	go func() {
		text, err := c.backend.Complete(callCtx, system, prompt)
		done <- result{text, err}
	}()

	var out string
	var err error
	select {
	case r := <-done:
		out, err = r.text, r.err
		if err == nil && callCtx.Err() != nil {
			err = callCtx.Err()
		}
	case <-callCtx.Done():
		err = callCtx.Err()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			debugLog.Warnf("%s: call timed out after %v", name, c.timeout)
		} else {
			debugLog.Warnf("%s: call failed: %v", name, err)
		}
		return "", false
	}

	out = strings.TrimSpace(out)
	if out == "" {
		debugLog.Warnf("%s: %v", name, ErrEmptyResponse)
		return "", false
	}
	debugLog.Debugf("%s: received %d bytes in %v", name, len(out), time.Since(start).Round(time.Millisecond))
	return out, true
}

// statusError describes a non-success HTTP response.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	body := e.Body
	if len(body) > 512 {
		body = body[:512] + "..."
	}
	return fmt.Sprintf("request failed with status %d: %s", e.Code, body)
}
