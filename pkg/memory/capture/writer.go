// Package capture appends conversation turns to the working tier in real
// time. One file per session, named <YYYY-MM-DD>-<session prefix>.md after
// the session start date, so name order is chronological order.
//
// Capture never fails the caller: I/O errors are logged and the turn is lost.
package capture

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/entrhq/mnemo/pkg/logging"
	"github.com/entrhq/mnemo/pkg/types"
)

const (
	// DefaultAssistantBudget caps assistant turns, in characters.
	DefaultAssistantBudget = 2000
	// prefixLen is the number of session id characters kept in file names.
	prefixLen = 8
	// hashLen is the number of hex digits of the id hash in file names.
	hashLen = 6
	// maxTargetLen caps the rendered tool target.
	maxTargetLen = 200
)

// Outcome is reported to the observer for every Append.
type Outcome string

const (
	OutcomeWritten  Outcome = "written"
	OutcomeDropped  Outcome = "dropped"
	OutcomeDisabled Outcome = "disabled"
	OutcomeError    Outcome = "error"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("capture")
	if err != nil {
		debugLog.Warnf("Failed to initialize capture logger, using stderr fallback: %v", err)
	}
}

// Writer appends turns of the current session to its working file.
type Writer struct {
	mu sync.Mutex

	dir       string
	enabled   bool
	budget    int
	now       func() time.Time
	sanitizer *Sanitizer
	observer  func(Outcome, int)

	sessionID     string
	path          string
	startedAt     time.Time
	markerWritten bool
}

// Option configures a Writer.
type Option func(*Writer)

// WithClock overrides the clock used for session dates and line stamps.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

// WithAssistantBudget sets the assistant truncation budget in characters.
func WithAssistantBudget(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.budget = n
		}
	}
}

// WithStrippedTags adds markup tag names removed before persisting.
func WithStrippedTags(tags ...string) Option {
	return func(w *Writer) { w.sanitizer = NewSanitizer(tags...) }
}

// WithObserver registers a callback receiving each Append outcome and the
// number of bytes written.
func WithObserver(fn func(Outcome, int)) Option {
	return func(w *Writer) { w.observer = fn }
}

// NewWriter returns an enabled writer for the working directory dir.
func NewWriter(dir string, opts ...Option) *Writer {
	w := &Writer{
		dir:       dir,
		enabled:   true,
		budget:    DefaultAssistantBudget,
		now:       time.Now,
		sanitizer: defaultSanitizer,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SetEnabled gates capture. A disabled writer ignores every Append.
func (w *Writer) SetEnabled(enabled bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.enabled = enabled
}

// Enabled reports whether capture is on.
func (w *Writer) Enabled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enabled
}

// SessionID returns the current session id, or "".
func (w *Writer) SessionID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sessionID
}

// Path returns the current session file path, or "".
func (w *Writer) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.path
}

// StartSession makes id the current session. Calling it again with the
// current id does nothing. An empty id gets a random one.
func (w *Writer) StartSession(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.startLocked(id)
}

func (w *Writer) startLocked(id string) {
	if id == "" {
		id = uuid.New().String()
	}
	if id == w.sessionID && w.path != "" {
		return
	}
	w.sessionID = id
	w.startedAt = w.now()
	w.path = filepath.Join(w.dir, fmt.Sprintf("%s-%s.md", w.startedAt.Format("2006-01-02"), SessionPrefix(id)))
	w.markerWritten = false
	debugLog.Debugf("session %s -> %s", id, w.path)
}

// SessionPrefix returns the file name fragment for a session id: the first
// eight characters from [A-Za-z0-9_-]. When that fragment does not spell the
// whole id and the id is not a UUID, a short hash of the full id is appended
// so that ids sharing a prefix land in different files.
func SessionPrefix(id string) string {
	var sb strings.Builder
	kept := 0
	for _, r := range id {
		if r == '-' || r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
			if sb.Len() < prefixLen {
				sb.WriteRune(r)
			}
			kept++
		}
	}
	if sb.Len() == 0 {
		return strings.ReplaceAll(uuid.New().String(), "-", "")[:prefixLen]
	}
	if sb.String() == id {
		return id
	}
	if _, err := uuid.Parse(id); err == nil && kept == len(id) {
		return sb.String()
	}
	sum := sha256.Sum256([]byte(id))
	return sb.String() + "-" + hex.EncodeToString(sum[:])[:hashLen]
}

// Append persists one turn. Turns empty after sanitation are dropped. A turn
// arriving before StartSession opens a session with a random id.
func (w *Writer) Append(turn types.Turn) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.enabled {
		w.notify(OutcomeDisabled, 0)
		return
	}
	line, ok := w.render(turn)
	if !ok {
		w.notify(OutcomeDropped, 0)
		return
	}
	if w.path == "" {
		w.startLocked("")
	}

	var buf strings.Builder
	if !w.markerWritten {
		if info, err := os.Stat(w.path); err == nil && info.Size() > 0 {
			buf.WriteString("\n")
		}
		fmt.Fprintf(&buf, "--- Session started %s ---\n", w.startedAt.Format("2006-01-02 15:04"))
	}
	buf.WriteString(line)
	buf.WriteString("\n")

	n, err := w.appendFile(buf.String())
	if err != nil {
		debugLog.Errorf("capture write failed for %s: %v", w.path, err)
		w.notify(OutcomeError, 0)
		return
	}
	w.markerWritten = true
	w.notify(OutcomeWritten, n)
}

func (w *Writer) appendFile(data string) (int, error) {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if errors.Is(err, os.ErrNotExist) {
		if mkErr := os.MkdirAll(w.dir, 0o750); mkErr != nil {
			return 0, mkErr
		}
		f, err = os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	}
	if err != nil {
		return 0, err
	}
	n, err := f.WriteString(data)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	return n, err
}

func (w *Writer) render(turn types.Turn) (string, bool) {
	ts := turn.Timestamp
	if ts.IsZero() {
		ts = w.now()
	}
	stamp := ts.Format("15:04")

	switch turn.Role {
	case types.RoleUser:
		text := w.sanitizer.Clean(turn.Text)
		if text == "" {
			return "", false
		}
		return fmt.Sprintf("[%s] %s: %s", stamp, turn.Role.Speaker(), text), true
	case types.RoleAssistant:
		text := w.sanitizer.Clean(turn.Text)
		if text == "" {
			return "", false
		}
		return fmt.Sprintf("[%s] %s: %s", stamp, turn.Role.Speaker(), Truncate(text, w.budget)), true
	case types.RoleTool:
		name := singleLine(w.sanitizer.Clean(turn.ToolName))
		if name == "" {
			return "", false
		}
		target := Truncate(singleLine(w.sanitizer.Clean(turn.ToolTarget)), maxTargetLen)
		return fmt.Sprintf("  -> %s(%s)", name, target), true
	default:
		debugLog.Warnf("dropping turn with unknown role %q", turn.Role)
		return "", false
	}
}

func (w *Writer) notify(o Outcome, n int) {
	if w.observer != nil {
		w.observer(o, n)
	}
}

// Close ends the current session. The next Append or StartSession opens a
// new one.
func (w *Writer) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sessionID != "" {
		debugLog.Debugf("session %s closed", w.sessionID)
	}
	w.sessionID = ""
	w.path = ""
	w.markerWritten = false
}

// SetDir moves future sessions to dir and closes the current one.
func (w *Writer) SetDir(dir string) {
	w.mu.Lock()
	w.dir = dir
	w.mu.Unlock()
	w.Close()
}
