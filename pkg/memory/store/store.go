// Package store implements the on-disk layout of the three memory tiers:
//
//	<root>/working/<YYYY-MM-DD>-<session>.md   append-only capture, one file per session
//	<root>/episodic.md                         rolling summary, replaced per run
//	<root>/semantic.md                         immutable region + sentinel + mutable region
//
// Every tier write is a whole-file atomic replace, so a concurrent reader
// never observes a partially written document.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"

	"github.com/entrhq/mnemo/pkg/logging"
	"github.com/entrhq/mnemo/pkg/memory/retention"
)

const (
	WorkingDirName = "working"
	EpisodicFile   = "episodic.md"
	SemanticFile   = "semantic.md"
	StateFile      = ".state.yaml"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("store")
	if err != nil {
		debugLog.Warnf("Failed to initialize store logger, using stderr fallback: %v", err)
	}
}

// workingPattern matches working file names; anything else in working/ is ignored.
var workingPattern = glob.MustCompile("[0-9][0-9][0-9][0-9]-[0-9][0-9]-[0-9][0-9]-*.md")

// IsWorkingFile reports whether name is a working-tier session file name.
func IsWorkingFile(name string) bool {
	return workingPattern.Match(name)
}

// Store is the tiered memory directory. It is safe for concurrent use by one
// process; multiple processes writing the same root are not supported.
type Store struct {
	root       string
	workingDir string
	now        func() time.Time

	// semMu serializes read-modify-write of semantic.md.
	semMu sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for retention decisions.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New opens (creating if needed) the memory directory at root.
func New(root string, opts ...Option) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("store: root directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("store: abs root: %w", err)
	}
	s := &Store{
		root:       abs,
		workingDir: filepath.Join(abs, WorkingDirName),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(s.workingDir, 0o750); err != nil {
		return nil, fmt.Errorf("store: init directory %s: %w", s.workingDir, err)
	}
	return s, nil
}

// Root returns the memory directory.
func (s *Store) Root() string { return s.root }

// WorkingDir returns the working tier directory.
func (s *Store) WorkingDir() string { return s.workingDir }

// EpisodicPath returns the path of the episodic document.
func (s *Store) EpisodicPath() string { return filepath.Join(s.root, EpisodicFile) }

// SemanticPath returns the path of the semantic document.
func (s *Store) SemanticPath() string { return filepath.Join(s.root, SemanticFile) }

// Now returns the store clock's current time.
func (s *Store) Now() time.Time { return s.now() }

func (s *Store) policy(days int) retention.Policy {
	return retention.Policy{WindowDays: days, Now: s.now}
}

// WorkingFile describes one session capture file.
type WorkingFile struct {
	Name    string
	Path    string
	Date    string
	Size    int64
	ModTime time.Time
}

// ListWorking returns the working files sorted by name, which is
// chronological by session start date.
func (s *Store) ListWorking() ([]WorkingFile, error) {
	entries, err := os.ReadDir(s.workingDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", s.workingDir, err)
	}
	var out []WorkingFile
	for _, e := range entries {
		if e.IsDir() || !IsWorkingFile(e.Name()) {
			continue
		}
		date, ok := retention.DateOf(e.Name())
		if !ok {
			continue
		}
		wf := WorkingFile{
			Name: e.Name(),
			Path: filepath.Join(s.workingDir, e.Name()),
			Date: date,
		}
		if info, err := e.Info(); err == nil {
			wf.Size = info.Size()
			wf.ModTime = info.ModTime()
		}
		out = append(out, wf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// RecentWorkingContent concatenates the working files dated on or after
// today minus days, in chronological order. Unreadable files are skipped.
func (s *Store) RecentWorkingContent(days int) (string, error) {
	text, _, err := s.RecentWorking(days)
	return text, err
}

// RecentWorking is RecentWorkingContent that also returns the files whose
// whole content went into the text. A file that changed while it was being
// read is included in the text but not in the returned list.
func (s *Store) RecentWorking(days int) (string, []WorkingFile, error) {
	files, err := s.ListWorking()
	if err != nil {
		return "", nil, err
	}
	p := s.policy(days)
	var sb strings.Builder
	var read []WorkingFile
	for _, f := range files {
		if !p.InWindow(f.Name) {
			continue
		}
		b, err := os.ReadFile(f.Path)
		if err != nil {
			debugLog.Warnf("skipping unreadable working file %s: %v", f.Path, err)
			continue
		}
		if info, err := os.Stat(f.Path); err == nil && info.Size() == int64(len(b)) {
			f.Size = info.Size()
			f.ModTime = info.ModTime()
			read = append(read, f)
		}
		text := strings.TrimSpace(string(b))
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(text)
	}
	return sb.String(), read, nil
}

// PurgeWorkingOlderThan deletes working files dated strictly before today
// minus days. It returns the names of the deleted files.
func (s *Store) PurgeWorkingOlderThan(days int) ([]string, error) {
	p := s.policy(days)
	return s.purge(func(f WorkingFile) bool { return p.Expired(f.Name) })
}

// PurgeWorkingCovered deletes expired working files that a successful
// episodic update read in full and that have not changed since. Expired
// files without such coverage are kept and logged.
func (s *Store) PurgeWorkingCovered(days int, st State) ([]string, error) {
	p := s.policy(days)
	return s.purge(func(f WorkingFile) bool {
		if !p.Expired(f.Name) {
			return false
		}
		if !st.IsCovered(f) {
			debugLog.Warnf("keeping expired working file %s: never summarized by a successful episodic update", f.Name)
			return false
		}
		return true
	})
}

func (s *Store) purge(eligible func(WorkingFile) bool) ([]string, error) {
	files, err := s.ListWorking()
	if err != nil {
		return nil, err
	}
	var removed []string
	var errs []error
	for _, f := range files {
		if !eligible(f) {
			continue
		}
		if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("store: remove %s: %w", f.Path, err))
			continue
		}
		removed = append(removed, f.Name)
	}
	return removed, errors.Join(errs...)
}

// ReadEpisodic returns the episodic document, or "" when it does not exist.
func (s *Store) ReadEpisodic() (string, error) {
	b, err := os.ReadFile(s.EpisodicPath())
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: read episodic: %w", err)
	}
	return string(b), nil
}

// WriteEpisodic replaces the episodic document with text, byte for byte.
func (s *Store) WriteEpisodic(text string) error {
	if err := writeFileAtomic(s.EpisodicPath(), []byte(text)); err != nil {
		return fmt.Errorf("store: write episodic: %w", err)
	}
	return nil
}
