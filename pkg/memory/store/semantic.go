package store

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Sentinel separates the hand-curated region of semantic.md from the region
// rewritten by consolidation.
const Sentinel = "---IMMUTABLE ABOVE / MUTABLE BELOW---"

const mutablePlaceholder = "<!-- Mutable: durable facts graduated from episodic memory. Rewritten by consolidation. -->"

// SemanticTemplate is written when semantic.md does not exist.
const SemanticTemplate = "# Semantic Memory\n\n" +
	"<!-- Immutable: curated by hand. Consolidation never rewrites anything above the marker. -->\n\n" +
	Sentinel + "\n\n" +
	mutablePlaceholder + "\n"

// SemanticParts is semantic.md split at the sentinel line.
type SemanticParts struct {
	// Immutable holds every byte before the sentinel line, verbatim. When the
	// sentinel is missing it holds the whole document.
	Immutable string
	// Mutable is the trimmed text after the sentinel line, empty when the
	// region only holds the template placeholder.
	Mutable     string
	HasSentinel bool
}

// SplitSemantic splits a semantic document at the first line equal to the
// sentinel. A document without the sentinel is entirely immutable.
func SplitSemantic(doc string) SemanticParts {
	offset := 0
	for offset <= len(doc) {
		var line string
		next := len(doc) + 1
		if end := strings.IndexByte(doc[offset:], '\n'); end >= 0 {
			line = doc[offset : offset+end]
			next = offset + end + 1
		} else {
			line = doc[offset:]
		}
		if isSentinelLine(line) {
			rest := ""
			if next <= len(doc) {
				rest = doc[next:]
			}
			mutable := strings.TrimSpace(rest)
			if mutable == mutablePlaceholder {
				mutable = ""
			}
			return SemanticParts{Immutable: doc[:offset], Mutable: mutable, HasSentinel: true}
		}
		offset = next
	}
	return SemanticParts{Immutable: doc}
}

func isSentinelLine(line string) bool {
	return strings.TrimRight(line, " \t\r") == Sentinel
}

// stripSentinelLines removes any sentinel line from generated text so the
// mutable region can never introduce a second split point.
func stripSentinelLines(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, l := range lines {
		if isSentinelLine(l) {
			continue
		}
		kept = append(kept, l)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// composeSemantic rebuilds a document from the existing one and a new
// mutable region. The bytes of the immutable region are copied unchanged.
func composeSemantic(existing, mutable string) string {
	parts := SplitSemantic(existing)
	mutable = stripSentinelLines(mutable)

	var sb strings.Builder
	sb.WriteString(parts.Immutable)
	if !parts.HasSentinel {
		if parts.Immutable != "" && !strings.HasSuffix(parts.Immutable, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	sb.WriteString(Sentinel)
	sb.WriteString("\n")
	if mutable != "" {
		sb.WriteString("\n")
		sb.WriteString(mutable)
		sb.WriteString("\n")
	}
	return sb.String()
}

// ReadSemantic returns semantic.md, or "" when it does not exist.
func (s *Store) ReadSemantic() (string, error) {
	b, err := os.ReadFile(s.SemanticPath())
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: read semantic: %w", err)
	}
	return string(b), nil
}

// ReadSemanticParts reads semantic.md and splits it at the sentinel.
func (s *Store) ReadSemanticParts() (SemanticParts, error) {
	doc, err := s.ReadSemantic()
	if err != nil {
		return SemanticParts{}, err
	}
	return SplitSemantic(doc), nil
}

// EnsureSemanticTemplate creates semantic.md from the template when it is
// missing or empty. An existing document is never touched.
func (s *Store) EnsureSemanticTemplate() error {
	s.semMu.Lock()
	defer s.semMu.Unlock()
	return s.ensureTemplateLocked()
}

func (s *Store) ensureTemplateLocked() error {
	info, err := os.Stat(s.SemanticPath())
	if err == nil && info.Size() > 0 {
		return nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("store: stat semantic: %w", err)
	}
	if err := writeFileAtomic(s.SemanticPath(), []byte(SemanticTemplate)); err != nil {
		return fmt.Errorf("store: write semantic template: %w", err)
	}
	debugLog.Infof("Created semantic template at %s", s.SemanticPath())
	return nil
}

// WriteSemanticMutable replaces only the region after the sentinel. Text
// before the sentinel is carried over byte for byte; when the sentinel is
// missing the whole existing document is kept and a sentinel is appended.
func (s *Store) WriteSemanticMutable(mutable string) error {
	s.semMu.Lock()
	defer s.semMu.Unlock()

	if err := s.ensureTemplateLocked(); err != nil {
		return err
	}
	existing, err := s.ReadSemantic()
	if err != nil {
		return err
	}
	if !SplitSemantic(existing).HasSentinel {
		debugLog.Warnf("semantic.md has no sentinel line; treating whole document as immutable")
	}
	if err := writeFileAtomic(s.SemanticPath(), []byte(composeSemantic(existing, mutable))); err != nil {
		return fmt.Errorf("store: write semantic: %w", err)
	}
	return nil
}
