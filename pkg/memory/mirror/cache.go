// Package mirror keeps materialized, read-only copies of the memory tiers for
// display surfaces, so a status panel or API handler never re-reads disk on
// each access.
package mirror

import (
	"errors"
	"sync"
	"time"

	"github.com/entrhq/mnemo/pkg/logging"
	"github.com/entrhq/mnemo/pkg/memory/store"
	"github.com/entrhq/mnemo/pkg/tokenizer"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("mirror")
	if err != nil {
		debugLog.Warnf("Failed to initialize mirror logger, using stderr fallback: %v", err)
	}
}

// Snapshot is an immutable view of the tiers at RefreshedAt.
type Snapshot struct {
	Root string `json:"root"`

	Episodic       string `json:"episodic"`
	EpisodicTokens int    `json:"episodic_tokens"`

	Semantic            string `json:"semantic"`
	SemanticImmutable   string `json:"semantic_immutable"`
	SemanticMutable     string `json:"semantic_mutable"`
	SemanticHasSentinel bool   `json:"semantic_has_sentinel"`
	SemanticTokens      int    `json:"semantic_tokens"`

	Working store.WorkingStats `json:"working"`
	State   store.State        `json:"state"`

	RefreshedAt time.Time `json:"refreshed_at"`
}

// Cache holds the latest Snapshot.
type Cache struct {
	store *store.Store

	mu   sync.RWMutex
	snap Snapshot
}

// NewCache returns an empty cache for st. Call Refresh to populate it.
func NewCache(st *store.Store) *Cache {
	return &Cache{store: st, snap: Snapshot{Root: st.Root()}}
}

// Snapshot returns the current view.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Refresh re-reads every tier. Fields that cannot be read keep their
// previous value; the errors are joined and returned.
func (c *Cache) Refresh() error {
	var errs []error
	c.mu.RLock()
	next := c.snap
	c.mu.RUnlock()

	if episodic, err := c.store.ReadEpisodic(); err != nil {
		errs = append(errs, err)
	} else {
		next.Episodic = episodic
		next.EpisodicTokens = tokenizer.Count(episodic)
	}

	if semantic, err := c.store.ReadSemantic(); err != nil {
		errs = append(errs, err)
	} else {
		parts := store.SplitSemantic(semantic)
		next.Semantic = semantic
		next.SemanticImmutable = parts.Immutable
		next.SemanticMutable = parts.Mutable
		next.SemanticHasSentinel = parts.HasSentinel
		next.SemanticTokens = tokenizer.Count(semantic)
	}

	if stats, err := c.store.Stats(); err != nil {
		errs = append(errs, err)
	} else {
		next.Working = stats
	}

	if state, err := c.store.LoadState(); err != nil {
		errs = append(errs, err)
	} else {
		next.State = state
	}

	next.Root = c.store.Root()
	next.RefreshedAt = c.store.Now()

	c.mu.Lock()
	c.snap = next
	c.mu.Unlock()

	err := errors.Join(errs...)
	if err != nil {
		debugLog.Warnf("mirror refresh incomplete: %v", err)
	}
	return err
}

// RefreshStats re-reads only the working tier statistics.
func (c *Cache) RefreshStats() error {
	stats, err := c.store.Stats()
	if err != nil {
		debugLog.Warnf("mirror stats refresh failed: %v", err)
		return err
	}
	c.mu.Lock()
	c.snap.Working = stats
	c.snap.RefreshedAt = c.store.Now()
	c.mu.Unlock()
	return nil
}
