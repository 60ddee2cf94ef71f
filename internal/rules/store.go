package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/nalabelle/miniflux-filter/internal/constants"
	"github.com/nalabelle/miniflux-filter/internal/logger"
	pkgerrors "github.com/nalabelle/miniflux-filter/pkg/errors"
)

// Store owns the authoritative rule sets: one feed_<id>.toml file per feed on
// disk, mirrored by an in-memory cache. Readers see immutable *RuleSet values
// that are swapped atomically after a file write completes; a partially
// written file is never visible through the cache.
//
// Writers are serialized by wmu, held across the full file-then-cache
// sequence so the cache never disagrees with what a completed write left on
// disk. Readers take only the RWMutex.
type Store struct {
	dir string
	log logger.Logger

	wmu sync.Mutex

	mu    sync.RWMutex
	cache map[int64]*RuleSet
}

func NewStore(dir string, log logger.Logger) *Store {
	return &Store{
		dir:   dir,
		log:   log,
		cache: make(map[int64]*RuleSet),
	}
}

func (s *Store) Dir() string {
	return s.dir
}

// ReloadAll reparses the rules directory and replaces the cache wholesale.
// A file that fails to parse or validate is skipped and logged; the rest of
// the directory still loads. On duplicate feed ids the first successfully
// loaded file in lexicographic filename order wins.
func (s *Store) ReloadAll() error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrPersistence)
	}

	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrPersistence)
	}

	names := make([]string, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), constants.RuleFileSuffix) {
			continue
		}
		names = append(names, de.Name())
	}
	sort.Strings(names)

	loaded := make(map[int64]*RuleSet, len(names))
	for _, name := range names {
		rs, err := s.loadFile(name)
		if err != nil {
			s.log.Warnw("Skipping rule file", "file", name, "error", err)
			continue
		}
		if _, exists := loaded[rs.FeedID]; exists {
			s.log.Warnw("Duplicate feed id, keeping first file", "file", name, "feed_id", rs.FeedID)
			continue
		}
		loaded[rs.FeedID] = rs
	}

	s.mu.Lock()
	s.cache = loaded
	s.mu.Unlock()

	s.log.Infow("Loaded rule sets", "count", len(loaded), "dir", s.dir)
	return nil
}

func (s *Store) loadFile(name string) (*RuleSet, error) {
	feedID, err := feedIDFromFilename(name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		return nil, err
	}

	var rs RuleSet
	if err := toml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	if rs.FeedID != feedID {
		return nil, fmt.Errorf("feed_id %d does not match filename id %d", rs.FeedID, feedID)
	}

	if err := rs.ValidateStructure(); err != nil {
		return nil, err
	}

	for _, compileErr := range rs.Compile() {
		s.log.Warnw("Rule validation failure", "file", name, "feed_id", rs.FeedID, "error", compileErr)
	}

	return &rs, nil
}

// Get returns the cached rule set for a feed, or nil when none exists. The
// returned value must be treated as read-only.
func (s *Store) Get(feedID int64) *RuleSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache[feedID]
}

// List returns all cached rule sets ordered by feed id.
func (s *Store) List() []*RuleSet {
	s.mu.RLock()
	sets := make([]*RuleSet, 0, len(s.cache))
	for _, rs := range s.cache {
		sets = append(sets, rs)
	}
	s.mu.RUnlock()

	sort.Slice(sets, func(i, j int) bool { return sets[i].FeedID < sets[j].FeedID })
	return sets
}

// Upsert validates the rule set, persists it with a temp-file-and-rename
// write, and only then swaps the cache entry. A crash mid-write leaves either
// the old file or the new one, never a torn file.
func (s *Store) Upsert(rs *RuleSet) error {
	if err := rs.Validate(); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrValidation)
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	if err := s.writeFile(rs); err != nil {
		return pkgerrors.Wrap(err, pkgerrors.ErrPersistence)
	}

	stored := rs.clone()
	stored.Compile()

	s.mu.Lock()
	s.cache[rs.FeedID] = stored
	s.mu.Unlock()

	s.log.Infow("Stored rule set", "feed_id", rs.FeedID, "rules", len(rs.Rules))
	return nil
}

func (s *Store) writeFile(rs *RuleSet) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	data, err := toml.Marshal(rs)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".feed_*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}

	target := s.FilePath(rs.FeedID)
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return err
	}

	return nil
}

// Delete removes the rule file and evicts the cache entry only after the file
// is gone. On failure the cache keeps the last known-good state.
func (s *Store) Delete(feedID int64) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	s.mu.RLock()
	_, exists := s.cache[feedID]
	s.mu.RUnlock()

	if !exists {
		return pkgerrors.ErrNotFound.WithDetail("feed_id", feedID)
	}

	if err := os.Remove(s.FilePath(feedID)); err != nil && !os.IsNotExist(err) {
		return pkgerrors.Wrap(err, pkgerrors.ErrPersistence)
	}

	s.mu.Lock()
	delete(s.cache, feedID)
	s.mu.Unlock()

	s.log.Infow("Deleted rule set", "feed_id", feedID)
	return nil
}

// Stats derives counters from the current cache contents.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		TotalRuleSets:  len(s.cache),
		FeedsWithRules: make([]int64, 0, len(s.cache)),
	}
	for feedID, rs := range s.cache {
		if rs.IsEnabled() {
			stats.EnabledRuleSets++
		}
		stats.TotalRules += rs.RuleCount()
		stats.FeedsWithRules = append(stats.FeedsWithRules, feedID)
	}
	sort.Slice(stats.FeedsWithRules, func(i, j int) bool {
		return stats.FeedsWithRules[i] < stats.FeedsWithRules[j]
	})

	return stats
}

func (s *Store) FilePath(feedID int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s%d%s", constants.RuleFilePrefix, feedID, constants.RuleFileSuffix))
}

func feedIDFromFilename(name string) (int64, error) {
	base := strings.TrimSuffix(name, constants.RuleFileSuffix)
	if !strings.HasPrefix(base, constants.RuleFilePrefix) {
		return 0, fmt.Errorf("file name %q does not match %s<id>%s", name, constants.RuleFilePrefix, constants.RuleFileSuffix)
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(base, constants.RuleFilePrefix), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("file name %q does not encode a feed id", name)
	}
	return id, nil
}
