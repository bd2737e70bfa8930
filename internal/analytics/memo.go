package analytics

import (
	"sort"
	"strings"
	"time"

	"budgetwise/internal/cache"
	"budgetwise/internal/core"
)

// Memo caches snapshots for repeated dashboard renders. Entries are keyed by
// log version, filter and calendar day, and a hit is rechecked against the
// range cutoff so the result always matches Compute.
type Memo struct {
	cache *cache.LRUCache[memoEntry]
}

type memoEntry struct {
	snap       core.AnalyticsSnapshot
	computedAt time.Time
	oldest     time.Time
	hasOldest  bool
}

func NewMemo(size int, ttl time.Duration) *Memo {
	return &Memo{cache: cache.NewLRUCache[memoEntry](size, ttl)}
}

// Snapshot returns Compute(records, f, now), reusing a cached result when
// version names the same log contents.
func (m *Memo) Snapshot(version string, records []core.ExpenseRecord, f Filter, now time.Time) core.AnalyticsSnapshot {
	key := memoKey(version, f, now)
	if e, ok := m.cache.Get(key); ok && e.fresh(f, now) {
		return e.snap
	}

	selected := Select(records, f, now)
	e := memoEntry{
		snap:       Compute(selected, Filter{}, now),
		computedAt: now,
	}
	for _, r := range selected {
		if !e.hasOldest || r.Timestamp.Before(e.oldest) {
			e.oldest = r.Timestamp
			e.hasOldest = true
		}
	}
	m.cache.Set(key, e)
	return e.snap
}

// fresh reports whether the records admitted at computedAt are still the
// ones admitted at now. Cutoffs only move forward, so the entry holds until
// its oldest admitted record falls behind the cutoff.
func (e memoEntry) fresh(f Filter, now time.Time) bool {
	if now.Before(e.computedAt) {
		return false
	}
	cutoff, bounded := f.Range.Cutoff(now)
	if !bounded || !e.hasOldest {
		return true
	}
	return !e.oldest.Before(cutoff)
}

// CleanExpired lets a cache.Manager sweep the memo.
func (m *Memo) CleanExpired() int {
	return m.cache.CleanExpired()
}

func (m *Memo) Invalidate() {
	m.cache.Purge()
}

func (m *Memo) Stats() cache.Stats {
	return m.cache.Stats()
}

func memoKey(version string, f Filter, now time.Time) string {
	cats := make([]string, 0, len(f.Categories))
	for _, c := range f.Categories {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)

	return strings.Join([]string{
		version,
		string(f.Range),
		strings.Join(cats, ","),
		now.Format(dayLayout),
		now.Location().String(),
	}, "|")
}
