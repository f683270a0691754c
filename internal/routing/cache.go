package routing

import (
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"

	"killrelay/internal/logger"
	"killrelay/internal/rules"
	"killrelay/pkg/metrics"
	"killrelay/pkg/models"
)

type cacheEntry struct {
	version     int64
	fingerprint uint64
	compiled    *CompiledSet
}

// Cache memoizes compiled filter sets. Entries are keyed by set ID and
// recompiled when the version or the content fingerprint changes, so a set
// edited in place never serves stale rules.
type Cache struct {
	mu       sync.RWMutex
	entries  map[string]*cacheEntry
	compiler *rules.Compiler
	logger   logger.Logger
}

func NewCache(compiler *rules.Compiler, log logger.Logger) *Cache {
	if log == nil {
		log = logger.NopLogger()
	}
	if compiler == nil {
		compiler = rules.NewCompiler(log)
	}
	return &Cache{
		entries:  make(map[string]*cacheEntry),
		compiler: compiler,
		logger:   log,
	}
}

// Fingerprint hashes the ordered rule sources of a set.
func Fingerprint(filters []string) uint64 {
	d := xxhash.New()
	for _, f := range filters {
		_, _ = d.WriteString(f)
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}

func cacheKey(set *models.FilterSet, fingerprint uint64) string {
	if set.ID != "" {
		return set.ID
	}
	return "content:" + strconv.FormatUint(fingerprint, 16)
}

func (c *Cache) Get(set *models.FilterSet) *CompiledSet {
	fp := Fingerprint(set.Filters)
	key := cacheKey(set, fp)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && entry.version == set.Version && entry.fingerprint == fp {
		metrics.IncCompiledCache("hit")
		return entry.compiled
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok && entry.version == set.Version && entry.fingerprint == fp {
		metrics.IncCompiledCache("hit")
		return entry.compiled
	}

	metrics.IncCompiledCache("miss")
	compiled := c.compile(set)
	c.entries[key] = &cacheEntry{
		version:     set.Version,
		fingerprint: fp,
		compiled:    compiled,
	}
	return compiled
}

func (c *Cache) compile(set *models.FilterSet) *CompiledSet {
	cs := &CompiledSet{
		Rules:       make([]rules.Rule, 0, len(set.Filters)),
		PassThrough: len(set.Filters) == 0,
	}
	for _, src := range set.Filters {
		rule, err := c.compiler.Compile(src)
		if err != nil {
			metrics.RuleCompileErrorsTotal.Inc()
			c.logger.Errorw("Skipping uncompilable rule",
				"filter_set_id", set.ID,
				"rule", src,
				"error", err,
			)
			continue
		}
		cs.Rules = append(cs.Rules, rule)
	}
	return cs
}

// Prune drops entries for sets that are no longer loaded.
func (c *Cache) Prune(live []models.FilterSet) int {
	keep := make(map[string]struct{}, len(live))
	for i := range live {
		keep[cacheKey(&live[i], Fingerprint(live[i].Filters))] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if _, ok := keep[key]; !ok {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
