package routing

import (
	"killrelay/internal/logger"
	"killrelay/internal/rules"
	"killrelay/pkg/models"
)

// Engine evaluates killmails against filter sets. It performs no I/O and is
// safe for concurrent use.
type Engine struct {
	matcher *Matcher
	cache   *Cache
}

func NewEngine(regions RegionResolver, compiler *rules.Compiler, log logger.Logger) *Engine {
	return &Engine{
		matcher: NewMatcher(regions),
		cache:   NewCache(compiler, log),
	}
}

// Evaluate returns one decision per target of every included set, in set
// order then target order. Decisions are not deduplicated across sets.
func (e *Engine) Evaluate(km *models.Killmail, sets []models.FilterSet) []Decision {
	var decisions []Decision
	for i := range sets {
		set := &sets[i]
		included, side := e.matcher.aggregate(e.cache.Get(set), km, set.IncludeNPC)
		if !included {
			continue
		}
		classification := side.Classification()
		for _, target := range set.TargetIDs {
			decisions = append(decisions, Decision{TargetID: target, Classification: classification})
		}
	}
	return decisions
}

func (e *Engine) Cache() *Cache {
	return e.cache
}
