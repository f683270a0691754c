package routing

import (
	"killrelay/internal/rules"
	"killrelay/pkg/models"
)

// CompiledSet is a filter set with its rules compiled. Rules that failed to
// compile are absent, so PassThrough is taken from the source count.
type CompiledSet struct {
	Rules       []rules.Rule
	PassThrough bool
}

// aggregate folds rule outcomes left to right. Exclude ends the fold, a later
// Include overwrites an earlier one, NoMatch is skipped.
func (m *Matcher) aggregate(cs *CompiledSet, km *models.Killmail, includeNPC bool) (bool, Side) {
	if cs.PassThrough {
		return true, SideNone
	}

	included, side := false, SideNone
	for _, rule := range cs.Rules {
		out := m.Match(rule, km, includeNPC)
		switch out.Kind {
		case OutcomeExclude:
			return false, SideNone
		case OutcomeInclude:
			included, side = true, out.Side
		}
	}
	return included, side
}
