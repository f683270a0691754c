package rules

import (
	"killrelay/internal/logger"
	"killrelay/pkg/metrics"
)

// Compiler wraps Parse with warning logging. It holds no state between
// calls and is safe for concurrent use.
type Compiler struct {
	logger logger.Logger
}

func NewCompiler(log logger.Logger) *Compiler {
	if log == nil {
		log = logger.NopLogger()
	}
	return &Compiler{logger: log}
}

// Compile parses src, logging each dropped token. The only error is
// ErrUnknownKind.
func (c *Compiler) Compile(src string) (Rule, error) {
	rule, warnings, err := Parse(src)
	if err != nil {
		return Rule{}, err
	}

	for _, w := range warnings {
		metrics.IncRuleCompileWarning(rule.Kind.String(), w.Reason)
		c.logger.Warnw("Dropped rule token",
			"rule", src,
			"token", w.Token,
			"reason", w.Reason,
		)
	}

	if rule.Properties.Has(PropertyWithNPC) {
		c.logger.Warnw("with_npc property has no effect, use the filter set include_npc flag",
			"rule", src,
		)
	}

	return rule, nil
}

// Validate compiles every source and returns the first failure.
func (c *Compiler) Validate(sources []string) error {
	for _, src := range sources {
		if _, err := c.Compile(src); err != nil {
			return err
		}
	}
	return nil
}
