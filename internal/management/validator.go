package management

import (
	"fmt"
	"strings"

	"killrelay/internal/rules"
	pkgerrors "killrelay/pkg/errors"
)

// ValidateFilter rejects rule strings that cannot compile. Dropped tokens are
// not errors; they are reported by ValidateFilters.
func ValidateFilter(src string) error {
	if strings.TrimSpace(src) == "" {
		return pkgerrors.ErrValidation.WithDetail("message", "filter must not be empty")
	}
	if _, _, err := rules.Parse(src); err != nil {
		return pkgerrors.ErrValidation.
			WithCause(err).
			WithDetail("message", fmt.Sprintf("invalid filter %q: %v", src, err)).
			WithDetail("filter", src)
	}
	return nil
}

func validateFilters(filters []string) error {
	for _, f := range filters {
		if err := ValidateFilter(f); err != nil {
			return err
		}
	}
	return nil
}

// describeFilter compiles src for the validate endpoint.
func describeFilter(src string) ValidatedRule {
	out := ValidatedRule{Source: src}
	if err := ValidateFilter(src); err != nil {
		out.Error = err.Error()
		return out
	}

	rule, warnings, _ := rules.Parse(src)
	out.Canonical = rule.String()
	out.Kind = rule.Kind.String()
	out.Warnings = warnings
	if rule.Properties.Has(rules.PropertyWithNPC) {
		out.Warnings = append(out.Warnings, rules.Warning{
			Token:  rules.PropertyWithNPC.String(),
			Reason: "ignored, use the filter set include_npc flag",
		})
	}
	return out
}
