package rules

import (
	"errors"
	"sort"
	"strconv"
	"strings"
)

var ErrUnknownKind = errors.New("unknown rule kind")

// IDSet is an unordered set of positive entity ids.
type IDSet map[uint64]struct{}

func NewIDSet(ids ...uint64) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Contains(id uint64) bool {
	_, ok := s[id]
	return ok
}

// ContainsPtr reports whether id is present and non-nil.
func (s IDSet) ContainsPtr(id *uint64) bool {
	return id != nil && s.Contains(*id)
}

// Sorted returns the ids in ascending order.
func (s IDSet) Sorted() []uint64 {
	out := make([]uint64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Rule is the compiled form of a single "kind:ids[:properties]" string.
type Rule struct {
	Kind       Kind
	IDs        IDSet
	Properties PropertySet
	Source     string
}

// Warning describes a token that was dropped during compilation.
type Warning struct {
	Token  string `json:"token"`
	Reason string `json:"reason"`
}

// Parse compiles a rule string. Unknown kinds fail; malformed id tokens and
// unknown properties are dropped and reported as warnings.
func Parse(src string) (Rule, []Warning, error) {
	parts := strings.Split(src, ":")

	kind, err := ParseKind(parts[0])
	if err != nil {
		return Rule{}, nil, err
	}

	rule := Rule{
		Kind:   kind,
		IDs:    IDSet{},
		Source: src,
	}

	var warnings []Warning

	if len(parts) > 1 {
		for _, token := range strings.Split(parts[1], ",") {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}
			id, err := strconv.ParseUint(token, 10, 64)
			if err != nil {
				warnings = append(warnings, Warning{Token: token, Reason: "invalid id"})
				continue
			}
			if id == 0 {
				warnings = append(warnings, Warning{Token: token, Reason: "id must be positive"})
				continue
			}
			rule.IDs[id] = struct{}{}
		}
	}

	if len(parts) > 2 {
		for _, token := range strings.Split(parts[2], ",") {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}
			prop, ok := parseProperty(token)
			if !ok {
				warnings = append(warnings, Warning{Token: token, Reason: "unknown property"})
				continue
			}
			rule.Properties = rule.Properties.With(prop)
		}
	}

	// Only the third segment carries properties.
	for _, segment := range parts[min(len(parts), 3):] {
		if segment = strings.TrimSpace(segment); segment != "" {
			warnings = append(warnings, Warning{Token: segment, Reason: "extra segment ignored"})
		}
	}

	return rule, warnings, nil
}

// String renders the rule in canonical form.
func (r Rule) String() string {
	ids := r.IDs.Sorted()
	tokens := make([]string, len(ids))
	for i, id := range ids {
		tokens[i] = strconv.FormatUint(id, 10)
	}

	out := r.Kind.String() + ":" + strings.Join(tokens, ",")
	if r.Properties != 0 {
		out += ":" + r.Properties.String()
	}
	return out
}
