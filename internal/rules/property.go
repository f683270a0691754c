package rules

import (
	"strings"
)

// Property modifies how a rule matches.
type Property uint8

const (
	PropertyExcludeOnly Property = 1 << iota
	PropertyKillsOnly
	PropertyLossesOnly
	PropertyWithNPC
)

var propertyTokens = map[string]Property{
	"exclude":  PropertyExcludeOnly,
	"kill":     PropertyKillsOnly,
	"kills":    PropertyKillsOnly,
	"loss":     PropertyLossesOnly,
	"losses":   PropertyLossesOnly,
	"with_npc": PropertyWithNPC,
}

func (p Property) String() string {
	switch p {
	case PropertyExcludeOnly:
		return "exclude"
	case PropertyKillsOnly:
		return "kills"
	case PropertyLossesOnly:
		return "losses"
	case PropertyWithNPC:
		return "with_npc"
	default:
		return "unknown"
	}
}

func parseProperty(token string) (Property, bool) {
	p, ok := propertyTokens[strings.ToLower(token)]
	return p, ok
}

// PropertySet is a set of properties. The zero value is empty.
type PropertySet uint8

func NewPropertySet(props ...Property) PropertySet {
	var s PropertySet
	for _, p := range props {
		s = s.With(p)
	}
	return s
}

func (s PropertySet) Has(p Property) bool {
	return uint8(s)&uint8(p) != 0
}

func (s PropertySet) With(p Property) PropertySet {
	return PropertySet(uint8(s) | uint8(p))
}

func (s PropertySet) String() string {
	var names []string
	for _, p := range []Property{PropertyExcludeOnly, PropertyKillsOnly, PropertyLossesOnly, PropertyWithNPC} {
		if s.Has(p) {
			names = append(names, p.String())
		}
	}
	return strings.Join(names, ",")
}
