package rules

import (
	"fmt"
	"strings"
)

// Kind is the entity dimension a rule filters on.
type Kind int

const (
	KindRegion Kind = iota
	KindSystem
	KindShip
	KindCharacter
	KindCorporation
	KindAlliance
)

var kindNames = map[Kind]string{
	KindRegion:      "region",
	KindSystem:      "system",
	KindShip:        "ship",
	KindCharacter:   "character",
	KindCorporation: "corporation",
	KindAlliance:    "alliance",
}

var kindTokens = map[string]Kind{
	"region":      KindRegion,
	"system":      KindSystem,
	"ship":        KindShip,
	"character":   KindCharacter,
	"corp":        KindCorporation,
	"corporation": KindCorporation,
	"alliance":    KindAlliance,
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsParticipant reports whether the kind is matched against victim and
// attacker identities.
func (k Kind) IsParticipant() bool {
	return k == KindCharacter || k == KindCorporation || k == KindAlliance
}

// ParseKind resolves a kind token. Matching is case-insensitive and
// "corp" is an alias for "corporation".
func ParseKind(token string) (Kind, error) {
	kind, ok := kindTokens[strings.ToLower(strings.TrimSpace(token))]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, token)
	}
	return kind, nil
}
