package routing

import "killrelay/pkg/models"

// Side is the party of a killmail that produced an include.
type Side int

const (
	SideNone Side = iota
	SideVictim
	SideAttacker
)

func (s Side) String() string {
	switch s {
	case SideVictim:
		return "victim"
	case SideAttacker:
		return "attacker"
	default:
		return "none"
	}
}

func (s Side) Classification() models.Classification {
	switch s {
	case SideVictim:
		return models.ClassificationVictim
	case SideAttacker:
		return models.ClassificationAttacker
	default:
		return models.ClassificationNeutral
	}
}

type OutcomeKind int

const (
	OutcomeNoMatch OutcomeKind = iota
	OutcomeInclude
	OutcomeExclude
)

// Outcome is the result of matching one rule against one killmail. Side is
// only meaningful for OutcomeInclude.
type Outcome struct {
	Kind OutcomeKind
	Side Side
}

var (
	NoMatch = Outcome{Kind: OutcomeNoMatch}
	Exclude = Outcome{Kind: OutcomeExclude}
)

func Include(side Side) Outcome {
	return Outcome{Kind: OutcomeInclude, Side: side}
}

func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeInclude:
		return "include(" + o.Side.String() + ")"
	case OutcomeExclude:
		return "exclude"
	default:
		return "no_match"
	}
}

// Decision routes one killmail to one delivery target.
type Decision struct {
	TargetID       uint64
	Classification models.Classification
}
