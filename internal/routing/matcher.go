package routing

import (
	"killrelay/internal/rules"
	"killrelay/pkg/models"
)

// RegionResolver maps a solar system to its region.
type RegionResolver interface {
	RegionOf(systemID uint64) (uint64, bool)
}

type Matcher struct {
	regions RegionResolver
}

func NewMatcher(regions RegionResolver) *Matcher {
	return &Matcher{regions: regions}
}

// Match evaluates a single rule. includeNPC comes from the owning filter set
// and only affects character, corporation and alliance rules.
func (m *Matcher) Match(rule rules.Rule, km *models.Killmail, includeNPC bool) Outcome {
	withNPC := includeNPC || !rule.Kind.IsParticipant()

	switch rule.Kind {
	case rules.KindSystem:
		return matchLocation(rule, km.SystemID)
	case rules.KindRegion:
		if m.regions == nil {
			return NoMatch
		}
		region, ok := m.regions.RegionOf(km.SystemID)
		if !ok {
			return NoMatch
		}
		return matchLocation(rule, region)
	case rules.KindCharacter:
		return matchParticipants(rule, km, withNPC, characterID)
	case rules.KindCorporation:
		return matchParticipants(rule, km, withNPC, corporationID)
	case rules.KindAlliance:
		return matchParticipants(rule, km, withNPC, allianceID)
	case rules.KindShip:
		out := matchParticipants(rule, km, withNPC, shipTypeID)
		if out.Kind == OutcomeInclude {
			return Include(SideNone)
		}
		return out
	}
	return NoMatch
}

func matchLocation(rule rules.Rule, id uint64) Outcome {
	if !rule.IDs.Contains(id) {
		return NoMatch
	}
	if rule.Properties.Has(rules.PropertyExcludeOnly) {
		return Exclude
	}
	return Include(SideNone)
}

type idField func(models.Participant) *uint64

func characterID(p models.Participant) *uint64   { return p.CharacterID }
func corporationID(p models.Participant) *uint64 { return p.CorporationID }
func allianceID(p models.Participant) *uint64    { return p.AllianceID }
func shipTypeID(p models.Participant) *uint64    { return p.ShipTypeID }

// matchParticipants checks the victim first, then attackers. kills
// suppresses the victim side and losses the attacker side, so a rule with
// both never matches.
func matchParticipants(rule rules.Rule, km *models.Killmail, includeNPC bool, field idField) Outcome {
	candidate := func(p models.Participant) *uint64 {
		if !includeNPC && p.IsNPC() {
			return nil
		}
		return field(p)
	}

	exclude := rule.Properties.Has(rules.PropertyExcludeOnly)

	if !rule.Properties.Has(rules.PropertyKillsOnly) && rule.IDs.ContainsPtr(candidate(km.Victim)) {
		if exclude {
			return Exclude
		}
		return Include(SideVictim)
	}

	if !rule.Properties.Has(rules.PropertyLossesOnly) {
		for _, attacker := range km.Attackers {
			if rule.IDs.ContainsPtr(candidate(attacker)) {
				if exclude {
					return Exclude
				}
				return Include(SideAttacker)
			}
		}
	}

	return NoMatch
}
