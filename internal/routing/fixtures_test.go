package routing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"killrelay/internal/rules"
	"killrelay/internal/topology"
	"killrelay/pkg/models"
)

var testTopology = topology.NewTable(
	topology.System{RegionID: 10000002, ConstellationID: 20000020, SystemID: 30000142, Name: "Jita"},
	topology.System{RegionID: 10000002, ConstellationID: 20000020, SystemID: 30000144, Name: "Perimeter"},
	topology.System{RegionID: 10000043, ConstellationID: 20000322, SystemID: 30002187, Name: "Amarr"},
)

func mustParse(t *testing.T, src string) rules.Rule {
	t.Helper()
	rule, _, err := rules.Parse(src)
	require.NoError(t, err)
	return rule
}

func pilot(character, corp, alliance, ship uint64) models.Participant {
	p := models.Participant{}
	if character != 0 {
		p.CharacterID = models.ID(character)
	}
	if corp != 0 {
		p.CorporationID = models.ID(corp)
	}
	if alliance != 0 {
		p.AllianceID = models.ID(alliance)
	}
	if ship != 0 {
		p.ShipTypeID = models.ID(ship)
	}
	return p
}

func npc(corp, ship uint64) models.Participant {
	return pilot(0, corp, 0, ship)
}

func killmail(system uint64, victim models.Participant, attackers ...models.Participant) *models.Killmail {
	return &models.Killmail{
		KillID:    1,
		SystemID:  system,
		Victim:    victim,
		Attackers: attackers,
	}
}
