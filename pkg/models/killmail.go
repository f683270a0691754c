package models

import "time"

// Killmail is the subset of an ESI killmail the relay routes on.
type Killmail struct {
	KillID    uint64        `json:"killmail_id"`
	Hash      string        `json:"hash,omitempty"`
	Time      time.Time     `json:"killmail_time"`
	SystemID  uint64        `json:"solar_system_id"`
	Victim    Participant   `json:"victim"`
	Attackers []Participant `json:"attackers"`
	URL       string        `json:"url,omitempty"`
}

// Participant is a victim or attacker. NPCs carry no character id.
type Participant struct {
	CharacterID   *uint64 `json:"character_id,omitempty"`
	CorporationID *uint64 `json:"corporation_id,omitempty"`
	AllianceID    *uint64 `json:"alliance_id,omitempty"`
	ShipTypeID    *uint64 `json:"ship_type_id,omitempty"`
	FinalBlow     bool    `json:"final_blow,omitempty"`
}

func (p Participant) IsNPC() bool {
	return p.CharacterID == nil
}

// ID returns a pointer to v, for building participants.
func ID(v uint64) *uint64 {
	return &v
}
