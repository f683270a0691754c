package ingest

import (
	"encoding/json"

	"killrelay/pkg/models"
)

// Response is one long-poll answer from the feed. Package is nil when the
// poll timed out without a new killmail.
type Response struct {
	Package *Package `json:"package"`
}

// Package announces one killmail. The full killmail is either inline or must
// be fetched from Zkb.Href.
type Package struct {
	KillID   uint64          `json:"killID"`
	Killmail json.RawMessage `json:"killmail,omitempty"`
	Zkb      Zkb             `json:"zkb"`
}

type Zkb struct {
	Hash       string  `json:"hash"`
	Href       string  `json:"href"`
	TotalValue float64 `json:"totalValue"`
	NPC        bool    `json:"npc"`
	Solo       bool    `json:"solo"`
}

// inlineKillmail decodes the embedded killmail, if any.
func (p *Package) inlineKillmail() (*models.Killmail, bool, error) {
	if len(p.Killmail) == 0 || string(p.Killmail) == "null" {
		return nil, false, nil
	}
	var km models.Killmail
	if err := json.Unmarshal(p.Killmail, &km); err != nil {
		return nil, true, err
	}
	return &km, true, nil
}
