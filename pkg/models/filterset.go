package models

import "time"

// FilterSet is an ordered list of rule strings owned by one guild, bound to
// the delivery targets (channels) that receive its matches.
type FilterSet struct {
	ID         string    `json:"id" bson:"_id" yaml:"id"`
	GuildID    uint64    `json:"guild_id" bson:"guild_id" yaml:"guild_id"`
	TargetIDs  []uint64  `json:"target_ids" bson:"target_ids" yaml:"target_ids"`
	Filters    []string  `json:"filters" bson:"filters" yaml:"filters"`
	IncludeNPC bool      `json:"include_npc" bson:"include_npc" yaml:"include_npc"`
	Version    int64     `json:"version" bson:"version" yaml:"-"`
	// Seq is the store-assigned declaration position.
	Seq        int64     `json:"seq" bson:"seq" yaml:"-"`
	CreatedAt  time.Time `json:"created_at" bson:"created_at" yaml:"-"`
	UpdatedAt  time.Time `json:"updated_at" bson:"updated_at" yaml:"-"`
}

func (fs *FilterSet) HasTarget(targetID uint64) bool {
	for _, t := range fs.TargetIDs {
		if t == targetID {
			return true
		}
	}
	return false
}

func (fs *FilterSet) HasFilter(filter string) bool {
	for _, f := range fs.Filters {
		if f == filter {
			return true
		}
	}
	return false
}

// Classification describes the side of a killmail that triggered delivery.
type Classification string

const (
	ClassificationVictim   Classification = "victim"
	ClassificationAttacker Classification = "attacker"
	ClassificationNeutral  Classification = "neutral"
)

// Delivery is published once per routing decision that survives dedup.
type Delivery struct {
	KillID         uint64         `json:"kill_id"`
	TargetID       uint64         `json:"target_id"`
	Classification Classification `json:"classification"`
	Killmail       *Killmail      `json:"killmail"`
}
