package management

import (
	"time"

	"killrelay/internal/rules"
)

type CreateFilterSetRequest struct {
	ID         string   `json:"id"`
	GuildID    uint64   `json:"guild_id"`
	TargetIDs  []uint64 `json:"target_ids" binding:"required,min=1"`
	Filters    []string `json:"filters"`
	IncludeNPC bool     `json:"include_npc"`
}

// UpdateFilterSetRequest replaces only the fields that are present.
type UpdateFilterSetRequest struct {
	GuildID    *uint64   `json:"guild_id"`
	TargetIDs  *[]uint64 `json:"target_ids"`
	Filters    *[]string `json:"filters"`
	IncludeNPC *bool     `json:"include_npc"`
}

type FilterRequest struct {
	Filter string `json:"filter" binding:"required"`
}

type ValidateFiltersRequest struct {
	Filters []string `json:"filters" binding:"required"`
}

type ValidateFiltersResponse struct {
	Valid bool             `json:"valid"`
	Rules []ValidatedRule  `json:"rules"`
}

// ValidatedRule reports how one rule string compiles. Canonical is empty when
// the rule does not compile.
type ValidatedRule struct {
	Source    string          `json:"source"`
	Canonical string          `json:"canonical,omitempty"`
	Kind      string          `json:"kind,omitempty"`
	Warnings  []rules.Warning `json:"warnings,omitempty"`
	Error     string          `json:"error,omitempty"`
}

type AuditLog struct {
	ID          string                 `json:"id"`
	FilterSetID string                 `json:"filter_set_id"`
	Action      string                 `json:"action"`
	OldValue    map[string]interface{} `json:"old_value,omitempty"`
	NewValue    map[string]interface{} `json:"new_value,omitempty"`
	ChangedBy   string                 `json:"changed_by"`
	IPAddress   string                 `json:"ip_address,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
}
