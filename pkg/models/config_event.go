package models

import "time"

type ConfigUpdateEvent struct {
	EventType   string                 `json:"event_type"`   // "filter_set_updated"
	ServiceType string                 `json:"service_type"` // "routing"
	FilterSetID string                 `json:"filter_set_id,omitempty"`
	Action      string                 `json:"action"` // "create", "update", "delete", "reload"
	Timestamp   time.Time              `json:"timestamp"`
	ChangedBy   string                 `json:"changed_by,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

const (
	EventTypeFilterSetUpdated = "filter_set_updated"
)

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionReload = "reload"
)

const (
	ServiceTypeRouting = "routing"
)
