package models

import "fmt"

// ValidationError names the first field of a message that failed a check.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

type fieldCheck struct {
	field   string
	message string
	invalid bool
}

func firstInvalid(checks []fieldCheck) error {
	for _, c := range checks {
		if c.invalid {
			return &ValidationError{Field: c.field, Message: c.message}
		}
	}
	return nil
}

// ValidateMessageEnvelope checks the fields every producer in the relay sets.
func ValidateMessageEnvelope(msg *MessageEnvelope) error {
	if msg == nil {
		return &ValidationError{Field: "envelope", Message: "message envelope cannot be nil"}
	}
	return firstInvalid([]fieldCheck{
		{"id", "message ID is required", msg.ID == ""},
		{"source", "message source is required", msg.Source == ""},
		{"timestamp", "message timestamp is required", msg.Timestamp.IsZero()},
		{"payload", "message payload cannot be empty", len(msg.Payload) == 0},
	})
}

// ValidateKillmail checks what routing needs. Participants may be empty: a
// killmail with no attackers only matches location and victim rules.
func ValidateKillmail(km *Killmail) error {
	if km == nil {
		return &ValidationError{Field: "killmail", Message: "killmail cannot be nil"}
	}
	return firstInvalid([]fieldCheck{
		{"killmail_id", "killmail ID is required", km.KillID == 0},
		{"solar_system_id", "solar system ID is required", km.SystemID == 0},
	})
}
