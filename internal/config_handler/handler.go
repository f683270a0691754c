package config_handler

import (
	"context"

	"killrelay/internal/logger"
	"killrelay/pkg/models"
)

type ConfigReloader interface {
	ReloadFilterSets(ctx context.Context, skipJitter ...bool) error
}

type Handler struct {
	expectedEventType   string
	expectedServiceType string
	reloader            ConfigReloader
	logger              logger.Logger
}

func NewHandler(expectedEventType, expectedServiceType string, log logger.Logger) *Handler {
	return &Handler{
		expectedEventType:   expectedEventType,
		expectedServiceType: expectedServiceType,
		logger:              log,
	}
}

func NewHandlerWithReloader(expectedEventType, expectedServiceType string, reloader ConfigReloader, log logger.Logger) *Handler {
	return NewHandler(expectedEventType, expectedServiceType, log).WithReloader(reloader)
}

func (h *Handler) WithReloader(reloader ConfigReloader) *Handler {
	h.reloader = reloader
	return h
}

// HandleConfigUpdateEvent reloads when the envelope carries an event meant for
// this service. Malformed or foreign events are dropped without error so the
// consumer does not retry them.
func (h *Handler) HandleConfigUpdateEvent(ctx context.Context, envelope models.MessageEnvelope) error {
	var event models.ConfigUpdateEvent
	if err := envelope.DecodePayload(&event); err != nil {
		h.logger.Warnw("Failed to decode config event", "error", err, "id", envelope.ID)
		return nil
	}

	if event.EventType == "" {
		h.logger.Warnw("Config event missing event_type", "id", envelope.ID)
		return nil
	}
	if event.EventType != h.expectedEventType {
		return nil
	}

	if event.ServiceType == "" {
		h.logger.Warnw("Config event missing service_type", "id", envelope.ID)
		return nil
	}
	if event.ServiceType != h.expectedServiceType {
		return nil
	}

	h.logger.InfowCtx(ctx, "Received config update event",
		"event_type", event.EventType,
		"action", event.Action,
		"filter_set_id", event.FilterSetID,
	)

	if h.reloader == nil {
		return nil
	}

	if err := h.reloader.ReloadFilterSets(ctx); err != nil {
		h.logger.ErrorwCtx(ctx, "Failed to reload filter sets after config update", "error", err)
		return err
	}
	h.logger.InfowCtx(ctx, "Filter sets reloaded after config update", "action", event.Action)
	return nil
}
