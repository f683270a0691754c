package management

import (
	"context"
	"encoding/json"
	"errors"

	"killrelay/internal/constants"
	"killrelay/internal/filterstore"
	"killrelay/internal/logger"
	pkgerrors "killrelay/pkg/errors"
	"killrelay/pkg/middleware"
	"killrelay/pkg/models"
)

const (
	auditActionAddFilter    = "add_filter"
	auditActionRemoveFilter = "remove_filter"
)

type service struct {
	store  filterstore.Store
	audit  AuditRepository
	events *ConfigEventProducer
	logger logger.Logger
}

type ServiceOption func(*service)

func WithAudit(repo AuditRepository) ServiceOption {
	return func(s *service) {
		s.audit = repo
	}
}

func WithConfigEvents(producer *ConfigEventProducer) ServiceOption {
	return func(s *service) {
		s.events = producer
	}
}

func WithLogger(log logger.Logger) ServiceOption {
	return func(s *service) {
		s.logger = log
	}
}

func NewService(store filterstore.Store, opts ...ServiceOption) Service {
	s := &service{
		store:  store,
		logger: logger.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) ListFilterSets(ctx context.Context) ([]models.FilterSet, error) {
	sets, err := s.store.List(ctx)
	if err != nil {
		return nil, storeError(err)
	}
	return sets, nil
}

func (s *service) GetFilterSet(ctx context.Context, id string) (*models.FilterSet, error) {
	set, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	return set, nil
}

func (s *service) GetFilterSetByTarget(ctx context.Context, targetID uint64) (*models.FilterSet, error) {
	set, err := s.store.GetByTarget(ctx, targetID)
	if err != nil {
		return nil, storeError(err)
	}
	return set, nil
}

func (s *service) CreateFilterSet(ctx context.Context, req CreateFilterSetRequest) (*models.FilterSet, error) {
	if err := validateFilters(req.Filters); err != nil {
		return nil, err
	}

	set := &models.FilterSet{
		ID:         req.ID,
		GuildID:    req.GuildID,
		TargetIDs:  req.TargetIDs,
		Filters:    req.Filters,
		IncludeNPC: req.IncludeNPC,
	}
	if err := s.store.Create(ctx, set); err != nil {
		return nil, storeError(err)
	}

	s.recordChange(ctx, models.ActionCreate, set.ID, nil, set)
	s.publishConfigEvent(ctx, models.ActionCreate, set.ID)
	return set, nil
}

func (s *service) UpdateFilterSet(ctx context.Context, id string, req UpdateFilterSetRequest) (*models.FilterSet, error) {
	if req.Filters != nil {
		if err := validateFilters(*req.Filters); err != nil {
			return nil, err
		}
	}

	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}
	oldValue := toMap(existing)

	updated := *existing
	applyUpdate(&updated, req)
	if err := s.store.Update(ctx, &updated); err != nil {
		return nil, storeError(err)
	}

	s.recordChange(ctx, models.ActionUpdate, id, oldValue, &updated)
	s.publishConfigEvent(ctx, models.ActionUpdate, id)
	return &updated, nil
}

func (s *service) DeleteFilterSet(ctx context.Context, id string) error {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return storeError(err)
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return storeError(err)
	}

	s.recordChange(ctx, models.ActionDelete, id, toMap(existing), nil)
	s.publishConfigEvent(ctx, models.ActionDelete, id)
	return nil
}

func (s *service) AddFilter(ctx context.Context, id, filter string) (*models.FilterSet, error) {
	if err := ValidateFilter(filter); err != nil {
		return nil, err
	}
	return s.mutateFilters(ctx, auditActionAddFilter, id, filter, s.store.AddFilter)
}

func (s *service) RemoveFilter(ctx context.Context, id, filter string) (*models.FilterSet, error) {
	return s.mutateFilters(ctx, auditActionRemoveFilter, id, filter, s.store.RemoveFilter)
}

// mutateFilters records and announces the change only when the store bumped
// the version.
func (s *service) mutateFilters(
	ctx context.Context,
	action, id, filter string,
	fn func(ctx context.Context, id, filter string) (*models.FilterSet, error),
) (*models.FilterSet, error) {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, storeError(err)
	}

	set, err := fn(ctx, id, filter)
	if err != nil {
		return nil, storeError(err)
	}
	if set.Version == existing.Version {
		return set, nil
	}

	s.recordChange(ctx, action, id, toMap(existing), set)
	s.publishConfigEvent(ctx, models.ActionUpdate, id)
	return set, nil
}

func (s *service) ValidateFilters(ctx context.Context, filters []string) ValidateFiltersResponse {
	resp := ValidateFiltersResponse{
		Valid: true,
		Rules: make([]ValidatedRule, 0, len(filters)),
	}
	for _, f := range filters {
		rule := describeFilter(f)
		if rule.Error != "" {
			resp.Valid = false
		}
		resp.Rules = append(resp.Rules, rule)
	}
	return resp
}

func (s *service) GetAuditLogs(ctx context.Context, filterSetID string, limit int) ([]AuditLog, error) {
	if s.audit == nil {
		return nil, pkgerrors.ErrServiceUnavailable.WithDetail("message", "audit logging not enabled")
	}
	if limit <= 0 || limit > constants.MaxLimit {
		limit = constants.DefaultLimit
	}

	logs, err := s.audit.GetAuditLogs(ctx, filterSetID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.ErrInternal)
	}
	return logs, nil
}

func (s *service) recordChange(ctx context.Context, action, id string, oldValue map[string]interface{}, set *models.FilterSet) {
	if s.audit == nil {
		return
	}

	entry := &AuditLog{
		FilterSetID: id,
		Action:      action,
		OldValue:    oldValue,
		ChangedBy:   getChangedBy(ctx),
		IPAddress:   clientIP(ctx),
	}
	if set != nil {
		entry.NewValue = toMap(set)
	}

	if err := s.audit.CreateAuditLog(ctx, entry); err != nil {
		s.logger.WarnwCtx(ctx, "Failed to write audit log",
			"filter_set_id", id,
			"action", action,
			"error", err,
		)
	}
}

func (s *service) publishConfigEvent(ctx context.Context, action, id string) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishFilterSetEvent(ctx, action, id, getChangedBy(ctx)); err != nil {
		s.logger.WarnwCtx(ctx, "Failed to publish config event",
			"filter_set_id", id,
			"action", action,
			"error", err,
		)
	}
}

func applyUpdate(set *models.FilterSet, req UpdateFilterSetRequest) {
	if req.GuildID != nil {
		set.GuildID = *req.GuildID
	}
	if req.TargetIDs != nil {
		set.TargetIDs = append([]uint64(nil), (*req.TargetIDs)...)
	}
	if req.Filters != nil {
		set.Filters = append([]string{}, (*req.Filters)...)
	}
	if req.IncludeNPC != nil {
		set.IncludeNPC = *req.IncludeNPC
	}
}

// storeError keeps application errors from the store and hides the rest
// behind ErrInternal.
func storeError(err error) error {
	var appErr *pkgerrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return pkgerrors.Wrap(err, pkgerrors.ErrInternal)
}

func toMap(set *models.FilterSet) map[string]interface{} {
	raw, err := json.Marshal(set)
	if err != nil {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func getChangedBy(ctx context.Context) string {
	return middleware.Actor(ctx)
}

type clientIPKey struct{}

func withClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func clientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}
