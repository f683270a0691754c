package management

import (
	"context"

	"killrelay/pkg/models"
)

type Service interface {
	ListFilterSets(ctx context.Context) ([]models.FilterSet, error)
	GetFilterSet(ctx context.Context, id string) (*models.FilterSet, error)
	GetFilterSetByTarget(ctx context.Context, targetID uint64) (*models.FilterSet, error)
	CreateFilterSet(ctx context.Context, req CreateFilterSetRequest) (*models.FilterSet, error)
	UpdateFilterSet(ctx context.Context, id string, req UpdateFilterSetRequest) (*models.FilterSet, error)
	DeleteFilterSet(ctx context.Context, id string) error
	AddFilter(ctx context.Context, id, filter string) (*models.FilterSet, error)
	RemoveFilter(ctx context.Context, id, filter string) (*models.FilterSet, error)
	ValidateFilters(ctx context.Context, filters []string) ValidateFiltersResponse
	GetAuditLogs(ctx context.Context, filterSetID string, limit int) ([]AuditLog, error)
}

// AuditRepository stores the change history of filter sets.
type AuditRepository interface {
	CreateAuditLog(ctx context.Context, log *AuditLog) error
	GetAuditLogs(ctx context.Context, filterSetID string, limit int) ([]AuditLog, error)
}
