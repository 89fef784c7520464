/**
 * Catalog Query Service
 *
 * Read-only catalog browsing: filtered, sorted, paginated listings plus
 * per-schema statistics. Results are computed from store snapshots, filtered
 * by the caller's visibility, and cached per workspace.
 */

package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/helixhq/registry/internal/cache"
	"github.com/helixhq/registry/internal/domain"
	"github.com/helixhq/registry/internal/storage"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	listCacheTTL = 30 * time.Second
)

// CatalogQueryService serves the catalog's read path.
type CatalogQueryService struct {
	store  *storage.CatalogStore
	cache  cache.Manager
	logger *slog.Logger
}

func NewCatalogQueryService(store *storage.CatalogStore, cacheManager cache.Manager, logger *slog.Logger) *CatalogQueryService {
	return &CatalogQueryService{
		store:  store,
		cache:  cacheManager,
		logger: logger.With("service", "catalog_query"),
	}
}

// ListFilter narrows a catalog listing. Zero values match everything.
type ListFilter struct {
	Format         domain.Format `json:"format,omitempty"`
	Status         domain.Status `json:"status,omitempty"`
	Tags           []string      `json:"tags,omitempty"`
	Search         string        `json:"search,omitempty"`
	VersionPattern string        `json:"version_pattern,omitempty"`
	IncludeRetired bool          `json:"include_retired,omitempty"`
}

// SortField is the closed set of supported sort keys.
type SortField string

const (
	SortByName      SortField = "name"
	SortByVersion   SortField = "version"
	SortByCreatedAt SortField = "created_at"
	SortByUpdatedAt SortField = "updated_at"
)

// ListRequest is one catalog page request.
type ListRequest struct {
	WorkspaceID uuid.UUID  `json:"workspace_id" validate:"required"`
	Filter      ListFilter `json:"filter"`
	SortBy      SortField  `json:"sort_by,omitempty"`
	Descending  bool       `json:"descending,omitempty"`
	Page        int        `json:"page,omitempty"`
	PageSize    int        `json:"page_size,omitempty"`
}

// ListResult is one page of catalog entries with the totals the caller needs
// to render pagination.
type ListResult struct {
	Items      []*domain.Schema `json:"items"`
	Page       int              `json:"page"`
	PageSize   int              `json:"page_size"`
	TotalItems int              `json:"total_items"`
	TotalPages int              `json:"total_pages"`
}

// List returns one filtered, sorted page of the workspace catalog. Deleted
// and archived schemas are excluded unless the filter opts in.
func (s *CatalogQueryService) List(ctx context.Context, identity Identity, req ListRequest) (*ListResult, error) {
	page, pageSize, err := normalizePage(req.Page, req.PageSize)
	if err != nil {
		return nil, err
	}
	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = SortByName
	}
	switch sortBy {
	case SortByName, SortByVersion, SortByCreatedAt, SortByUpdatedAt:
	default:
		return nil, domain.NewDomainError("INVALID_SORT_FIELD", domain.CategoryInvalidArgument,
			fmt.Sprintf("Unknown sort field %q", sortBy))
	}

	key := listCacheKey(identity, req, page, pageSize, sortBy)
	if cached, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var result ListResult
		if json.Unmarshal(cached, &result) == nil {
			return &result, nil
		}
	}

	schemas, err := s.workspaceSchemas(ctx, req.WorkspaceID)
	if err != nil {
		return nil, err
	}

	matched := make([]*domain.Schema, 0, len(schemas))
	for _, schema := range schemas {
		if !domain.CanAccess(schema, identity.UserID, identity.WorkspaceMember) {
			continue
		}
		if matches(schema, req.Filter) {
			matched = append(matched, schema)
		}
	}

	sortSchemas(matched, sortBy, req.Descending)

	totalItems := len(matched)
	totalPages := (totalItems + pageSize - 1) / pageSize
	start := (page - 1) * pageSize
	if start > totalItems {
		start = totalItems
	}
	end := start + pageSize
	if end > totalItems {
		end = totalItems
	}

	result := &ListResult{
		Items:      matched[start:end],
		Page:       page,
		PageSize:   pageSize,
		TotalItems: totalItems,
		TotalPages: totalPages,
	}
	if encoded, err := json.Marshal(result); err == nil {
		if err := s.cache.Set(ctx, key, encoded, listCacheTTL); err != nil {
			s.logger.DebugContext(ctx, "Failed to cache catalog page", "error", err)
		}
	}
	return result, nil
}

// listCacheKey scopes a cached page to the workspace, the requesting identity
// and every query parameter. Identity is part of the key because visibility
// filtering differs per caller. Mutations wipe the workspace prefix.
func listCacheKey(identity Identity, req ListRequest, page, pageSize int, sortBy SortField) string {
	params, _ := json.Marshal(struct {
		Filter     ListFilter `json:"filter"`
		SortBy     SortField  `json:"sort_by"`
		Descending bool       `json:"descending"`
		Page       int        `json:"page"`
		PageSize   int        `json:"page_size"`
	}{req.Filter, sortBy, req.Descending, page, pageSize})
	digest := sha256.Sum256(params)
	return fmt.Sprintf("catalog:%s:list:%s:%t:%s",
		req.WorkspaceID, identity.UserID, identity.WorkspaceMember, hex.EncodeToString(digest[:8]))
}

// normalizePage applies defaults and bounds. Page defaults to 1, page size
// to 20 with a hard cap of 100; explicit out-of-range values are rejected
// rather than clamped.
func normalizePage(page, pageSize int) (int, int, error) {
	if page == 0 {
		page = 1
	}
	if page < 1 {
		return 0, 0, domain.NewDomainError("INVALID_PAGE", domain.CategoryInvalidArgument, "Page must be at least 1")
	}
	if pageSize == 0 {
		pageSize = defaultPageSize
	}
	if pageSize < 1 || pageSize > maxPageSize {
		return 0, 0, domain.NewDomainError("INVALID_PAGE_SIZE", domain.CategoryInvalidArgument,
			fmt.Sprintf("Page size must be between 1 and %d", maxPageSize))
	}
	return page, pageSize, nil
}

func (s *CatalogQueryService) workspaceSchemas(ctx context.Context, workspaceID uuid.UUID) ([]*domain.Schema, error) {
	all, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	schemas := make([]*domain.Schema, 0, len(all))
	for _, schema := range all {
		if schema.WorkspaceID == workspaceID {
			schemas = append(schemas, schema)
		}
	}
	return schemas, nil
}

func matches(schema *domain.Schema, filter ListFilter) bool {
	if !filter.IncludeRetired && (schema.Deleted || schema.Status == domain.StatusArchived) {
		return false
	}
	if filter.Format != "" && schema.Format != filter.Format {
		return false
	}
	if filter.Status != "" && schema.Status != filter.Status {
		return false
	}
	for _, tag := range filter.Tags {
		if !schema.HasTag(tag) {
			return false
		}
	}
	if filter.Search != "" {
		needle := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(schema.Name), needle) &&
			!strings.Contains(strings.ToLower(schema.Title), needle) &&
			!strings.Contains(strings.ToLower(schema.Description), needle) {
			return false
		}
	}
	if filter.VersionPattern != "" && !versionMatches(schema.CurrentLabel, filter.VersionPattern) {
		return false
	}
	return true
}

// versionMatches supports exact labels and prefix patterns like "2." or
// "2.1.".
func versionMatches(label, pattern string) bool {
	if label == "" {
		return false
	}
	if strings.HasSuffix(pattern, ".") {
		return strings.HasPrefix(label, pattern) || label == strings.TrimSuffix(pattern, ".")
	}
	return label == pattern
}

func sortSchemas(schemas []*domain.Schema, by SortField, descending bool) {
	less := func(a, b *domain.Schema) bool { return a.Name < b.Name }
	switch by {
	case SortByVersion:
		less = func(a, b *domain.Schema) bool {
			if c := domain.CompareVersions(a.CurrentLabel, b.CurrentLabel); c != 0 {
				return c < 0
			}
			return a.Name < b.Name
		}
	case SortByCreatedAt:
		less = func(a, b *domain.Schema) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case SortByUpdatedAt:
		less = func(a, b *domain.Schema) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	}
	sort.SliceStable(schemas, func(i, j int) bool {
		if descending {
			return less(schemas[j], schemas[i])
		}
		return less(schemas[i], schemas[j])
	})
}

// SchemaStats summarizes one schema for catalog dashboards.
type SchemaStats struct {
	SchemaID        uuid.UUID `json:"schema_id"`
	VersionCount    int       `json:"version_count"`
	PublishedCount  int       `json:"published_count"`
	ConsumerCount   int       `json:"consumer_count"`
	ArtifactCount   int       `json:"artifact_count"`
	OpenIssueCount  int       `json:"open_issue_count"`
	ViewCount       int64     `json:"view_count"`
	DownloadCount   int64     `json:"download_count"`
	CurrentVersion  string    `json:"current_version,omitempty"`
	LastPublishedAt time.Time `json:"last_published_at,omitempty"`
}

// Stats computes summary statistics for one accessible schema, cached
// briefly per workspace.
func (s *CatalogQueryService) Stats(ctx context.Context, identity Identity, schemaID uuid.UUID) (*SchemaStats, error) {
	schema, err := s.store.Get(ctx, schemaID)
	if err != nil {
		return nil, err
	}
	if err := requireAccess(schema, identity); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("catalog:%s:stats:%s:%d", schema.WorkspaceID, schema.ID, schema.Revision)
	if cached, ok, err := s.cache.Get(ctx, key); err == nil && ok {
		var stats SchemaStats
		if json.Unmarshal(cached, &stats) == nil {
			return &stats, nil
		}
	}

	stats := &SchemaStats{
		SchemaID:       schema.ID,
		VersionCount:   len(schema.Versions),
		ConsumerCount:  len(schema.ActiveConsumers()),
		ArtifactCount:  len(schema.Artifacts),
		ViewCount:      schema.Views(),
		DownloadCount:  schema.Downloads(),
		CurrentVersion: schema.CurrentLabel,
	}
	for _, version := range schema.Versions {
		if version.Status == domain.VersionPublished || version.Status == domain.VersionDeprecated {
			stats.PublishedCount++
			if version.PublishedAt != nil && version.PublishedAt.After(stats.LastPublishedAt) {
				stats.LastPublishedAt = *version.PublishedAt
			}
		}
		for _, issue := range version.Issues {
			if !issue.Resolved {
				stats.OpenIssueCount++
			}
		}
	}

	if encoded, err := json.Marshal(stats); err == nil {
		if err := s.cache.Set(ctx, key, encoded, listCacheTTL); err != nil {
			s.logger.DebugContext(ctx, "Failed to cache schema stats", "error", err)
		}
	}
	return stats, nil
}
