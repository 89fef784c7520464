package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixhq/registry/internal/cache"
	"github.com/helixhq/registry/internal/domain"
	"github.com/helixhq/registry/internal/storage"
)

type queryFixture struct {
	store       *storage.CatalogStore
	service     *CatalogQueryService
	workspaceID uuid.UUID
	identity    Identity
}

func newQueryFixture(t *testing.T) *queryFixture {
	t.Helper()
	store := storage.NewCatalogStore()
	cacheManager := cache.NewMemoryCache(time.Minute)
	t.Cleanup(func() { _ = cacheManager.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return &queryFixture{
		store:       store,
		service:     NewCatalogQueryService(store, cacheManager, logger),
		workspaceID: uuid.New(),
		identity:    Identity{UserID: uuid.New(), WorkspaceMember: true},
	}
}

func (f *queryFixture) seed(t *testing.T, name, slug string, format domain.Format, mutate func(*domain.Schema) error) *domain.Schema {
	t.Helper()
	s, err := domain.NewSchema(f.workspaceID, name, slug, "", "", format, f.identity.UserID)
	require.NoError(t, err)
	require.NoError(t, f.store.Create(context.Background(), s))
	if mutate == nil {
		return s
	}
	updated, err := f.store.Mutate(context.Background(), s.ID, storage.SkipRevisionCheck, mutate)
	require.NoError(t, err)
	return updated
}

func publishSeedVersion(label string) func(*domain.Schema) error {
	return func(next *domain.Schema) error {
		v, err := next.AddVersion(label, "", "content-"+label, nil, next.CreatedBy)
		if err != nil {
			return err
		}
		v.SetValidationResult(nil)
		return next.PublishVersion(v.ID, domain.VerdictUnknown, nil, next.CreatedBy)
	}
}

func TestList_Pagination(t *testing.T) {
	f := newQueryFixture(t)
	ctx := context.Background()
	for i := 1; i <= 12; i++ {
		f.seed(t, fmt.Sprintf("Schema %02d", i), fmt.Sprintf("schema-%02d", i), domain.FormatOpenAPI, nil)
	}

	result, err := f.service.List(ctx, f.identity, ListRequest{
		WorkspaceID: f.workspaceID,
		Page:        2,
		PageSize:    5,
	})
	require.NoError(t, err)
	assert.Len(t, result.Items, 5)
	assert.Equal(t, 2, result.Page)
	assert.Equal(t, 12, result.TotalItems)
	assert.Equal(t, 3, result.TotalPages)
	assert.Equal(t, "schema-06", result.Items[0].Slug, "default sort is by name ascending")

	// The page past the end is empty but well-formed.
	result, err = f.service.List(ctx, f.identity, ListRequest{
		WorkspaceID: f.workspaceID,
		Page:        4,
		PageSize:    5,
	})
	require.NoError(t, err)
	assert.Empty(t, result.Items)
	assert.Equal(t, 12, result.TotalItems)
}

func TestList_PageDefaults(t *testing.T) {
	f := newQueryFixture(t)
	f.seed(t, "Orders", "orders", domain.FormatOpenAPI, nil)

	result, err := f.service.List(context.Background(), f.identity, ListRequest{WorkspaceID: f.workspaceID})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Page)
	assert.Equal(t, defaultPageSize, result.PageSize)
}

func TestList_InvalidRequests(t *testing.T) {
	f := newQueryFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  ListRequest
		code string
	}{
		{name: "negative page", req: ListRequest{WorkspaceID: f.workspaceID, Page: -1}, code: "INVALID_PAGE"},
		{name: "zero-below page size", req: ListRequest{WorkspaceID: f.workspaceID, PageSize: -5}, code: "INVALID_PAGE_SIZE"},
		{name: "oversized page size", req: ListRequest{WorkspaceID: f.workspaceID, PageSize: maxPageSize + 1}, code: "INVALID_PAGE_SIZE"},
		{name: "unknown sort field", req: ListRequest{WorkspaceID: f.workspaceID, SortBy: SortField("popularity")}, code: "INVALID_SORT_FIELD"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.List(ctx, f.identity, tt.req)
			var de domain.DomainError
			require.ErrorAs(t, err, &de)
			assert.Equal(t, tt.code, de.Code)
		})
	}
}

func TestList_Filters(t *testing.T) {
	f := newQueryFixture(t)
	ctx := context.Background()

	f.seed(t, "Orders API", "orders", domain.FormatOpenAPI, func(next *domain.Schema) error {
		next.Tags = []string{"checkout", "core"}
		next.Description = "Order placement and tracking"
		return nil
	})
	f.seed(t, "Billing Events", "billing-events", domain.FormatAsyncAPI, func(next *domain.Schema) error {
		next.Tags = []string{"billing"}
		return nil
	})
	f.seed(t, "Payments API", "payments", domain.FormatOpenAPI, publishSeedVersion("2.1.0"))
	archived := f.seed(t, "Legacy API", "legacy", domain.FormatOpenAPI, nil)
	_, err := f.store.Mutate(ctx, archived.ID, storage.SkipRevisionCheck, func(next *domain.Schema) error {
		return next.Archive(next.CreatedBy)
	})
	require.NoError(t, err)

	t.Run("format", func(t *testing.T) {
		result, err := f.service.List(ctx, f.identity, ListRequest{
			WorkspaceID: f.workspaceID,
			Filter:      ListFilter{Format: domain.FormatAsyncAPI},
		})
		require.NoError(t, err)
		require.Len(t, result.Items, 1)
		assert.Equal(t, "billing-events", result.Items[0].Slug)
	})

	t.Run("tags require every entry", func(t *testing.T) {
		result, err := f.service.List(ctx, f.identity, ListRequest{
			WorkspaceID: f.workspaceID,
			Filter:      ListFilter{Tags: []string{"checkout", "core"}},
		})
		require.NoError(t, err)
		require.Len(t, result.Items, 1)
		assert.Equal(t, "orders", result.Items[0].Slug)

		result, err = f.service.List(ctx, f.identity, ListRequest{
			WorkspaceID: f.workspaceID,
			Filter:      ListFilter{Tags: []string{"checkout", "billing"}},
		})
		require.NoError(t, err)
		assert.Empty(t, result.Items)
	})

	t.Run("search scans name and description", func(t *testing.T) {
		result, err := f.service.List(ctx, f.identity, ListRequest{
			WorkspaceID: f.workspaceID,
			Filter:      ListFilter{Search: "tracking"},
		})
		require.NoError(t, err)
		require.Len(t, result.Items, 1)
		assert.Equal(t, "orders", result.Items[0].Slug)
	})

	t.Run("version pattern", func(t *testing.T) {
		result, err := f.service.List(ctx, f.identity, ListRequest{
			WorkspaceID: f.workspaceID,
			Filter:      ListFilter{VersionPattern: "2."},
		})
		require.NoError(t, err)
		require.Len(t, result.Items, 1)
		assert.Equal(t, "payments", result.Items[0].Slug)

		result, err = f.service.List(ctx, f.identity, ListRequest{
			WorkspaceID: f.workspaceID,
			Filter:      ListFilter{VersionPattern: "2.1.0"},
		})
		require.NoError(t, err)
		assert.Len(t, result.Items, 1)
	})

	t.Run("retired excluded by default", func(t *testing.T) {
		result, err := f.service.List(ctx, f.identity, ListRequest{WorkspaceID: f.workspaceID})
		require.NoError(t, err)
		for _, item := range result.Items {
			assert.NotEqual(t, "legacy", item.Slug)
		}

		result, err = f.service.List(ctx, f.identity, ListRequest{
			WorkspaceID: f.workspaceID,
			Filter:      ListFilter{IncludeRetired: true},
		})
		require.NoError(t, err)
		assert.Len(t, result.Items, 4)
	})
}

func TestList_VisibilityFiltering(t *testing.T) {
	f := newQueryFixture(t)
	ctx := context.Background()

	f.seed(t, "Public API", "public-api", domain.FormatOpenAPI, func(next *domain.Schema) error {
		next.Visibility = domain.VisibilityPublic
		return nil
	})
	f.seed(t, "Internal API", "internal-api", domain.FormatOpenAPI, nil)
	f.seed(t, "Private API", "private-api", domain.FormatOpenAPI, func(next *domain.Schema) error {
		next.Visibility = domain.VisibilityPrivate
		return nil
	})

	outsider := Identity{UserID: uuid.New(), WorkspaceMember: false}
	result, err := f.service.List(ctx, outsider, ListRequest{WorkspaceID: f.workspaceID})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "public-api", result.Items[0].Slug)

	// The creator sees their own private schema; other members do not.
	result, err = f.service.List(ctx, f.identity, ListRequest{WorkspaceID: f.workspaceID})
	require.NoError(t, err)
	assert.Len(t, result.Items, 3)

	member := Identity{UserID: uuid.New(), WorkspaceMember: true}
	result, err = f.service.List(ctx, member, ListRequest{WorkspaceID: f.workspaceID})
	require.NoError(t, err)
	assert.Len(t, result.Items, 2)
}

func TestList_Sorting(t *testing.T) {
	f := newQueryFixture(t)
	ctx := context.Background()

	f.seed(t, "Bravo", "bravo", domain.FormatOpenAPI, publishSeedVersion("1.2.0"))
	f.seed(t, "Alpha", "alpha", domain.FormatOpenAPI, publishSeedVersion("10.0.0"))
	f.seed(t, "Charlie", "charlie", domain.FormatOpenAPI, publishSeedVersion("2.0.0"))

	t.Run("by name descending", func(t *testing.T) {
		result, err := f.service.List(ctx, f.identity, ListRequest{
			WorkspaceID: f.workspaceID,
			SortBy:      SortByName,
			Descending:  true,
		})
		require.NoError(t, err)
		require.Len(t, result.Items, 3)
		assert.Equal(t, "Charlie", result.Items[0].Name)
	})

	t.Run("by version compares numerically", func(t *testing.T) {
		result, err := f.service.List(ctx, f.identity, ListRequest{
			WorkspaceID: f.workspaceID,
			SortBy:      SortByVersion,
		})
		require.NoError(t, err)
		require.Len(t, result.Items, 3)
		assert.Equal(t, "1.2.0", result.Items[0].CurrentLabel)
		assert.Equal(t, "2.0.0", result.Items[1].CurrentLabel)
		assert.Equal(t, "10.0.0", result.Items[2].CurrentLabel, "10.x sorts after 2.x")
	})
}

func TestList_CachedPages(t *testing.T) {
	f := newQueryFixture(t)
	ctx := context.Background()
	f.seed(t, "Orders", "orders", domain.FormatOpenAPI, nil)

	req := ListRequest{WorkspaceID: f.workspaceID}
	first, err := f.service.List(ctx, f.identity, req)
	require.NoError(t, err)
	require.Equal(t, 1, first.TotalItems)

	// Seeding through the store bypasses cache invalidation, so the same
	// request is served from the cached page.
	f.seed(t, "Billing", "billing", domain.FormatOpenAPI, nil)
	cached, err := f.service.List(ctx, f.identity, req)
	require.NoError(t, err)
	assert.Equal(t, 1, cached.TotalItems)

	// A different identity keys its own entry and sees the fresh catalog.
	member := Identity{UserID: uuid.New(), WorkspaceMember: true}
	fresh, err := f.service.List(ctx, member, req)
	require.NoError(t, err)
	assert.Equal(t, 2, fresh.TotalItems)

	// Wiping the workspace prefix, as every schema mutation does, refreshes
	// the original caller's page.
	require.NoError(t, f.service.cache.DeleteByPattern(ctx, "catalog:"+f.workspaceID.String()+":*"))
	refreshed, err := f.service.List(ctx, f.identity, req)
	require.NoError(t, err)
	assert.Equal(t, 2, refreshed.TotalItems)
}

func TestStats(t *testing.T) {
	f := newQueryFixture(t)
	ctx := context.Background()

	schema := f.seed(t, "Orders", "orders", domain.FormatOpenAPI, func(next *domain.Schema) error {
		v1, err := next.AddVersion("1.0.0", "", "content-1", nil, next.CreatedBy)
		if err != nil {
			return err
		}
		v1.SetValidationResult(nil)
		if err := next.PublishVersion(v1.ID, domain.VerdictUnknown, nil, next.CreatedBy); err != nil {
			return err
		}

		v2, err := next.AddVersion("1.1.0", "", "content-2", nil, next.CreatedBy)
		if err != nil {
			return err
		}
		v2.SetValidationResult([]*domain.ValidationIssue{
			domain.NewValidationIssue(next.ID, v2.ID, domain.SeverityWarning, "NO_PATHS", "no paths", "paths", 0, 0, "openapi-paths", ""),
		})

		if _, err := next.RegisterConsumer(domain.ConsumerExternalService, "billing", "", "", nil, next.CreatedBy); err != nil {
			return err
		}
		_, err = next.AddArtifact(v1.ID, "go", domain.ArtifactClient, "1.4.0", nil, 0, next.CreatedBy)
		return err
	})

	stats, err := f.service.Stats(ctx, f.identity, schema.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.ID, stats.SchemaID)
	assert.Equal(t, 2, stats.VersionCount)
	assert.Equal(t, 1, stats.PublishedCount)
	assert.Equal(t, 1, stats.ConsumerCount)
	assert.Equal(t, 1, stats.ArtifactCount)
	assert.Equal(t, 1, stats.OpenIssueCount)
	assert.Equal(t, "1.0.0", stats.CurrentVersion)
	assert.False(t, stats.LastPublishedAt.IsZero())

	_, err = f.service.Stats(ctx, f.identity, uuid.New())
	assert.ErrorIs(t, err, domain.ErrSchemaNotFound)

	outsider := Identity{UserID: uuid.New(), WorkspaceMember: false}
	_, err = f.service.Stats(ctx, outsider, schema.ID)
	assert.ErrorIs(t, err, domain.ErrSchemaNotFound, "inaccessible schemas read as absent")
}

func TestStats_CachedPerRevision(t *testing.T) {
	f := newQueryFixture(t)
	ctx := context.Background()
	schema := f.seed(t, "Orders", "orders", domain.FormatOpenAPI, nil)

	first, err := f.service.Stats(ctx, f.identity, schema.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, first.VersionCount)

	// A mutation bumps the revision, which keys a fresh stats entry.
	_, err = f.store.Mutate(ctx, schema.ID, storage.SkipRevisionCheck, func(next *domain.Schema) error {
		_, err := next.AddVersion("1.0.0", "", "content", nil, next.CreatedBy)
		return err
	})
	require.NoError(t, err)

	second, err := f.service.Stats(ctx, f.identity, schema.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, second.VersionCount)
}
