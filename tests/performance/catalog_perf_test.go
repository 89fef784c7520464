/**
 * Performance Test: Catalog Operations (<200ms p95)
 *
 * Runs the hot catalog paths in-process and asserts p95 latency stays under
 * the 200ms budget. Benchmarks cover the validation pipeline and the
 * compatibility classifier for profiling runs.
 */

package performance

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/helixhq/registry/internal/cache"
	"github.com/helixhq/registry/internal/compat"
	"github.com/helixhq/registry/internal/domain"
	"github.com/helixhq/registry/internal/service"
	"github.com/helixhq/registry/internal/storage"
	"github.com/helixhq/registry/internal/validation"
)

const (
	p95Requirement = 200 * time.Millisecond
	testIterations = 200
	catalogSize    = 300
)

const benchmarkDoc = `openapi: 3.0.3
info:
  title: Inventory API
  version: 1.0.0
  description: Inventory management.
paths:
  /items:
    get:
      operationId: listItems
      description: Lists items.
  /items/reserve:
    post:
      operationId: reserveItem
      description: Reserves an item.
components:
  schemas:
    Item:
      type: object
      required: [id, name]
      properties:
        id:
          type: string
          description: Item identifier.
        name:
          type: string
          description: Display name.
`

func percentile(durations []time.Duration, p float64) time.Duration {
	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

func seedCatalog(t testing.TB) (*service.CatalogQueryService, service.Identity, uuid.UUID) {
	t.Helper()

	logg := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewCatalogStore()
	cacheManager := cache.NewMemoryCache(time.Minute)
	t.Cleanup(func() { cacheManager.Close() })

	workspaceID := uuid.New()
	userID := uuid.New()
	for i := 0; i < catalogSize; i++ {
		schema, err := domain.NewSchema(workspaceID, fmt.Sprintf("Schema %04d", i), fmt.Sprintf("schema-%04d", i), "", "", domain.FormatOpenAPI, userID)
		require.NoError(t, err)
		schema.Visibility = domain.VisibilityInternal
		require.NoError(t, store.Create(context.Background(), schema))
	}

	queryService := service.NewCatalogQueryService(store, cacheManager, logg)
	return queryService, service.Identity{UserID: userID, WorkspaceMember: true}, workspaceID
}

func TestCatalogListPerformance(t *testing.T) {
	queryService, identity, workspaceID := seedCatalog(t)
	ctx := context.Background()

	latencies := make([]time.Duration, 0, testIterations)
	for i := 0; i < testIterations; i++ {
		req := service.ListRequest{
			WorkspaceID: workspaceID,
			Filter:      service.ListFilter{Search: "schema"},
			SortBy:      service.SortByName,
			Page:        1 + i%10,
			PageSize:    20,
		}

		start := time.Now()
		result, err := queryService.List(ctx, identity, req)
		latencies = append(latencies, time.Since(start))

		require.NoError(t, err)
		require.Len(t, result.Items, 20)
	}

	p95 := percentile(latencies, 0.95)
	t.Logf("catalog list p95=%v over %d iterations", p95, testIterations)
	require.Less(t, p95, p95Requirement)
}

func TestConcurrentCatalogReads(t *testing.T) {
	queryService, identity, workspaceID := seedCatalog(t)
	ctx := context.Background()

	const workers = 25
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	start := time.Now()
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(page int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				_, err := queryService.List(ctx, identity, service.ListRequest{
					WorkspaceID: workspaceID,
					Page:        1 + page%5,
					PageSize:    50,
				})
				if err != nil {
					errs <- err
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	t.Logf("%d concurrent readers finished in %v", workers, time.Since(start))
}

func TestValidationPipelinePerformance(t *testing.T) {
	latencies := make([]time.Duration, 0, testIterations)
	for i := 0; i < testIterations; i++ {
		start := time.Now()
		report := validation.Run(domain.FormatOpenAPI, benchmarkDoc)
		latencies = append(latencies, time.Since(start))
		require.True(t, report.Valid)
	}

	p95 := percentile(latencies, 0.95)
	t.Logf("validation pipeline p95=%v over %d iterations", p95, testIterations)
	require.Less(t, p95, p95Requirement)
}

func BenchmarkValidationPipeline(b *testing.B) {
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		validation.Run(domain.FormatOpenAPI, benchmarkDoc)
	}
}

func BenchmarkCompatibilityClassifier(b *testing.B) {
	changed := benchmarkDoc + `        sku:
          type: string
          description: Stock keeping unit.
`
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		compat.Classify(domain.FormatOpenAPI, benchmarkDoc, changed)
	}
}

func BenchmarkCatalogList(b *testing.B) {
	queryService, identity, workspaceID := seedCatalog(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := queryService.List(ctx, identity, service.ListRequest{
			WorkspaceID: workspaceID,
			Page:        1,
			PageSize:    50,
		})
		if err != nil {
			b.Fatal(err)
		}
	}
}
