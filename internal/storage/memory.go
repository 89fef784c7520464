/**
 * Catalog Store
 *
 * In-memory, copy-on-write storage for schema aggregates. Each schema is held
 * behind an atomic pointer: readers load the current snapshot without taking
 * the mutation lock, mutations clone the snapshot, apply the change, verify
 * aggregate invariants and swap the pointer. A per-schema mutex serializes
 * mutations so the optimistic revision token only has to guard against stale
 * callers, never against interleaved writers.
 */

package storage

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/helixhq/registry/internal/domain"
)

// SkipRevisionCheck disables optimistic concurrency for a mutation. Reserved
// for internal callers applying asynchronous results, where the job identity
// already pins the target.
const SkipRevisionCheck int64 = -1

type schemaEntry struct {
	mu      sync.Mutex
	current atomic.Pointer[domain.Schema]
}

// CatalogStore holds every schema aggregate in the catalog.
type CatalogStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]*schemaEntry
	bySlug  map[string]uuid.UUID
	byName  map[string]uuid.UUID
}

func NewCatalogStore() *CatalogStore {
	return &CatalogStore{
		entries: make(map[uuid.UUID]*schemaEntry),
		bySlug:  make(map[string]uuid.UUID),
		byName:  make(map[string]uuid.UUID),
	}
}

func slugKey(workspaceID uuid.UUID, slug string) string {
	return workspaceID.String() + "/" + slug
}

func nameKey(workspaceID uuid.UUID, name string) string {
	return workspaceID.String() + "/" + strings.ToLower(name)
}

// Create inserts a new aggregate. Name and slug are unique per workspace.
func (s *CatalogStore) Create(ctx context.Context, schema *domain.Schema) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bySlug[slugKey(schema.WorkspaceID, schema.Slug)]; exists {
		return domain.ErrSchemaExists
	}
	if _, exists := s.byName[nameKey(schema.WorkspaceID, schema.Name)]; exists {
		return domain.ErrSchemaExists
	}

	schema.AssertInvariants()

	entry := &schemaEntry{}
	entry.current.Store(schema)
	s.entries[schema.ID] = entry
	s.bySlug[slugKey(schema.WorkspaceID, schema.Slug)] = schema.ID
	s.byName[nameKey(schema.WorkspaceID, schema.Name)] = schema.ID
	return nil
}

// Get returns the current snapshot of a schema. Callers must not modify the
// returned aggregate.
func (s *CatalogStore) Get(ctx context.Context, id uuid.UUID) (*domain.Schema, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSchemaNotFound
	}
	return entry.current.Load(), nil
}

// GetBySlug resolves a schema by its workspace-scoped slug.
func (s *CatalogStore) GetBySlug(ctx context.Context, workspaceID uuid.UUID, slug string) (*domain.Schema, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	id, ok := s.bySlug[slugKey(workspaceID, slug)]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSchemaNotFound
	}
	return s.Get(ctx, id)
}

// List returns a snapshot of every aggregate in the store.
func (s *CatalogStore) List(ctx context.Context) ([]*domain.Schema, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	schemas := make([]*domain.Schema, 0, len(s.entries))
	for _, entry := range s.entries {
		schemas = append(schemas, entry.current.Load())
	}
	return schemas, nil
}

// Mutate applies fn to a clone of the aggregate and publishes the result.
// A mismatched expectedRevision fails before fn runs. The stored revision is
// advanced on every successful mutation.
func (s *CatalogStore) Mutate(ctx context.Context, id uuid.UUID, expectedRevision int64, fn func(*domain.Schema) error) (*domain.Schema, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSchemaNotFound
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	current := entry.current.Load()
	if expectedRevision != SkipRevisionCheck && current.Revision != expectedRevision {
		return nil, domain.ErrRevisionConflict
	}

	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Revision = current.Revision + 1
	next.AssertInvariants()

	if next.Name != current.Name || next.Slug != current.Slug {
		if err := s.reindex(current, next); err != nil {
			return nil, err
		}
	}

	entry.current.Store(next)
	return next, nil
}

// reindex moves the name/slug index entries when a rename mutation commits.
func (s *CatalogStore) reindex(old, next *domain.Schema) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if next.Slug != old.Slug {
		if owner, exists := s.bySlug[slugKey(next.WorkspaceID, next.Slug)]; exists && owner != next.ID {
			return domain.ErrSchemaExists
		}
	}
	if next.Name != old.Name {
		if owner, exists := s.byName[nameKey(next.WorkspaceID, next.Name)]; exists && owner != next.ID {
			return domain.ErrSchemaExists
		}
	}
	delete(s.bySlug, slugKey(old.WorkspaceID, old.Slug))
	delete(s.byName, nameKey(old.WorkspaceID, old.Name))
	s.bySlug[slugKey(next.WorkspaceID, next.Slug)] = next.ID
	s.byName[nameKey(next.WorkspaceID, next.Name)] = next.ID
	return nil
}

// FindByValidationJob locates the schema and version owning a validation
// workflow ID.
func (s *CatalogStore) FindByValidationJob(ctx context.Context, workflowID string) (*domain.Schema, *domain.Version, error) {
	schemas, err := s.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, schema := range schemas {
		for _, version := range schema.Versions {
			if version.ValidationJobID == workflowID {
				return schema, version, nil
			}
		}
	}
	return nil, nil, domain.ErrVersionNotFound
}

// FindByGenerationJob locates the schema and artifact owning a code
// generation workflow ID.
func (s *CatalogStore) FindByGenerationJob(ctx context.Context, workflowID string) (*domain.Schema, *domain.Artifact, error) {
	schemas, err := s.List(ctx)
	if err != nil {
		return nil, nil, err
	}
	for _, schema := range schemas {
		for _, artifact := range schema.Artifacts {
			if artifact.WorkflowID == workflowID {
				return schema, artifact, nil
			}
		}
	}
	return nil, nil, domain.ErrArtifactNotFound
}
