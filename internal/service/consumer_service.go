/**
 * Consumer Service
 *
 * Registration and usage tracking for downstream consumers of a schema, plus
 * impact analysis: which active consumers a prospective version would break
 * or affect, derived from the compatibility verdict and each consumer's
 * version constraints.
 */

package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/helixhq/registry/internal/compat"
	"github.com/helixhq/registry/internal/domain"
	"github.com/helixhq/registry/internal/storage"
)

// ConsumerService owns consumer registrations and impact analysis.
type ConsumerService struct {
	store  *storage.CatalogStore
	logger *slog.Logger
}

func NewConsumerService(store *storage.CatalogStore, logger *slog.Logger) *ConsumerService {
	return &ConsumerService{
		store:  store,
		logger: logger.With("service", "consumer"),
	}
}

// RegisterConsumerRequest declares a downstream dependency on a schema.
type RegisterConsumerRequest struct {
	SchemaID         uuid.UUID           `json:"schema_id" validate:"required"`
	ExpectedRevision int64               `json:"expected_revision"`
	Kind             domain.ConsumerKind `json:"kind" validate:"required"`
	Name             string              `json:"name" validate:"required,min=1,max=100"`
	Description      string              `json:"description,omitempty"`
	Contact          string              `json:"contact,omitempty"`
	RepositoryID     *uuid.UUID          `json:"repository_id,omitempty"`
	MinVersion       string              `json:"min_version,omitempty"`
	MaxVersion       string              `json:"max_version,omitempty"`
}

// Register records an active consumer bound to the schema's current version.
func (s *ConsumerService) Register(ctx context.Context, identity Identity, req RegisterConsumerRequest) (*domain.Consumer, error) {
	s.logger.InfoContext(ctx, "Registering consumer",
		"schema_id", req.SchemaID, "kind", req.Kind, "name", req.Name, "registered_by", identity.UserID)

	if err := requireMember(identity); err != nil {
		return nil, err
	}
	for _, bound := range []string{req.MinVersion, req.MaxVersion} {
		if bound == "" {
			continue
		}
		if err := domain.ValidateVersionString(bound); err != nil {
			return nil, err
		}
	}

	var registered *domain.Consumer
	_, err := s.store.Mutate(ctx, req.SchemaID, req.ExpectedRevision, func(schema *domain.Schema) error {
		consumer, err := schema.RegisterConsumer(req.Kind, req.Name, req.Description, req.Contact, req.RepositoryID, identity.UserID)
		if err != nil {
			return err
		}
		consumer.MinVersion = req.MinVersion
		consumer.MaxVersion = req.MaxVersion
		registered = consumer
		return nil
	})
	if err != nil {
		return nil, err
	}
	return registered, nil
}

// Deregister deactivates a consumer. The record stays for audit history.
func (s *ConsumerService) Deregister(ctx context.Context, identity Identity, schemaID, consumerID uuid.UUID, expectedRevision int64) error {
	s.logger.InfoContext(ctx, "Deregistering consumer",
		"schema_id", schemaID, "consumer_id", consumerID, "actor", identity.UserID)

	if err := requireMember(identity); err != nil {
		return err
	}
	_, err := s.store.Mutate(ctx, schemaID, expectedRevision, func(schema *domain.Schema) error {
		return schema.DeregisterConsumer(consumerID, identity.UserID)
	})
	return err
}

// ListActive returns the active consumers of an accessible schema.
func (s *ConsumerService) ListActive(ctx context.Context, identity Identity, schemaID uuid.UUID) ([]*domain.Consumer, error) {
	schema, err := s.store.Get(ctx, schemaID)
	if err != nil {
		return nil, err
	}
	if err := requireAccess(schema, identity); err != nil {
		return nil, err
	}
	return schema.ActiveConsumers(), nil
}

// RecordAccess updates a consumer's usage counters. Counters are telemetry
// and bypass the revision token.
func (s *ConsumerService) RecordAccess(ctx context.Context, identity Identity, schemaID, consumerID uuid.UUID, versionUsed string) error {
	schema, err := s.store.Get(ctx, schemaID)
	if err != nil {
		return err
	}
	if err := requireAccess(schema, identity); err != nil {
		return err
	}
	consumer, ok := schema.Consumers[consumerID]
	if !ok || !consumer.Active {
		return domain.ErrConsumerNotFound
	}
	consumer.RecordAccess(versionUsed)
	return nil
}

// ImpactReport describes how a prospective version would affect the schema's
// active consumers.
type ImpactReport struct {
	SchemaID           uuid.UUID               `json:"schema_id"`
	ProspectiveVersion string                  `json:"prospective_version"`
	Verdict            domain.Verdict          `json:"verdict"`
	BreakingChanges    []domain.BreakingChange `json:"breaking_changes,omitempty"`
	Impacted           []*domain.Consumer      `json:"impacted"`
	TotalActive        int                     `json:"total_active"`
	ComputedAt         time.Time               `json:"computed_at"`
}

// ComputeImpact classifies prospective content against the current published
// content and lists the active consumers the change would reach.
func (s *ConsumerService) ComputeImpact(ctx context.Context, identity Identity, schemaID uuid.UUID, prospectiveVersion, prospectiveContent string) (*ImpactReport, error) {
	schema, err := s.store.Get(ctx, schemaID)
	if err != nil {
		return nil, err
	}
	if err := requireAccess(schema, identity); err != nil {
		return nil, err
	}
	if err := domain.ValidateVersionString(prospectiveVersion); err != nil {
		return nil, err
	}

	verdict, breaking := compat.Classify(schema.Format, schema.CurrentContent.Raw, prospectiveContent)

	active := schema.ActiveConsumers()
	var impacted []*domain.Consumer
	for _, consumer := range active {
		if consumer.ImpactedBy(verdict, prospectiveVersion) {
			impacted = append(impacted, consumer)
		}
	}

	s.logger.InfoContext(ctx, "Computed consumer impact",
		"schema_id", schemaID, "verdict", verdict, "impacted", len(impacted), "active", len(active))

	return &ImpactReport{
		SchemaID:           schemaID,
		ProspectiveVersion: prospectiveVersion,
		Verdict:            verdict,
		BreakingChanges:    breaking,
		Impacted:           impacted,
		TotalActive:        len(active),
		ComputedAt:         time.Now().UTC(),
	}, nil
}

// ImpactOfVersion reports the impact of an existing stored version using its
// recorded verdict, avoiding a reclassification.
func (s *ConsumerService) ImpactOfVersion(ctx context.Context, identity Identity, schemaID, versionID uuid.UUID) (*ImpactReport, error) {
	schema, err := s.store.Get(ctx, schemaID)
	if err != nil {
		return nil, err
	}
	if err := requireAccess(schema, identity); err != nil {
		return nil, err
	}
	version, err := schema.Version(versionID)
	if err != nil {
		return nil, err
	}

	verdict := version.Compatibility
	breaking := version.BreakingChanges
	if verdict == "" || verdict == domain.VerdictUnknown {
		verdict, breaking = compat.Classify(schema.Format, schema.CurrentContent.Raw, version.Content.Raw)
	}

	active := schema.ActiveConsumers()
	var impacted []*domain.Consumer
	for _, consumer := range active {
		if consumer.ImpactedBy(verdict, version.Version) {
			impacted = append(impacted, consumer)
		}
	}

	return &ImpactReport{
		SchemaID:           schemaID,
		ProspectiveVersion: version.Version,
		Verdict:            verdict,
		BreakingChanges:    breaking,
		Impacted:           impacted,
		TotalActive:        len(active),
		ComputedAt:         time.Now().UTC(),
	}, nil
}
