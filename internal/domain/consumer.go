package domain

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ConsumerKind identifies what sort of dependent registered against a schema
type ConsumerKind string

const (
	ConsumerInternalRepository ConsumerKind = "internal_repository"
	ConsumerExternalService    ConsumerKind = "external_service"
	ConsumerGeneratedClient    ConsumerKind = "generated_client"
)

// Consumer represents a registered dependent of a schema, tracked for impact
// analysis and usage accounting
type Consumer struct {
	ID           uuid.UUID    `json:"id"`
	SchemaID     uuid.UUID    `json:"schema_id"`
	Kind         ConsumerKind `json:"kind"`
	RepositoryID *uuid.UUID   `json:"repository_id,omitempty"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Contact      string       `json:"contact"`

	// Version constraints. RequiredVersion is set to the schema's current
	// version at registration time; Min/Max are optional caller bounds.
	RequiredVersion string `json:"required_version"`
	MinVersion      string `json:"min_version,omitempty"`
	MaxVersion      string `json:"max_version,omitempty"`

	// The three usage fields are materialized from the shared cell when a
	// mutation commits a clone; live values come from Accesses and LastAccess.
	LastUsedVersion string     `json:"last_used_version,omitempty"`
	LastAccessedAt  *time.Time `json:"last_accessed_at,omitempty"`
	AccessCount     int64      `json:"access_count"`

	usage *consumerUsage

	Active       bool      `json:"active"`
	RegisteredBy uuid.UUID `json:"registered_by"`
	RegisteredAt time.Time `json:"registered_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// consumerUsage is shared by every clone of one consumer record, like the
// aggregate's usageCounters.
type consumerUsage struct {
	count atomic.Int64
	last  atomic.Pointer[accessStamp]
}

type accessStamp struct {
	version string
	at      time.Time
}

// RegisterConsumer adds an active consumer bound to the schema's current
// version. A second active consumer with the same (kind, name) is rejected.
func (s *Schema) RegisterConsumer(kind ConsumerKind, name, description, contact string, repositoryID *uuid.UUID, registeredBy uuid.UUID) (*Consumer, error) {
	if s.Status == StatusArchived || s.Deleted {
		return nil, ErrSchemaArchived
	}
	if name == "" {
		return nil, NewDomainError("INVALID_CONSUMER_NAME", CategoryInvalidArgument, "Consumer name is required")
	}
	switch kind {
	case ConsumerInternalRepository, ConsumerExternalService, ConsumerGeneratedClient:
	default:
		return nil, NewDomainError("INVALID_CONSUMER_KIND", CategoryInvalidArgument, "Unknown consumer kind")
	}
	if registeredBy == uuid.Nil {
		return nil, ErrInvalidUserID
	}
	for _, existing := range s.Consumers {
		if existing.Active && existing.Kind == kind && existing.Name == name {
			return nil, ErrConsumerExists
		}
	}

	now := time.Now().UTC()
	c := &Consumer{
		ID:              uuid.New(),
		SchemaID:        s.ID,
		Kind:            kind,
		RepositoryID:    repositoryID,
		Name:            name,
		Description:     description,
		Contact:         contact,
		RequiredVersion: s.CurrentLabel,
		Active:          true,
		RegisteredBy:    registeredBy,
		RegisteredAt:    now,
		UpdatedAt:       now,
		usage:           &consumerUsage{},
	}
	s.Consumers[c.ID] = c
	s.touch(registeredBy, now)
	return c, nil
}

// DeregisterConsumer soft-deactivates a consumer; re-registration with the
// same kind and name is allowed afterwards.
func (s *Schema) DeregisterConsumer(consumerID uuid.UUID, actor uuid.UUID) error {
	c, ok := s.Consumers[consumerID]
	if !ok {
		return ErrConsumerNotFound
	}
	c.Active = false
	c.UpdatedAt = time.Now().UTC()
	s.touch(actor, c.UpdatedAt)
	return nil
}

// ActiveConsumers returns all currently active consumers
func (s *Schema) ActiveConsumers() []*Consumer {
	out := make([]*Consumer, 0, len(s.Consumers))
	for _, c := range s.Consumers {
		if c.Active {
			out = append(out, c)
		}
	}
	return out
}

// HasActiveConsumerRegisteredBy reports whether userID registered any active
// consumer on this schema. Private schemas grant access to such registrants.
func (s *Schema) HasActiveConsumerRegisteredBy(userID uuid.UUID) bool {
	for _, c := range s.Consumers {
		if c.Active && c.RegisteredBy == userID {
			return true
		}
	}
	return false
}

// RecordAccess bumps the usage counter and last-used tracking. Updates go to
// the shared cell so concurrent consumers never coordinate and no bump is
// lost when a mutation commits.
func (c *Consumer) RecordAccess(versionUsed string) {
	c.usage.count.Add(1)
	c.usage.last.Store(&accessStamp{version: versionUsed, at: time.Now().UTC()})
}

// Accesses returns the live access total.
func (c *Consumer) Accesses() int64 {
	return c.usage.count.Load()
}

// LastAccess returns the most recent recorded access, if any.
func (c *Consumer) LastAccess() (version string, at time.Time, ok bool) {
	stamp := c.usage.last.Load()
	if stamp == nil {
		return "", time.Time{}, false
	}
	return stamp.version, stamp.at, true
}

// ImpactedBy reports whether publishing a version with the given verdict and
// label would violate this consumer's constraints. Major changes impact every
// consumer that cannot pin below the new version; minor changes impact only
// consumers whose max bound excludes it.
func (c *Consumer) ImpactedBy(verdict Verdict, prospectiveVersion string) bool {
	if !c.Active {
		return false
	}
	switch verdict {
	case VerdictMajor:
		if c.MaxVersion == "" {
			return true
		}
		return CompareVersions(c.MaxVersion, prospectiveVersion) < 0
	case VerdictMinor:
		return c.MaxVersion != "" && CompareVersions(c.MaxVersion, prospectiveVersion) < 0
	default:
		return false
	}
}
