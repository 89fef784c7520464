/**
 * Schema Aggregate
 *
 * This file contains the core catalog entity and its versions:
 * - Schema: catalog entry owning versions, issues, consumers and artifacts
 * - Version: immutable-content snapshot with lifecycle and validity state
 *
 * All mutations to a schema's children go through methods on Schema; no other
 * component writes a Version, Consumer or Artifact directly. The aggregate is
 * a single consistency boundary persisted as a unit.
 */

package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Format identifies the contract language of a schema
type Format string

const (
	FormatOpenAPI    Format = "openapi"
	FormatGraphQL    Format = "graphql"
	FormatProtobuf   Format = "protobuf"
	FormatAvro       Format = "avro"
	FormatJSONSchema Format = "jsonschema"
	FormatAsyncAPI   Format = "asyncapi"
)

// Formats lists every supported schema format
var Formats = []Format{
	FormatOpenAPI, FormatGraphQL, FormatProtobuf,
	FormatAvro, FormatJSONSchema, FormatAsyncAPI,
}

// IsValidFormat reports whether f is a supported format
func IsValidFormat(f Format) bool {
	for _, known := range Formats {
		if f == known {
			return true
		}
	}
	return false
}

// Status represents the lifecycle state of a schema
type Status string

const (
	StatusDraft      Status = "draft"
	StatusReview     Status = "review"
	StatusPublished  Status = "published"
	StatusDeprecated Status = "deprecated"
	StatusArchived   Status = "archived"
)

// Visibility controls who may read a schema
type Visibility string

const (
	VisibilityPrivate  Visibility = "private"
	VisibilityInternal Visibility = "internal"
	VisibilityPublic   Visibility = "public"
)

// VersionStatus represents the lifecycle state of a single version
type VersionStatus string

const (
	VersionDraft      VersionStatus = "draft"
	VersionReview     VersionStatus = "review"
	VersionPublished  VersionStatus = "published"
	VersionDeprecated VersionStatus = "deprecated"
)

// ValidationStatus tracks the outcome of the validation pipeline for a version
type ValidationStatus string

const (
	ValidationPending ValidationStatus = "pending"
	ValidationValid   ValidationStatus = "valid"
	ValidationInvalid ValidationStatus = "invalid"
)

// Verdict classifies a version against its predecessor
type Verdict string

const (
	VerdictMajor   Verdict = "major"
	VerdictMinor   Verdict = "minor"
	VerdictPatch   Verdict = "patch"
	VerdictUnknown Verdict = "unknown"
)

// BreakingChange describes one backward-incompatible delta between versions
type BreakingChange struct {
	Path        string `json:"path"`
	Category    string `json:"category"` // field, operation, type, enum
	Description string `json:"description"`
}

// Content bundles the raw text, parsed document and hash of a version's body.
// The schema mirrors its current version's content through this type; the
// mirror is recomputed only inside PublishVersion.
type Content struct {
	Hash     string         `json:"hash"`
	Raw      string         `json:"raw"`
	Document map[string]any `json:"document,omitempty"`
}

// ContactInfo represents contact information for a schema
type ContactInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	URL   string `json:"url"`
}

// Schema represents a named, versioned API contract entry in the catalog
type Schema struct {
	ID           uuid.UUID   `json:"id"`
	WorkspaceID  uuid.UUID   `json:"workspace_id"`
	RepositoryID *uuid.UUID  `json:"repository_id,omitempty"`
	Name         string      `json:"name"`
	Slug         string      `json:"slug"`
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	Format       Format      `json:"format"`
	Status       Status      `json:"status"`
	Visibility   Visibility  `json:"visibility"`
	Tags         []string    `json:"tags"`
	License      string      `json:"license"`
	Contact      ContactInfo `json:"contact"`

	// CurrentVersionID points at the single published version the catalog
	// serves by default. CurrentLabel and CurrentContent are one-way derived
	// projections of that version, swapped atomically with the pointer.
	CurrentVersionID *uuid.UUID `json:"current_version_id,omitempty"`
	CurrentLabel     string     `json:"current_version"`
	CurrentContent   Content    `json:"current_content"`

	// ViewCount and DownloadCount are materialized from the shared usage cell
	// when a mutation commits a clone; live totals come from Views and
	// Downloads.
	ViewCount     int64 `json:"view_count"`
	DownloadCount int64 `json:"download_count"`

	usage *usageCounters

	Deleted   bool       `json:"deleted"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`

	// Revision is the optimistic concurrency token. Mutating operations carry
	// the revision the caller read; a mismatch aborts with ErrRevisionConflict.
	Revision int64 `json:"revision"`

	// NextSequence is the sequence number the next version will receive.
	// Sequence numbers are never reused, even after a failed publish.
	NextSequence int `json:"next_sequence"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy uuid.UUID `json:"created_by"`
	UpdatedBy uuid.UUID `json:"updated_by"`

	Versions  map[uuid.UUID]*Version  `json:"versions"`
	Consumers map[uuid.UUID]*Consumer `json:"consumers"`
	Artifacts map[uuid.UUID]*Artifact `json:"artifacts"`
}

// Version represents an immutable-content snapshot of a schema
type Version struct {
	ID       uuid.UUID `json:"id"`
	SchemaID uuid.UUID `json:"schema_id"`
	Version  string    `json:"version"`
	Sequence int       `json:"sequence"`

	ReleaseNotes    string           `json:"release_notes"`
	Content         Content          `json:"content"`
	Compatibility   Verdict          `json:"compatibility"`
	BreakingChanges []BreakingChange `json:"breaking_changes,omitempty"`

	Status           VersionStatus    `json:"status"`
	ValidationStatus ValidationStatus `json:"validation_status"`
	ValidationJobID  string           `json:"validation_job_id,omitempty"`
	ValidationSentAt *time.Time       `json:"validation_sent_at,omitempty"`

	Issues []*ValidationIssue `json:"issues,omitempty"`

	PublishedAt  *time.Time `json:"published_at,omitempty"`
	DeprecatedAt *time.Time `json:"deprecated_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	CreatedBy    uuid.UUID  `json:"created_by"`
}

var (
	slugPattern    = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,48}[a-z0-9])?$`)
	tagPattern     = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,48}[a-z0-9])?$`)
	versionPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(?:-[0-9A-Za-z.-]+)?(?:\+[0-9A-Za-z.-]+)?$`)
)

// ContentHash returns the deterministic hash of raw schema content
func ContentHash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// ValidateTags checks tag syntax and rejects duplicates within one schema
func ValidateTags(tags []string) error {
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		if len(tag) < 2 || !tagPattern.MatchString(tag) {
			return ErrInvalidTag
		}
		if _, dup := seen[tag]; dup {
			return ErrDuplicateTag
		}
		seen[tag] = struct{}{}
	}
	return nil
}

// ValidateVersionString checks that v is a semantic version
func ValidateVersionString(v string) error {
	if !versionPattern.MatchString(v) {
		return ErrInvalidVersionString
	}
	return nil
}

// CompareVersions orders two semantic version strings by their numeric
// major/minor/patch components. Returns -1, 0 or 1.
func CompareVersions(a, b string) int {
	pa := strings.SplitN(strings.SplitN(strings.SplitN(a, "+", 2)[0], "-", 2)[0], ".", 3)
	pb := strings.SplitN(strings.SplitN(strings.SplitN(b, "+", 2)[0], "-", 2)[0], ".", 3)
	for i := 0; i < 3; i++ {
		var na, nb int
		if i < len(pa) {
			na, _ = strconv.Atoi(pa[i])
		}
		if i < len(pb) {
			nb, _ = strconv.Atoi(pb[i])
		}
		if na != nb {
			if na < nb {
				return -1
			}
			return 1
		}
	}
	return 0
}

// NewSchema creates a schema in draft status with an empty 0.1.0 version slot
func NewSchema(workspaceID uuid.UUID, name, slug, title, description string, format Format, createdBy uuid.UUID) (*Schema, error) {
	if workspaceID == uuid.Nil {
		return nil, ErrInvalidWorkspaceID
	}
	if createdBy == uuid.Nil {
		return nil, ErrInvalidUserID
	}
	if strings.TrimSpace(name) == "" || len(name) > 100 {
		return nil, ErrInvalidSchemaName
	}
	if !slugPattern.MatchString(slug) {
		return nil, ErrInvalidSchemaSlug
	}
	if !IsValidFormat(format) {
		return nil, ErrInvalidSchemaFormat
	}

	now := time.Now().UTC()
	return &Schema{
		ID:           uuid.New(),
		WorkspaceID:  workspaceID,
		Name:         name,
		Slug:         slug,
		Title:        title,
		Description:  description,
		Format:       format,
		Status:       StatusDraft,
		Visibility:   VisibilityInternal,
		CurrentLabel: "0.1.0",
		Revision:     1,
		NextSequence: 1,
		CreatedAt:    now,
		UpdatedAt:    now,
		CreatedBy:    createdBy,
		UpdatedBy:    createdBy,
		Versions:     make(map[uuid.UUID]*Version),
		Consumers:    make(map[uuid.UUID]*Consumer),
		Artifacts:    make(map[uuid.UUID]*Artifact),
		usage:        &usageCounters{},
	}, nil
}

// AddVersion creates a new draft version with the next sequence number.
// Content whose hash matches any existing version of this schema is rejected.
func (s *Schema) AddVersion(version, releaseNotes, raw string, document map[string]any, createdBy uuid.UUID) (*Version, error) {
	if s.Status == StatusArchived || s.Deleted {
		return nil, ErrSchemaArchived
	}
	if err := ValidateVersionString(version); err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, ErrInvalidContent
	}
	if createdBy == uuid.Nil {
		return nil, ErrInvalidUserID
	}

	hash := ContentHash(raw)
	for _, existing := range s.Versions {
		if existing.Content.Hash == hash {
			return nil, ErrDuplicateContent
		}
		if existing.Version == version {
			return nil, ErrVersionExists
		}
	}

	now := time.Now().UTC()
	v := &Version{
		ID:           uuid.New(),
		SchemaID:     s.ID,
		Version:      version,
		Sequence:     s.NextSequence,
		ReleaseNotes: releaseNotes,
		Content: Content{
			Hash:     hash,
			Raw:      raw,
			Document: document,
		},
		Compatibility:    VerdictUnknown,
		Status:           VersionDraft,
		ValidationStatus: ValidationPending,
		CreatedAt:        now,
		UpdatedAt:        now,
		CreatedBy:        createdBy,
	}

	// Sequence assignment and the hash index update commit together with the
	// owning mutation; the store serializes them per schema.
	s.NextSequence++
	s.Versions[v.ID] = v
	s.touch(createdBy, now)
	return v, nil
}

// PublishVersion promotes a validated version to current. The compatibility
// verdict must already be computed against the prior current version; it is
// advisory metadata and never blocks the publish on its own.
func (s *Schema) PublishVersion(versionID uuid.UUID, verdict Verdict, breaking []BreakingChange, publishedBy uuid.UUID) error {
	if s.Status == StatusArchived || s.Deleted {
		return ErrSchemaArchived
	}
	v, ok := s.Versions[versionID]
	if !ok {
		return ErrVersionNotFound
	}
	switch v.Status {
	case VersionPublished:
		return ErrAlreadyPublished
	case VersionDeprecated:
		return ErrAlreadyDeprecated
	}
	if v.ValidationStatus == ValidationPending {
		return ErrValidationInProgress
	}
	if !v.IsValid() {
		return ErrVersionNotValid
	}

	now := time.Now().UTC()
	v.Compatibility = verdict
	v.BreakingChanges = breaking
	v.Status = VersionPublished
	v.PublishedAt = &now
	v.UpdatedAt = now

	// Pointer swap and content mirror happen together; they must never
	// disagree.
	s.CurrentVersionID = &v.ID
	s.CurrentLabel = v.Version
	s.CurrentContent = v.Content
	s.Status = StatusPublished
	s.touch(publishedBy, now)
	return nil
}

// DeprecateVersion marks a published version deprecated. Deprecating the
// current version deprecates the schema itself.
func (s *Schema) DeprecateVersion(versionID uuid.UUID, actor uuid.UUID) error {
	if s.Status == StatusArchived || s.Deleted {
		return ErrSchemaArchived
	}
	v, ok := s.Versions[versionID]
	if !ok {
		return ErrVersionNotFound
	}
	if v.Status == VersionDeprecated {
		return ErrAlreadyDeprecated
	}
	if v.Status != VersionPublished {
		return ErrVersionNotPublished
	}

	now := time.Now().UTC()
	v.Status = VersionDeprecated
	v.DeprecatedAt = &now
	v.UpdatedAt = now

	if s.CurrentVersionID != nil && *s.CurrentVersionID == versionID {
		s.Status = StatusDeprecated
	}
	s.touch(actor, now)
	return nil
}

// SchemaUpdate carries the mutable metadata fields of a schema
type SchemaUpdate struct {
	Title       *string      `json:"title,omitempty"`
	Description *string      `json:"description,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
	Visibility  *Visibility  `json:"visibility,omitempty"`
	License     *string      `json:"license,omitempty"`
	Contact     *ContactInfo `json:"contact,omitempty"`
}

// ApplyUpdate mutates metadata fields; structural and version state is
// untouched.
func (s *Schema) ApplyUpdate(update SchemaUpdate, actor uuid.UUID) error {
	if s.Status == StatusArchived || s.Deleted {
		return ErrSchemaArchived
	}
	if update.Tags != nil {
		if err := ValidateTags(update.Tags); err != nil {
			return err
		}
		s.Tags = update.Tags
	}
	if update.Visibility != nil {
		switch *update.Visibility {
		case VisibilityPrivate, VisibilityInternal, VisibilityPublic:
			s.Visibility = *update.Visibility
		default:
			return NewDomainError("INVALID_VISIBILITY", CategoryInvalidArgument, "Visibility must be private, internal or public")
		}
	}
	if update.Title != nil {
		s.Title = *update.Title
	}
	if update.Description != nil {
		s.Description = *update.Description
	}
	if update.License != nil {
		s.License = *update.License
	}
	if update.Contact != nil {
		s.Contact = *update.Contact
	}
	s.touch(actor, time.Now().UTC())
	return nil
}

// Archive moves the schema into its terminal state and soft-deletes it.
// Artifacts remain reachable until their expiry passes.
func (s *Schema) Archive(actor uuid.UUID) error {
	if s.Status == StatusArchived {
		return ErrSchemaArchived
	}
	now := time.Now().UTC()
	s.Status = StatusArchived
	s.Deleted = true
	s.DeletedAt = &now
	s.touch(actor, now)
	return nil
}

// Version returns the version with the given id
func (s *Schema) Version(id uuid.UUID) (*Version, error) {
	v, ok := s.Versions[id]
	if !ok {
		return nil, ErrVersionNotFound
	}
	return v, nil
}

// CurrentVersion returns the version the current pointer references, or nil
// if nothing has been published yet. A dangling pointer is an invariant
// violation and panics.
func (s *Schema) CurrentVersion() *Version {
	if s.CurrentVersionID == nil {
		return nil
	}
	v, ok := s.Versions[*s.CurrentVersionID]
	if !ok {
		panic(fmt.Sprintf("schema %s: current version pointer %s references no version", s.ID, *s.CurrentVersionID))
	}
	return v
}

// SortedVersions returns all versions ordered by sequence number
func (s *Schema) SortedVersions() []*Version {
	out := make([]*Version, 0, len(s.Versions))
	for _, v := range s.Versions {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

// usageCounters records usage telemetry for one aggregate. Every clone of the
// aggregate shares the same cell, so bumps taken against any snapshot survive
// a copy-on-write commit and never race the clone.
type usageCounters struct {
	views     atomic.Int64
	downloads atomic.Int64
}

// RecordView counts a catalog read against the live snapshot. Usage counters
// deliberately bypass the mutation path.
func (s *Schema) RecordView() {
	s.usage.views.Add(1)
}

// RecordDownload counts an artifact download at the schema level.
func (s *Schema) RecordDownload() {
	s.usage.downloads.Add(1)
}

// Views returns the live view total.
func (s *Schema) Views() int64 {
	return s.usage.views.Load()
}

// Downloads returns the live download total.
func (s *Schema) Downloads() int64 {
	return s.usage.downloads.Load()
}

// HasTag returns true if the schema has the specified tag
func (s *Schema) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// IsArchived returns true if the schema is archived
func (s *Schema) IsArchived() bool {
	return s.Status == StatusArchived
}

// touch records the actor and time of a mutation
func (s *Schema) touch(actor uuid.UUID, now time.Time) {
	s.UpdatedAt = now
	if actor != uuid.Nil {
		s.UpdatedBy = actor
	}
}

// IsValid reports whether the version passed validation with no unresolved
// error-severity issues
func (v *Version) IsValid() bool {
	if v.ValidationStatus != ValidationValid {
		return false
	}
	return !v.hasUnresolvedErrors()
}

func (v *Version) hasUnresolvedErrors() bool {
	for _, issue := range v.Issues {
		if issue.Severity == SeverityError && !issue.Resolved {
			return true
		}
	}
	return false
}

// SetValidationResult records the outcome of the validation pipeline and
// derives the validity flag
func (v *Version) SetValidationResult(issues []*ValidationIssue) {
	v.Issues = issues
	v.ValidationJobID = ""
	v.ValidationSentAt = nil
	if v.hasUnresolvedErrors() {
		v.ValidationStatus = ValidationInvalid
	} else {
		v.ValidationStatus = ValidationValid
	}
	v.UpdatedAt = time.Now().UTC()
}

// MarkValidationPending records the external job running deep validation
func (v *Version) MarkValidationPending(jobID string) {
	now := time.Now().UTC()
	v.ValidationStatus = ValidationPending
	v.ValidationJobID = jobID
	v.ValidationSentAt = &now
	v.UpdatedAt = now
}

// MarkValidationFailed records a failed or timed-out validation job. The
// version stays unpublishable until a caller retries validation.
func (v *Version) MarkValidationFailed(issue *ValidationIssue) {
	v.Issues = append(v.Issues, issue)
	v.ValidationStatus = ValidationInvalid
	v.ValidationJobID = ""
	v.ValidationSentAt = nil
	v.UpdatedAt = time.Now().UTC()
}

// ResolveIssue marks a validation issue resolved and re-derives validity
func (v *Version) ResolveIssue(issueID uuid.UUID, resolvedBy uuid.UUID, resolution string) error {
	for _, issue := range v.Issues {
		if issue.ID == issueID {
			issue.Resolve(resolvedBy, resolution)
			if v.ValidationStatus == ValidationInvalid && !v.hasUnresolvedErrors() {
				v.ValidationStatus = ValidationValid
			}
			v.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return ErrIssueNotFound
}

// AssertInvariants panics if aggregate-wide invariants are violated. Invariant
// violations are bugs, not user errors, and must fail loudly.
func (s *Schema) AssertInvariants() {
	if s.CurrentVersionID != nil {
		v, ok := s.Versions[*s.CurrentVersionID]
		if !ok {
			panic(fmt.Sprintf("schema %s: current version pointer references missing version %s", s.ID, *s.CurrentVersionID))
		}
		if v.Status != VersionPublished && v.Status != VersionDeprecated {
			panic(fmt.Sprintf("schema %s: current version %s has status %s", s.ID, v.ID, v.Status))
		}
		if s.CurrentContent.Hash != v.Content.Hash {
			panic(fmt.Sprintf("schema %s: mirrored content hash %s disagrees with current version %s", s.ID, s.CurrentContent.Hash, v.Content.Hash))
		}
	}

	seen := make(map[int]uuid.UUID, len(s.Versions))
	hashes := make(map[string]uuid.UUID, len(s.Versions))
	for id, v := range s.Versions {
		if v.Sequence < 1 || v.Sequence >= s.NextSequence {
			panic(fmt.Sprintf("schema %s: version %s has sequence %d outside [1,%d)", s.ID, id, v.Sequence, s.NextSequence))
		}
		if prev, dup := seen[v.Sequence]; dup {
			panic(fmt.Sprintf("schema %s: versions %s and %s share sequence %d", s.ID, prev, id, v.Sequence))
		}
		seen[v.Sequence] = id
		if prev, dup := hashes[v.Content.Hash]; dup {
			panic(fmt.Sprintf("schema %s: versions %s and %s share content hash", s.ID, prev, id))
		}
		hashes[v.Content.Hash] = id
	}
}

// Clone returns a deep copy of the aggregate. The store commits mutations by
// cloning, mutating the clone and swapping it in, so readers never observe a
// half-applied mutation.
func (s *Schema) Clone() *Schema {
	cp := *s
	cp.ViewCount = s.usage.views.Load()
	cp.DownloadCount = s.usage.downloads.Load()
	cp.Tags = append([]string(nil), s.Tags...)
	if s.RepositoryID != nil {
		id := *s.RepositoryID
		cp.RepositoryID = &id
	}
	if s.CurrentVersionID != nil {
		id := *s.CurrentVersionID
		cp.CurrentVersionID = &id
	}
	cp.Versions = make(map[uuid.UUID]*Version, len(s.Versions))
	for id, v := range s.Versions {
		vc := *v
		vc.BreakingChanges = append([]BreakingChange(nil), v.BreakingChanges...)
		vc.Issues = make([]*ValidationIssue, len(v.Issues))
		for i, issue := range v.Issues {
			ic := *issue
			vc.Issues[i] = &ic
		}
		cp.Versions[id] = &vc
	}
	cp.Consumers = make(map[uuid.UUID]*Consumer, len(s.Consumers))
	for id, c := range s.Consumers {
		cc := *c
		cc.AccessCount = c.usage.count.Load()
		if stamp := c.usage.last.Load(); stamp != nil {
			cc.LastUsedVersion = stamp.version
			at := stamp.at
			cc.LastAccessedAt = &at
		}
		cp.Consumers[id] = &cc
	}
	cp.Artifacts = make(map[uuid.UUID]*Artifact, len(s.Artifacts))
	for id, a := range s.Artifacts {
		ac := *a
		ac.DownloadCount = a.usage.downloads.Load()
		if a.Storage != nil {
			sd := *a.Storage
			ac.Storage = &sd
		}
		ac.Config = make(map[string]string, len(a.Config))
		for k, val := range a.Config {
			ac.Config[k] = val
		}
		cp.Artifacts[id] = &ac
	}
	return &cp
}
