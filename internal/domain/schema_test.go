package domain

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := NewSchema(uuid.New(), "Orders API", "orders-api", "", "", FormatOpenAPI, uuid.New())
	require.NoError(t, err)
	return s
}

func addValidVersion(t *testing.T, s *Schema, label, raw string) *Version {
	t.Helper()
	v, err := s.AddVersion(label, "", raw, nil, s.CreatedBy)
	require.NoError(t, err)
	v.SetValidationResult(nil)
	return v
}

func TestNewSchema_Validation(t *testing.T) {
	workspaceID := uuid.New()
	userID := uuid.New()

	tests := []struct {
		name      string
		workspace uuid.UUID
		schemaNme string
		slug      string
		format    Format
		createdBy uuid.UUID
		wantErr   error
	}{
		{name: "valid", workspace: workspaceID, schemaNme: "Orders", slug: "orders", format: FormatOpenAPI, createdBy: userID},
		{name: "nil workspace", workspace: uuid.Nil, schemaNme: "Orders", slug: "orders", format: FormatOpenAPI, createdBy: userID, wantErr: ErrInvalidWorkspaceID},
		{name: "empty name", workspace: workspaceID, schemaNme: "  ", slug: "orders", format: FormatOpenAPI, createdBy: userID, wantErr: ErrInvalidSchemaName},
		{name: "uppercase slug", workspace: workspaceID, schemaNme: "Orders", slug: "Orders", format: FormatOpenAPI, createdBy: userID, wantErr: ErrInvalidSchemaSlug},
		{name: "slug with spaces", workspace: workspaceID, schemaNme: "Orders", slug: "orders api", format: FormatOpenAPI, createdBy: userID, wantErr: ErrInvalidSchemaSlug},
		{name: "unknown format", workspace: workspaceID, schemaNme: "Orders", slug: "orders", format: Format("soap"), createdBy: userID, wantErr: ErrInvalidSchemaFormat},
		{name: "nil creator", workspace: workspaceID, schemaNme: "Orders", slug: "orders", format: FormatOpenAPI, createdBy: uuid.Nil, wantErr: ErrInvalidUserID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSchema(tt.workspace, tt.schemaNme, tt.slug, "", "", tt.format, tt.createdBy)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StatusDraft, s.Status)
			assert.Equal(t, VisibilityInternal, s.Visibility)
			assert.Equal(t, "0.1.0", s.CurrentLabel)
			assert.Nil(t, s.CurrentVersionID)
			assert.Equal(t, int64(1), s.Revision)
			assert.Equal(t, 1, s.NextSequence)
		})
	}
}

func TestAddVersion_SequenceNeverReused(t *testing.T) {
	s := newTestSchema(t)

	v1 := addValidVersion(t, s, "1.0.0", "content-1")
	v2 := addValidVersion(t, s, "1.1.0", "content-2")
	assert.Equal(t, 1, v1.Sequence)
	assert.Equal(t, 2, v2.Sequence)

	// A rejected add must not burn or reuse a sequence slot visible to
	// later versions.
	_, err := s.AddVersion("1.1.0", "", "content-3", nil, s.CreatedBy)
	assert.ErrorIs(t, err, ErrVersionExists)

	v3 := addValidVersion(t, s, "1.2.0", "content-4")
	assert.Equal(t, 3, v3.Sequence)
	s.AssertInvariants()
}

func TestAddVersion_DuplicateContentRejected(t *testing.T) {
	s := newTestSchema(t)
	addValidVersion(t, s, "1.0.0", "identical-content")

	_, err := s.AddVersion("1.1.0", "", "identical-content", nil, s.CreatedBy)
	assert.ErrorIs(t, err, ErrDuplicateContent)
}

func TestAddVersion_InvalidInput(t *testing.T) {
	s := newTestSchema(t)

	_, err := s.AddVersion("not-semver", "", "content", nil, s.CreatedBy)
	assert.ErrorIs(t, err, ErrInvalidVersionString)

	_, err = s.AddVersion("1.0.0", "", "", nil, s.CreatedBy)
	assert.ErrorIs(t, err, ErrInvalidContent)

	require.NoError(t, s.Archive(s.CreatedBy))
	_, err = s.AddVersion("1.0.0", "", "content", nil, s.CreatedBy)
	assert.ErrorIs(t, err, ErrSchemaArchived)
}

func TestPublishVersion_SwapsPointerAndMirror(t *testing.T) {
	s := newTestSchema(t)
	v := addValidVersion(t, s, "1.0.0", "content-1")

	require.NoError(t, s.PublishVersion(v.ID, VerdictUnknown, nil, s.CreatedBy))

	assert.Equal(t, StatusPublished, s.Status)
	assert.Equal(t, VersionPublished, v.Status)
	require.NotNil(t, s.CurrentVersionID)
	assert.Equal(t, v.ID, *s.CurrentVersionID)
	assert.Equal(t, "1.0.0", s.CurrentLabel)
	assert.Equal(t, v.Content.Hash, s.CurrentContent.Hash)
	assert.NotNil(t, v.PublishedAt)
	s.AssertInvariants()
}

func TestPublishVersion_InvalidVersionLeavesPointerUntouched(t *testing.T) {
	s := newTestSchema(t)
	good := addValidVersion(t, s, "1.0.0", "content-1")
	require.NoError(t, s.PublishVersion(good.ID, VerdictUnknown, nil, s.CreatedBy))

	bad, err := s.AddVersion("2.0.0", "", "content-2", nil, s.CreatedBy)
	require.NoError(t, err)
	bad.MarkValidationFailed(NewValidationIssue(s.ID, bad.ID, SeverityError, "BROKEN", "broken", "", 0, 0, "", ""))

	err = s.PublishVersion(bad.ID, VerdictMajor, nil, s.CreatedBy)
	assert.ErrorIs(t, err, ErrVersionNotValid)

	// Failed publish must not move the current pointer or the mirror.
	assert.Equal(t, good.ID, *s.CurrentVersionID)
	assert.Equal(t, "1.0.0", s.CurrentLabel)
	assert.Equal(t, good.Content.Hash, s.CurrentContent.Hash)
	s.AssertInvariants()
}

func TestPublishVersion_PendingValidationBlocks(t *testing.T) {
	s := newTestSchema(t)
	v, err := s.AddVersion("1.0.0", "", "content-1", nil, s.CreatedBy)
	require.NoError(t, err)

	err = s.PublishVersion(v.ID, VerdictUnknown, nil, s.CreatedBy)
	assert.ErrorIs(t, err, ErrValidationInProgress)
}

func TestPublishVersion_RepublishRejected(t *testing.T) {
	s := newTestSchema(t)
	v := addValidVersion(t, s, "1.0.0", "content-1")
	require.NoError(t, s.PublishVersion(v.ID, VerdictUnknown, nil, s.CreatedBy))

	err := s.PublishVersion(v.ID, VerdictUnknown, nil, s.CreatedBy)
	assert.ErrorIs(t, err, ErrAlreadyPublished)
}

func TestDeprecateVersion(t *testing.T) {
	s := newTestSchema(t)
	v1 := addValidVersion(t, s, "1.0.0", "content-1")
	v2 := addValidVersion(t, s, "2.0.0", "content-2")
	require.NoError(t, s.PublishVersion(v1.ID, VerdictUnknown, nil, s.CreatedBy))
	require.NoError(t, s.PublishVersion(v2.ID, VerdictMajor, nil, s.CreatedBy))

	// Deprecating a superseded version leaves the schema published.
	require.NoError(t, s.DeprecateVersion(v1.ID, s.CreatedBy))
	assert.Equal(t, StatusPublished, s.Status)

	// Deprecating the current version deprecates the schema.
	require.NoError(t, s.DeprecateVersion(v2.ID, s.CreatedBy))
	assert.Equal(t, StatusDeprecated, s.Status)

	err := s.DeprecateVersion(v2.ID, s.CreatedBy)
	assert.ErrorIs(t, err, ErrAlreadyDeprecated)
}

func TestArchive_IsTerminal(t *testing.T) {
	s := newTestSchema(t)
	require.NoError(t, s.Archive(s.CreatedBy))

	assert.Equal(t, StatusArchived, s.Status)
	assert.True(t, s.Deleted)
	assert.NotNil(t, s.DeletedAt)

	assert.ErrorIs(t, s.Archive(s.CreatedBy), ErrSchemaArchived)
	assert.ErrorIs(t, s.ApplyUpdate(SchemaUpdate{}, s.CreatedBy), ErrSchemaArchived)
	_, err := s.RegisterConsumer(ConsumerExternalService, "svc", "", "", nil, s.CreatedBy)
	assert.ErrorIs(t, err, ErrSchemaArchived)
}

func TestApplyUpdate(t *testing.T) {
	s := newTestSchema(t)

	title := "Orders"
	visibility := VisibilityPublic
	require.NoError(t, s.ApplyUpdate(SchemaUpdate{
		Title:      &title,
		Tags:       []string{"orders", "core"},
		Visibility: &visibility,
	}, s.CreatedBy))
	assert.Equal(t, "Orders", s.Title)
	assert.Equal(t, VisibilityPublic, s.Visibility)
	assert.True(t, s.HasTag("core"))

	bad := Visibility("everyone")
	err := s.ApplyUpdate(SchemaUpdate{Visibility: &bad}, s.CreatedBy)
	require.Error(t, err)
	assert.Equal(t, CategoryInvalidArgument, CategoryOf(err))

	err = s.ApplyUpdate(SchemaUpdate{Tags: []string{"orders", "orders"}}, s.CreatedBy)
	assert.ErrorIs(t, err, ErrDuplicateTag)

	err = s.ApplyUpdate(SchemaUpdate{Tags: []string{"Bad Tag"}}, s.CreatedBy)
	assert.ErrorIs(t, err, ErrInvalidTag)
}

func TestValidateTags(t *testing.T) {
	assert.NoError(t, ValidateTags([]string{"orders", "v2-api"}))
	assert.ErrorIs(t, ValidateTags([]string{"x"}), ErrInvalidTag)
	assert.ErrorIs(t, ValidateTags([]string{"-leading"}), ErrInvalidTag)
	assert.ErrorIs(t, ValidateTags([]string{"a", "a"}), ErrDuplicateTag)
}

func TestCompareVersions(t *testing.T) {
	assert.Equal(t, -1, CompareVersions("1.2.3", "1.2.4"))
	assert.Equal(t, 1, CompareVersions("2.0.0", "1.9.9"))
	assert.Equal(t, 0, CompareVersions("1.2.3", "1.2.3"))
	assert.Equal(t, 0, CompareVersions("1.2.3-rc.1", "1.2.3+build.5"))
	assert.Equal(t, 1, CompareVersions("1.10.0", "1.9.0"))
}

func TestResolveIssue_RederivesValidity(t *testing.T) {
	s := newTestSchema(t)
	v, err := s.AddVersion("1.0.0", "", "content-1", nil, s.CreatedBy)
	require.NoError(t, err)

	issue := NewValidationIssue(s.ID, v.ID, SeverityError, "MISSING_FIELD", "field required", "#/info", 3, 1, "", "")
	v.SetValidationResult([]*ValidationIssue{issue})
	assert.Equal(t, ValidationInvalid, v.ValidationStatus)
	assert.False(t, v.IsValid())

	require.NoError(t, v.ResolveIssue(issue.ID, s.CreatedBy, "added the field"))
	assert.Equal(t, ValidationValid, v.ValidationStatus)
	assert.True(t, v.IsValid())

	assert.ErrorIs(t, v.ResolveIssue(uuid.New(), s.CreatedBy, ""), ErrIssueNotFound)
}

func TestSetValidationResult_WarningsDoNotInvalidate(t *testing.T) {
	s := newTestSchema(t)
	v, err := s.AddVersion("1.0.0", "", "content-1", nil, s.CreatedBy)
	require.NoError(t, err)

	v.SetValidationResult([]*ValidationIssue{
		NewValidationIssue(s.ID, v.ID, SeverityWarning, "NO_PATHS", "no paths", "", 0, 0, "", ""),
		NewValidationIssue(s.ID, v.ID, SeverityInfo, "MISSING_DESCRIPTION", "no description", "", 0, 0, "", ""),
	})
	assert.Equal(t, ValidationValid, v.ValidationStatus)
	assert.True(t, v.IsValid())
}

func TestRecordView_ConcurrentCountsExact(t *testing.T) {
	s := newTestSchema(t)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.RecordView()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5000), s.Views())
}

// Views recorded against any snapshot must survive a copy-on-write commit,
// and cloning must never race with the counter bumps.
func TestRecordView_SurvivesConcurrentClones(t *testing.T) {
	s := newTestSchema(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.RecordView()
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = s.Clone()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1000), s.Views())

	clone := s.Clone()
	assert.Equal(t, int64(1000), clone.ViewCount, "commit materializes the live total")
	s.RecordView()
	assert.Equal(t, int64(1001), clone.Views(), "clones share the usage cell")
}

func TestClone_IsolatesMutations(t *testing.T) {
	s := newTestSchema(t)
	v := addValidVersion(t, s, "1.0.0", "content-1")
	require.NoError(t, s.PublishVersion(v.ID, VerdictUnknown, nil, s.CreatedBy))
	_, err := s.RegisterConsumer(ConsumerExternalService, "svc", "", "", nil, s.CreatedBy)
	require.NoError(t, err)

	clone := s.Clone()
	clone.Name = "renamed"
	clone.Tags = append(clone.Tags, "new-tag")
	clone.Versions[v.ID].Status = VersionDeprecated
	for _, c := range clone.Consumers {
		c.Active = false
	}

	assert.Equal(t, "Orders API", s.Name)
	assert.NotContains(t, s.Tags, "new-tag")
	assert.Equal(t, VersionPublished, s.Versions[v.ID].Status)
	assert.Len(t, s.ActiveConsumers(), 1)
}

func TestAssertInvariants_PanicsOnCorruption(t *testing.T) {
	s := newTestSchema(t)
	v := addValidVersion(t, s, "1.0.0", "content-1")
	require.NoError(t, s.PublishVersion(v.ID, VerdictUnknown, nil, s.CreatedBy))

	t.Run("dangling current pointer", func(t *testing.T) {
		broken := s.Clone()
		delete(broken.Versions, v.ID)
		assert.Panics(t, func() { broken.AssertInvariants() })
	})

	t.Run("mirror hash mismatch", func(t *testing.T) {
		broken := s.Clone()
		broken.CurrentContent.Hash = "bogus"
		assert.Panics(t, func() { broken.AssertInvariants() })
	})

	t.Run("duplicate sequence", func(t *testing.T) {
		broken := s.Clone()
		extra := addValidVersion(t, broken, "1.1.0", "content-2")
		extra.Sequence = 1
		assert.Panics(t, func() { broken.AssertInvariants() })
	})
}
