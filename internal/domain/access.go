package domain

import "github.com/google/uuid"

// CanAccess is the pure authorization predicate over schema visibility.
// Public schemas are readable by anyone, internal ones by workspace members,
// private ones by the creator and by registrants of active consumers. Any
// other visibility value is a configuration error and denies access.
func CanAccess(s *Schema, requesterID uuid.UUID, isWorkspaceMember bool) bool {
	switch s.Visibility {
	case VisibilityPublic:
		return true
	case VisibilityInternal:
		return isWorkspaceMember
	case VisibilityPrivate:
		if requesterID == uuid.Nil {
			return false
		}
		if s.CreatedBy == requesterID {
			return true
		}
		return s.HasActiveConsumerRegisteredBy(requesterID)
	default:
		return false
	}
}
