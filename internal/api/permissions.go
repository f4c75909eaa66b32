package api

import (
	"context"
	"net/http"

	"github.com/boreal-chat/boreal/internal/api/apiutil"
	"github.com/boreal-chat/boreal/internal/auth"
	"github.com/boreal-chat/boreal/internal/corerr"
	"github.com/boreal-chat/boreal/internal/models"
	"github.com/boreal-chat/boreal/internal/permissions"
)

// authenticatedUserID parses the bearer identity RequireAuth injected into
// the request context as a plain string back into a models.ULID. Auth
// middleware guarantees UserIDFromContext is non-empty and well-formed, so
// a parse failure here indicates a federation bug rather than bad client
// input.
func authenticatedUserID(ctx context.Context) (models.ULID, error) {
	id, err := models.ParseULID(auth.UserIDFromContext(ctx))
	if err != nil {
		return models.ULID{}, corerr.Unauthorized("invalid token subject")
	}
	return id, nil
}

// effectivePermissions resolves a member's bitwise-OR'd permission mask:
// the server's @everyone role (stored, by convention, as the role whose id
// equals the server's id) combined with every role the member holds.
// Administrator on any held role overrides the rest — see
// internal/permissions.Effective.
func (s *Server) effectivePermissions(ctx context.Context, serverID, userID models.ULID) (uint64, error) {
	everyone, err := s.Store.RoleByID(ctx, serverID)
	if err != nil {
		return 0, err
	}

	member, err := s.Store.MemberByID(ctx, serverID, userID)
	if err != nil {
		return 0, err
	}

	roles := make([]permissions.Role, 0, len(member.RoleIDs))
	for _, rid := range member.RoleIDs {
		role, err := s.Store.RoleByID(ctx, rid)
		if err != nil {
			return 0, err
		}
		roles = append(roles, permissions.Role{ID: role.ID.String(), Permissions: role.Permissions})
	}

	return permissions.Effective(everyone.Permissions, roles), nil
}

// requirePermission writes a 403 and returns false if the given user lacks
// bit within serverID. Callers must check the returned bool before
// proceeding; on false the response has already been written.
func (s *Server) requirePermission(w http.ResponseWriter, r *http.Request, serverID, userID models.ULID, bit uint64) bool {
	effective, err := s.effectivePermissions(r.Context(), serverID, userID)
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return false
	}
	if !permissions.Has(effective, bit) {
		apiutil.WriteCoreError(w, s.Logger, corerr.Forbidden("missing required permission"))
		return false
	}
	return true
}
