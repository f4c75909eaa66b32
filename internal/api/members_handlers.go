package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/boreal-chat/boreal/internal/api/apiutil"
	"github.com/boreal-chat/boreal/internal/corerr"
	"github.com/boreal-chat/boreal/internal/gateway"
	"github.com/boreal-chat/boreal/internal/models"
	"github.com/boreal-chat/boreal/internal/permissions"
)

// handleListMembers handles GET /api/servers/{serverID}/members.
func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	serverID, err := models.ParseULID(chi.URLParam(r, "serverID"))
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, corerr.BadRequest("invalid server id"))
		return
	}

	members, err := s.Store.MembersForServer(r.Context(), serverID)
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, members)
}

// handleGetMember handles GET /api/servers/{serverID}/members/{userID}.
func (s *Server) handleGetMember(w http.ResponseWriter, r *http.Request) {
	serverID, err := models.ParseULID(chi.URLParam(r, "serverID"))
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, corerr.BadRequest("invalid server id"))
		return
	}
	targetID, err := models.ParseULID(chi.URLParam(r, "userID"))
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, corerr.BadRequest("invalid user id"))
		return
	}

	member, err := s.Store.MemberByID(r.Context(), serverID, targetID)
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, member)
}

// handleRemoveMember handles DELETE /api/servers/{serverID}/members/{userID},
// requiring KICK_MEMBERS.
func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	userID, err := authenticatedUserID(r.Context())
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}
	serverID, err := models.ParseULID(chi.URLParam(r, "serverID"))
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, corerr.BadRequest("invalid server id"))
		return
	}
	targetID, err := models.ParseULID(chi.URLParam(r, "userID"))
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, corerr.BadRequest("invalid user id"))
		return
	}
	if !s.requirePermission(w, r, serverID, userID, permissions.KickMembers) {
		return
	}

	if err := s.Store.RemoveMember(r.Context(), serverID, targetID); err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	s.Sessions.BroadcastToServer(serverID, gateway.Event(gateway.FrameMemberLeave, map[string]any{
		"server_id": serverID,
		"user_id":   targetID,
	}))
	apiutil.WriteNoContent(w)
}

// handleAssignRole handles PUT /api/servers/{serverID}/members/{userID}/roles/{roleID},
// requiring MANAGE_SERVER.
func (s *Server) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	userID, err := authenticatedUserID(r.Context())
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}
	serverID, err := models.ParseULID(chi.URLParam(r, "serverID"))
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, corerr.BadRequest("invalid server id"))
		return
	}
	targetID, err := models.ParseULID(chi.URLParam(r, "userID"))
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, corerr.BadRequest("invalid user id"))
		return
	}
	roleID, err := models.ParseULID(chi.URLParam(r, "roleID"))
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, corerr.BadRequest("invalid role id"))
		return
	}
	if !s.requirePermission(w, r, serverID, userID, permissions.ManageServer) {
		return
	}

	if err := s.Store.AssignRole(r.Context(), serverID, targetID, roleID); err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	member, err := s.Store.MemberByID(r.Context(), serverID, targetID)
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}
	s.Sessions.BroadcastToServer(serverID, gateway.Event(gateway.FrameMemberUpdate, member))
	apiutil.WriteNoContent(w)
}

// handleUnassignRole handles DELETE /api/servers/{serverID}/members/{userID}/roles/{roleID},
// requiring MANAGE_SERVER.
func (s *Server) handleUnassignRole(w http.ResponseWriter, r *http.Request) {
	userID, err := authenticatedUserID(r.Context())
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}
	serverID, err := models.ParseULID(chi.URLParam(r, "serverID"))
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, corerr.BadRequest("invalid server id"))
		return
	}
	targetID, err := models.ParseULID(chi.URLParam(r, "userID"))
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, corerr.BadRequest("invalid user id"))
		return
	}
	roleID, err := models.ParseULID(chi.URLParam(r, "roleID"))
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, corerr.BadRequest("invalid role id"))
		return
	}
	if !s.requirePermission(w, r, serverID, userID, permissions.ManageServer) {
		return
	}

	if err := s.Store.UnassignRole(r.Context(), serverID, targetID, roleID); err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	member, err := s.Store.MemberByID(r.Context(), serverID, targetID)
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}
	s.Sessions.BroadcastToServer(serverID, gateway.Event(gateway.FrameMemberUpdate, member))
	apiutil.WriteNoContent(w)
}
