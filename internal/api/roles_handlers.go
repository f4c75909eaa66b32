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

type roleRequest struct {
	Name        string `json:"name"`
	Permissions uint64 `json:"permissions"`
	Color       int32  `json:"color"`
	Position    int    `json:"position"`
}

// handleListRoles handles GET /api/servers/{serverID}/roles.
func (s *Server) handleListRoles(w http.ResponseWriter, r *http.Request) {
	serverID, err := models.ParseULID(chi.URLParam(r, "serverID"))
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, corerr.BadRequest("invalid server id"))
		return
	}

	roles, err := s.Store.RolesForServer(r.Context(), serverID)
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, roles)
}

// handleCreateRole handles POST /api/servers/{serverID}/roles, requiring
// MANAGE_SERVER.
func (s *Server) handleCreateRole(w http.ResponseWriter, r *http.Request) {
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
	if !s.requirePermission(w, r, serverID, userID, permissions.ManageServer) {
		return
	}

	var req roleRequest
	if !apiutil.DecodeJSON(w, r, &req) {
		return
	}
	if !apiutil.ValidateStringLength(w, "name", req.Name, 1, 100) {
		return
	}

	role, err := s.Store.CreateRole(r.Context(), serverID, req.Name, req.Permissions, req.Color, req.Position)
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	s.Sessions.BroadcastToServer(serverID, gateway.Event(gateway.FrameServerUpdate, map[string]any{
		"server_id":   serverID,
		"role_create": role,
	}))
	apiutil.WriteJSON(w, http.StatusCreated, role)
}

// handleUpdateRole handles PATCH /api/servers/{serverID}/roles/{roleID},
// requiring MANAGE_SERVER.
func (s *Server) handleUpdateRole(w http.ResponseWriter, r *http.Request) {
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
	roleID, err := models.ParseULID(chi.URLParam(r, "roleID"))
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, corerr.BadRequest("invalid role id"))
		return
	}
	if !s.requirePermission(w, r, serverID, userID, permissions.ManageServer) {
		return
	}

	var req roleRequest
	if !apiutil.DecodeJSON(w, r, &req) {
		return
	}
	if !apiutil.ValidateStringLength(w, "name", req.Name, 1, 100) {
		return
	}

	role, err := s.Store.UpdateRole(r.Context(), roleID, req.Name, req.Permissions, req.Color, req.Position)
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	s.Sessions.BroadcastToServer(serverID, gateway.Event(gateway.FrameServerUpdate, map[string]any{
		"server_id":   serverID,
		"role_update": role,
	}))
	apiutil.WriteJSON(w, http.StatusOK, role)
}

// handleDeleteRole handles DELETE /api/servers/{serverID}/roles/{roleID},
// requiring MANAGE_SERVER.
func (s *Server) handleDeleteRole(w http.ResponseWriter, r *http.Request) {
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
	roleID, err := models.ParseULID(chi.URLParam(r, "roleID"))
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, corerr.BadRequest("invalid role id"))
		return
	}
	if !s.requirePermission(w, r, serverID, userID, permissions.ManageServer) {
		return
	}

	if err := s.Store.DeleteRole(r.Context(), roleID); err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	s.Sessions.BroadcastToServer(serverID, gateway.Event(gateway.FrameServerUpdate, map[string]any{
		"server_id":   serverID,
		"role_delete": roleID,
	}))
	apiutil.WriteNoContent(w)
}
