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

type createBanRequest struct {
	Reason *string `json:"reason,omitempty"`
}

// handleListBans handles GET /api/servers/{serverID}/bans, requiring
// BAN_MEMBERS.
func (s *Server) handleListBans(w http.ResponseWriter, r *http.Request) {
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
	if !s.requirePermission(w, r, serverID, userID, permissions.BanMembers) {
		return
	}

	bans, err := s.Store.BansForServer(r.Context(), serverID)
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, bans)
}

// handleCreateBan handles POST /api/servers/{serverID}/bans/{userID},
// requiring BAN_MEMBERS. A ban also removes membership, so it is
// broadcast like a departure.
func (s *Server) handleCreateBan(w http.ResponseWriter, r *http.Request) {
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
	if !s.requirePermission(w, r, serverID, userID, permissions.BanMembers) {
		return
	}

	var req createBanRequest
	if !apiutil.DecodeJSON(w, r, &req) {
		return
	}

	if err := s.Store.CreateBan(r.Context(), serverID, targetID, req.Reason); err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	s.Sessions.BroadcastToServer(serverID, gateway.Event(gateway.FrameMemberLeave, map[string]any{
		"server_id": serverID,
		"user_id":   targetID,
	}))
	apiutil.WriteNoContent(w)
}

// handleRemoveBan handles DELETE /api/servers/{serverID}/bans/{userID},
// requiring BAN_MEMBERS.
func (s *Server) handleRemoveBan(w http.ResponseWriter, r *http.Request) {
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
	if !s.requirePermission(w, r, serverID, userID, permissions.BanMembers) {
		return
	}

	if err := s.Store.RemoveBan(r.Context(), serverID, targetID); err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	apiutil.WriteNoContent(w)
}
