package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/boreal-chat/boreal/internal/api/apiutil"
	"github.com/boreal-chat/boreal/internal/corerr"
	"github.com/boreal-chat/boreal/internal/gateway"
	"github.com/boreal-chat/boreal/internal/models"
)

type createServerRequest struct {
	Name        string `json:"name"`
	E2EEEnabled bool   `json:"e2ee_enabled"`
}

// handleCreateServer handles POST /api/servers.
func (s *Server) handleCreateServer(w http.ResponseWriter, r *http.Request) {
	userID, err := authenticatedUserID(r.Context())
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	var req createServerRequest
	if !apiutil.DecodeJSON(w, r, &req) {
		return
	}
	if !apiutil.ValidateStringLength(w, "name", req.Name, 1, 100) {
		return
	}

	server, err := s.Store.CreateServer(r.Context(), req.Name, userID, req.E2EEEnabled)
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusCreated, server)
}

// handleListServers handles GET /api/servers, listing every server the
// caller is a member of.
func (s *Server) handleListServers(w http.ResponseWriter, r *http.Request) {
	userID, err := authenticatedUserID(r.Context())
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	ids, err := s.Store.ServersForUser(r.Context(), userID)
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	servers := make([]models.Server, 0, len(ids))
	for _, id := range ids {
		server, err := s.Store.ServerByID(r.Context(), id)
		if err != nil {
			apiutil.WriteCoreError(w, s.Logger, err)
			return
		}
		servers = append(servers, server)
	}

	apiutil.WriteJSON(w, http.StatusOK, servers)
}

// handleGetServer handles GET /api/servers/{serverID}.
func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	serverID, err := models.ParseULID(chi.URLParam(r, "serverID"))
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, corerr.BadRequest("invalid server id"))
		return
	}

	server, err := s.Store.ServerByID(r.Context(), serverID)
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, server)
}

// handleJoinServer handles POST /api/servers/{serverID}/join. A server
// owned by the all-zero sentinel is unclaimed; the first real user to join
// it claims ownership atomically (spec scenario S2).
func (s *Server) handleJoinServer(w http.ResponseWriter, r *http.Request) {
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

	server, err := s.Store.ServerByID(r.Context(), serverID)
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	if err := s.Store.JoinServer(r.Context(), serverID, userID); err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	if server.OwnerID == models.ZeroULID {
		if err := s.Store.TransferOwnership(r.Context(), serverID, models.ZeroULID, userID); err != nil {
			apiutil.WriteCoreError(w, s.Logger, err)
			return
		}
	}

	member, err := s.Store.MemberByID(r.Context(), serverID, userID)
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}
	s.Sessions.BroadcastToServer(serverID, gateway.Event(gateway.FrameMemberJoin, member))

	apiutil.WriteNoContent(w)
}

// handleLeaveServer handles POST /api/servers/{serverID}/leave. The
// owner-cannot-leave invariant (spec §3) is enforced here: an owner must
// transfer ownership before leaving, which this REST surface does not
// expose, so an owning user is simply rejected.
func (s *Server) handleLeaveServer(w http.ResponseWriter, r *http.Request) {
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

	server, err := s.Store.ServerByID(r.Context(), serverID)
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}
	if server.OwnerID == userID {
		apiutil.WriteCoreError(w, s.Logger, corerr.Conflict("the owner cannot leave their own server"))
		return
	}

	if err := s.Store.LeaveServer(r.Context(), serverID, userID); err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	s.Sessions.BroadcastToServer(serverID, gateway.Event(gateway.FrameMemberLeave, map[string]any{
		"server_id": serverID,
		"user_id":   userID,
	}))

	apiutil.WriteNoContent(w)
}
