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

type createChannelRequest struct {
	Name       string             `json:"name"`
	Type       models.ChannelType `json:"type"`
	Position   int                `json:"position"`
	CategoryID *string            `json:"category_id,omitempty"`
}

var channelTypes = []string{string(models.ChannelText), string(models.ChannelVoice), string(models.ChannelAnnouncement)}

// handleListChannels handles GET /api/servers/{serverID}/channels.
func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	serverID, err := models.ParseULID(chi.URLParam(r, "serverID"))
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, corerr.BadRequest("invalid server id"))
		return
	}

	ids, err := s.Store.ChannelsForServer(r.Context(), serverID)
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	channels := make([]models.Channel, 0, len(ids))
	for _, id := range ids {
		ch, err := s.Store.ChannelByID(r.Context(), id)
		if err != nil {
			apiutil.WriteCoreError(w, s.Logger, err)
			return
		}
		channels = append(channels, ch)
	}

	apiutil.WriteJSON(w, http.StatusOK, channels)
}

// handleCreateChannel handles POST /api/servers/{serverID}/channels,
// requiring MANAGE_CHANNELS.
func (s *Server) handleCreateChannel(w http.ResponseWriter, r *http.Request) {
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
	if !s.requirePermission(w, r, serverID, userID, permissions.ManageChannels) {
		return
	}

	var req createChannelRequest
	if !apiutil.DecodeJSON(w, r, &req) {
		return
	}
	if !apiutil.ValidateStringLength(w, "name", req.Name, 1, 100) {
		return
	}
	if !apiutil.ValidateEnum(w, "type", string(req.Type), channelTypes) {
		return
	}

	var categoryID *models.ULID
	if req.CategoryID != nil && *req.CategoryID != "" {
		parsed, err := models.ParseULID(*req.CategoryID)
		if err != nil {
			apiutil.WriteCoreError(w, s.Logger, corerr.BadRequest("invalid category id"))
			return
		}
		categoryID = &parsed
	}

	channel, err := s.Store.CreateChannel(r.Context(), serverID, req.Name, req.Type, req.Position, categoryID)
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	s.Sessions.BroadcastToServer(serverID, gateway.Event(gateway.FrameChannelCreate, channel))
	apiutil.WriteJSON(w, http.StatusCreated, channel)
}

// handleDeleteChannel handles DELETE /api/servers/{serverID}/channels/{channelID},
// requiring MANAGE_CHANNELS.
func (s *Server) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
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
	channelID, err := models.ParseULID(chi.URLParam(r, "channelID"))
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, corerr.BadRequest("invalid channel id"))
		return
	}
	if !s.requirePermission(w, r, serverID, userID, permissions.ManageChannels) {
		return
	}

	if err := s.Store.DeleteChannel(r.Context(), channelID); err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	// No dedicated ChannelDelete frame exists in the gateway's frame set;
	// ServerUpdate is the generic structural-change notification clients
	// already refetch server state on.
	s.Sessions.BroadcastToServer(serverID, gateway.Event(gateway.FrameServerUpdate, map[string]any{
		"server_id":       serverID,
		"channel_deleted": channelID,
	}))
	apiutil.WriteNoContent(w)
}
