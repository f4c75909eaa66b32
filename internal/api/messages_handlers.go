package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/boreal-chat/boreal/internal/api/apiutil"
	"github.com/boreal-chat/boreal/internal/corerr"
	"github.com/boreal-chat/boreal/internal/gateway"
	"github.com/boreal-chat/boreal/internal/mentions"
	"github.com/boreal-chat/boreal/internal/models"
	"github.com/boreal-chat/boreal/internal/permissions"
)

const (
	defaultMessagePageSize = 50
	maxMessagePageSize     = 100
)

type createMessageRequest struct {
	Content   string  `json:"content"`
	Nonce     *string `json:"nonce,omitempty"`
	ReplyToID *int64  `json:"reply_to_id,omitempty,string"`
}

// handleCreateMessage handles POST /api/channels/{channelID}/messages.
// Any member of the channel's server may post.
func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	userID, err := authenticatedUserID(r.Context())
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}
	channelID, err := models.ParseULID(chi.URLParam(r, "channelID"))
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, corerr.BadRequest("invalid channel id"))
		return
	}

	channel, err := s.Store.ChannelByID(r.Context(), channelID)
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}
	if _, err := s.Store.MemberByID(r.Context(), channel.ServerID, userID); err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	var req createMessageRequest
	if !apiutil.DecodeJSON(w, r, &req) {
		return
	}
	content := mentions.Sanitize(req.Content)
	if err := mentions.ValidateLength(content); err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	msg, err := s.Store.CreateMessage(r.Context(), s.Snowflake, channelID, userID, content, req.Nonce, req.ReplyToID)
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	event := gateway.Event(gateway.FrameMessageCreate, msg)
	s.Sessions.BroadcastToChannel(channelID, event)

	// User mentions additionally reach the mentioned user directly, so a
	// ping lands even if they're not subscribed to this channel yet.
	for _, m := range mentions.Parse(content) {
		if m.Kind == mentions.KindUser && m.ID != userID {
			s.Sessions.BroadcastToUser(m.ID, event)
		}
	}

	apiutil.WriteJSON(w, http.StatusCreated, msg)
}

// handleListMessages handles GET /api/channels/{channelID}/messages, with
// `before` and `limit` query parameters for cursor pagination.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	userID, err := authenticatedUserID(r.Context())
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}
	channelID, err := models.ParseULID(chi.URLParam(r, "channelID"))
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, corerr.BadRequest("invalid channel id"))
		return
	}

	channel, err := s.Store.ChannelByID(r.Context(), channelID)
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}
	if _, err := s.Store.MemberByID(r.Context(), channel.ServerID, userID); err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	var before *int64
	if v := r.URL.Query().Get("before"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			apiutil.WriteCoreError(w, s.Logger, corerr.BadRequest("invalid before cursor"))
			return
		}
		before = &parsed
	}

	limit := defaultMessagePageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > maxMessagePageSize {
			apiutil.WriteCoreError(w, s.Logger, corerr.BadRequest("invalid limit"))
			return
		}
		limit = parsed
	}

	messages, err := s.Store.MessagesForChannel(r.Context(), channelID, before, limit)
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, messages)
}

// handleDeleteMessage handles DELETE /api/channels/{channelID}/messages/{messageID}.
// Allowed for the message's author, or for anyone holding MANAGE_MESSAGES
// on the channel's server.
func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	userID, err := authenticatedUserID(r.Context())
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}
	channelID, err := models.ParseULID(chi.URLParam(r, "channelID"))
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, corerr.BadRequest("invalid channel id"))
		return
	}
	messageID, err := strconv.ParseInt(chi.URLParam(r, "messageID"), 10, 64)
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, corerr.BadRequest("invalid message id"))
		return
	}

	channel, err := s.Store.ChannelByID(r.Context(), channelID)
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	msg, err := s.Store.MessageByID(r.Context(), messageID)
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	if msg.AuthorID != userID {
		if !s.requirePermission(w, r, channel.ServerID, userID, permissions.ManageMessages) {
			return
		}
	}

	if err := s.Store.DeleteMessage(r.Context(), messageID); err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	// is_deleted is forced true on the wire regardless of the underlying
	// hard delete.
	s.Sessions.BroadcastToChannel(channelID, gateway.Event(gateway.FrameMessageDelete, map[string]any{
		"id":         messageID,
		"channel_id": channelID,
		"is_deleted": true,
	}))
	apiutil.WriteNoContent(w)
}
