package api

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/boreal-chat/boreal/internal/api/apiutil"
	"github.com/boreal-chat/boreal/internal/corerr"
	"github.com/boreal-chat/boreal/internal/gateway"
	"github.com/boreal-chat/boreal/internal/media"
	"github.com/boreal-chat/boreal/internal/models"
)

const maxAvatarBodySize = 8 << 20

// handlePutAvatar handles PUT /api/users/@me/avatar. The request body is
// the raw image bytes; Content-Type identifies the format.
func (s *Server) handlePutAvatar(w http.ResponseWriter, r *http.Request) {
	userID, err := authenticatedUserID(r.Context())
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if !media.IsSupportedContentType(contentType) {
		apiutil.WriteCoreError(w, s.Logger, corerr.BadRequest("unsupported avatar content type: "+contentType))
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxAvatarBodySize+1))
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, corerr.BadRequest("failed to read avatar body"))
		return
	}
	if int64(len(data)) > maxAvatarBodySize {
		apiutil.WriteCoreError(w, s.Logger, corerr.BadRequest("avatar exceeds the configured upload size limit"))
		return
	}

	avatar, err := s.Media.UploadAvatar(r.Context(), userID, contentType, data)
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	hashWithExt := avatar.Hash + "." + avatar.Ext
	if err := s.Store.UpdateAvatar(r.Context(), userID, hashWithExt); err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	user, err := s.Store.UserPublicByID(r.Context(), userID)
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}
	s.Sessions.BroadcastToUser(userID, gateway.Event(gateway.FrameUserUpdate, user))

	apiutil.WriteJSON(w, http.StatusOK, map[string]any{
		"avatar_hash": hashWithExt,
		"blurhash":    avatar.Blurhash,
	})
}

// handleGetAvatar handles GET /api/avatars/{userID}/{hash}, unauthenticated.
func (s *Server) handleGetAvatar(w http.ResponseWriter, r *http.Request) {
	userID, err := models.ParseULID(chi.URLParam(r, "userID"))
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, corerr.BadRequest("invalid user id"))
		return
	}
	hash := chi.URLParam(r, "hash")

	reader, contentType, err := s.Media.FetchAvatar(r.Context(), userID, hash)
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	io.Copy(w, reader)
}
