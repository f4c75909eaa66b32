package api

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/boreal-chat/boreal/internal/api/apiutil"
	"github.com/boreal-chat/boreal/internal/corerr"
	"github.com/boreal-chat/boreal/internal/gateway"
	"github.com/boreal-chat/boreal/internal/models"
)

// voiceStateTracker holds the mute/deafen flags of connected voice
// participants, keyed by channel then user. The actual media path is
// negotiated over the gateway's WebRTCSignal frames and handled by
// internal/voice.SFU; this tracker exists purely so handleVoiceState and
// handleVoiceParticipants have somewhere to read and write those flags.
type voiceStateTracker struct {
	mu    sync.Mutex
	flags map[models.ULID]map[models.ULID]voiceFlags
}

type voiceFlags struct {
	muted    bool
	deafened bool
}

func newVoiceStateTracker() *voiceStateTracker {
	return &voiceStateTracker{flags: make(map[models.ULID]map[models.ULID]voiceFlags)}
}

func (t *voiceStateTracker) join(channelID, userID models.ULID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.flags[channelID] == nil {
		t.flags[channelID] = make(map[models.ULID]voiceFlags)
	}
	t.flags[channelID][userID] = voiceFlags{}
}

func (t *voiceStateTracker) leave(channelID, userID models.ULID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.flags[channelID], userID)
}

func (t *voiceStateTracker) set(channelID, userID models.ULID, f voiceFlags) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.flags[channelID] == nil {
		t.flags[channelID] = make(map[models.ULID]voiceFlags)
	}
	t.flags[channelID][userID] = f
}

func (t *voiceStateTracker) participants(channelID models.ULID) map[models.ULID]voiceFlags {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[models.ULID]voiceFlags, len(t.flags[channelID]))
	for k, v := range t.flags[channelID] {
		out[k] = v
	}
	return out
}

type voiceStateRequest struct {
	Muted    *bool `json:"muted,omitempty"`
	Deafened *bool `json:"deafened,omitempty"`
}

func boolPtr(b bool) *bool { return &b }

// handleVoiceJoin handles POST /api/voice/{channelID}/join. The real
// WebRTC handshake happens lazily over the gateway's WebRTCSignal frames
// on the client's first offer; this endpoint validates membership and
// announces presence to other connected clients.
func (s *Server) handleVoiceJoin(w http.ResponseWriter, r *http.Request) {
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
	if channel.Type != models.ChannelVoice {
		apiutil.WriteCoreError(w, s.Logger, corerr.BadRequest("channel is not a voice channel"))
		return
	}
	if _, err := s.Store.MemberByID(r.Context(), channel.ServerID, userID); err != nil {
		apiutil.WriteCoreError(w, s.Logger, err)
		return
	}

	s.voiceStates.join(channelID, userID)
	s.Sessions.BroadcastToServer(channel.ServerID, gateway.Event(gateway.FrameVoiceStateUpdate, gateway.VoiceStateUpdatePayload{
		ChannelID: channelID,
		UserID:    userID,
		Joined:    true,
	}))
	apiutil.WriteNoContent(w)
}

// handleVoiceLeave handles POST /api/voice/{channelID}/leave. Tears down
// any SFU peer connection and announces the departure.
func (s *Server) handleVoiceLeave(w http.ResponseWriter, r *http.Request) {
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

	s.Voice.LeaveChannel(channelID, userID)
	s.voiceStates.leave(channelID, userID)
	s.Sessions.BroadcastToServer(channel.ServerID, gateway.Event(gateway.FrameVoiceStateUpdate, gateway.VoiceStateUpdatePayload{
		ChannelID: channelID,
		UserID:    userID,
		Joined:    false,
	}))
	apiutil.WriteNoContent(w)
}

// handleVoiceState handles PATCH /api/voice/{channelID}/state, updating
// the caller's own mute/deafen flags.
func (s *Server) handleVoiceState(w http.ResponseWriter, r *http.Request) {
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

	var req voiceStateRequest
	if !apiutil.DecodeJSON(w, r, &req) {
		return
	}

	current := s.voiceStates.participants(channelID)[userID]
	if req.Muted != nil {
		current.muted = *req.Muted
	}
	if req.Deafened != nil {
		current.deafened = *req.Deafened
	}
	s.voiceStates.set(channelID, userID, current)

	s.Sessions.BroadcastToServer(channel.ServerID, gateway.Event(gateway.FrameVoiceStateUpdate, gateway.VoiceStateUpdatePayload{
		ChannelID: channelID,
		UserID:    userID,
		Joined:    true,
		Muted:     boolPtr(current.muted),
		Deafened:  boolPtr(current.deafened),
	}))
	apiutil.WriteNoContent(w)
}

// handleVoiceParticipants handles GET /api/voice/{channelID}/participants.
func (s *Server) handleVoiceParticipants(w http.ResponseWriter, r *http.Request) {
	channelID, err := models.ParseULID(chi.URLParam(r, "channelID"))
	if err != nil {
		apiutil.WriteCoreError(w, s.Logger, corerr.BadRequest("invalid channel id"))
		return
	}

	flags := s.voiceStates.participants(channelID)
	participants := make([]models.VoiceParticipant, 0, len(flags))
	for userID, f := range flags {
		user, err := s.Store.UserPublicByID(r.Context(), userID)
		if err != nil {
			apiutil.WriteCoreError(w, s.Logger, err)
			return
		}
		participants = append(participants, models.VoiceParticipant{
			UserID:    userID,
			ChannelID: channelID,
			Muted:     f.muted,
			Deafened:  f.deafened,
			User:      &user,
		})
	}

	apiutil.WriteJSON(w, http.StatusOK, participants)
}
