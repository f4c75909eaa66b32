package gateway

import (
	"encoding/json"

	"github.com/boreal-chat/boreal/internal/models"
)

// ClientFrame is an inbound client→server gateway frame: a tagged sum type
// discriminated by Type, with Data deferred until the type is known.
type ClientFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Client→server frame type discriminators.
const (
	FrameIdentify     = "Identify"
	FrameHeartbeat    = "Heartbeat"
	FrameWebRTCSignal = "WebRTCSignal"
)

// Server→client frame type discriminators.
const (
	FrameReady             = "Ready"
	FrameHeartbeatAck      = "HeartbeatAck"
	FrameMessageCreate     = "MessageCreate"
	FrameMessageUpdate     = "MessageUpdate"
	FrameMessageDelete     = "MessageDelete"
	FrameChannelCreate     = "ChannelCreate"
	FrameMemberJoin        = "MemberJoin"
	FrameMemberLeave       = "MemberLeave"
	FrameMemberUpdate      = "MemberUpdate"
	FrameServerCreate      = "ServerCreate"
	FrameServerUpdate      = "ServerUpdate"
	FrameUserUpdate        = "UserUpdate"
	FramePresenceUpdate    = "PresenceUpdate"
	FrameTypingStart       = "TypingStart"
	FrameVoiceStateUpdate  = "VoiceStateUpdate"
	FrameVoiceServerUpdate = "VoiceServerUpdate"
	FrameReactionAdd       = "ReactionAdd"
	FrameReactionRemove    = "ReactionRemove"
)

// serverFrame is the wire shape of every server→client event:
// {"type": "...", "data": ...}.
type serverFrame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// event builds a server→client frame payload ready for session.Registry's
// broadcast helpers, which JSON-marshal whatever is passed to them.
func event(frameType string, data any) serverFrame {
	return serverFrame{Type: frameType, Data: data}
}

// Event builds a server→client frame payload for callers outside this
// package, such as REST handlers that mutate state and fan the change out
// over session.Registry's broadcast helpers. It wraps the same wire shape
// the gateway's own connection loop uses internally.
func Event(frameType string, data any) any {
	return event(frameType, data)
}

// IdentifyPayload is the client's first frame, authenticating the
// connection.
type IdentifyPayload struct {
	Token string `json:"token"`
}

// HeartbeatPayload carries the client's sequence number for liveness
// checking; the server does not currently use Seq beyond echoing it.
type HeartbeatPayload struct {
	Seq int64 `json:"seq"`
}

// WebRTCSignalPayload relays SDP offers and ICE candidates to the SFU. A
// ToUserID other than the zero id targets legacy peer-to-peer signaling,
// which this core does not support, and MUST be rejected.
type WebRTCSignalPayload struct {
	ToUserID   models.ULID     `json:"to_user_id"`
	ChannelID  models.ULID     `json:"channel_id"`
	SignalType string          `json:"signal_type"` // "offer" or "ice"
	Payload    json.RawMessage `json:"payload"`
}

// ReadyPayload is sent once a connection completes subscription and
// presence setup.
type ReadyPayload struct {
	User      models.UserPublic `json:"user"`
	SessionID string            `json:"session_id"`
}

// PresenceUpdatePayload announces a user's status change to every channel
// they are visible in.
type PresenceUpdatePayload struct {
	UserID models.ULID           `json:"user_id"`
	Status models.PresenceStatus `json:"status"`
}

// VoiceStateUpdatePayload announces a user joining or leaving a voice
// channel, or changing their mute/deafen state while connected. Muted and
// Deafened are omitted on join/leave events, which carry no state change.
type VoiceStateUpdatePayload struct {
	ChannelID models.ULID `json:"channel_id"`
	UserID    models.ULID `json:"user_id"`
	Joined    bool        `json:"joined"`
	Muted     *bool       `json:"muted,omitempty"`
	Deafened  *bool       `json:"deafened,omitempty"`
}

// offerAnswerPayload is the SDP exchange shape for "offer" signal frames.
type offerAnswerPayload struct {
	SDP string `json:"sdp"`
}

// iceCandidatePayload is the ICE trickle shape for "ice" signal frames.
type iceCandidatePayload struct {
	Candidate string `json:"candidate"`
}
