// Package gateway implements the WebSocket connection state machine
// (Component E): UNAUTH → SUBSCRIBING → ACTIVE → CLEANUP for every client
// connection, dispatching inbound frames and fanning out server-originated
// events through the session registry.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/boreal-chat/boreal/internal/federation"
	"github.com/boreal-chat/boreal/internal/models"
	"github.com/boreal-chat/boreal/internal/presence"
	"github.com/boreal-chat/boreal/internal/session"
	"github.com/boreal-chat/boreal/internal/voice"
)

// identifyTimeout bounds how long a new connection has to send its first
// (Identify) frame before the gateway gives up and closes it.
const identifyTimeout = 10 * time.Second

// Store is the subset of the persistent store the gateway needs to
// establish a connection's initial subscriptions.
type Store interface {
	ServersForUser(ctx context.Context, userID models.ULID) ([]models.ULID, error)
	ChannelsForServer(ctx context.Context, serverID models.ULID) ([]models.ULID, error)
	UserPublicByID(ctx context.Context, userID models.ULID) (models.UserPublic, error)
}

// Gateway wires the verifier, session registry, presence registry, and
// voice SFU together to serve a single /ws mount.
type Gateway struct {
	verifier *federation.Verifier
	sessions *session.Registry
	presence presence.Registry
	sfu      *voice.SFU
	store    Store
	logger   *slog.Logger
}

// New constructs a Gateway. None of its dependencies are owned by it; all
// are expected to outlive any individual connection.
func New(verifier *federation.Verifier, sessions *session.Registry, pr presence.Registry, sfu *voice.SFU, store Store, logger *slog.Logger) *Gateway {
	return &Gateway{
		verifier: verifier,
		sessions: sessions,
		presence: pr,
		sfu:      sfu,
		store:    store,
		logger:   logger,
	}
}

// ServeHTTP upgrades the request to a WebSocket connection and runs it
// through the full connection lifecycle until it closes.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		g.logger.Warn("gateway: accept failed", slog.String("error", err.Error()))
		return
	}
	defer c.CloseNow()

	g.serve(r.Context(), c)
}

// connState tracks per-connection state that isn't owned by any shared
// registry: at most one voice channel, since a client offers at most one
// at a time in this core.
type connState struct {
	voiceChannel models.ULID
}

// serve drives one connection through UNAUTH, SUBSCRIBING, ACTIVE, and
// CLEANUP in sequence.
func (g *Gateway) serve(ctx context.Context, c *websocket.Conn) {
	userID, _, ok := g.awaitIdentify(ctx, c)
	if !ok {
		return
	}

	mailbox, subscribed, err := g.subscribe(ctx, c, userID)
	if err != nil {
		g.logger.Warn("gateway: subscribing failed", slog.String("user", userID.String()), slog.String("error", err.Error()))
		closeWithReason(ctx, c, "subscription failed")
		g.cleanup(userID, subscribed, &connState{})
		return
	}

	state := &connState{}
	g.active(ctx, c, userID, mailbox, state)

	g.cleanup(userID, subscribed, state)
}

// awaitIdentify is the UNAUTH state: it reads exactly one frame, requires
// it to be Identify, verifies the token, and closes the connection with
// code 1000 on any failure.
func (g *Gateway) awaitIdentify(parent context.Context, c *websocket.Conn) (models.ULID, string, bool) {
	ctx, cancel := context.WithTimeout(parent, identifyTimeout)
	defer cancel()

	var frame ClientFrame
	if err := readFrame(ctx, c, &frame); err != nil {
		closeWithReason(parent, c, "expected identify frame")
		return models.ULID{}, "", false
	}
	if frame.Type != FrameIdentify {
		closeWithReason(parent, c, "first frame must be identify")
		return models.ULID{}, "", false
	}

	var payload IdentifyPayload
	if err := json.Unmarshal(frame.Data, &payload); err != nil {
		closeWithReason(parent, c, "malformed identify payload")
		return models.ULID{}, "", false
	}

	result, err := g.verifier.Verify(ctx, payload.Token)
	if err != nil {
		closeWithReason(parent, c, "authentication failed")
		return models.ULID{}, "", false
	}

	userID, err := models.ParseULID(result.UserID)
	if err != nil {
		closeWithReason(parent, c, "authentication failed")
		return models.ULID{}, "", false
	}
	return userID, result.Username, true
}

// subscribe is the SUBSCRIBING state: it loads the user's servers and
// channels, subscribes them in the session registry, marks them online,
// announces that to each subscribed channel, and sends Ready.
func (g *Gateway) subscribe(ctx context.Context, c *websocket.Conn, userID models.ULID) (session.Mailbox, []models.ULID, error) {
	servers, err := g.store.ServersForUser(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("loading servers for user: %w", err)
	}

	var channelIDs []models.ULID
	for _, serverID := range servers {
		channels, err := g.store.ChannelsForServer(ctx, serverID)
		if err != nil {
			return nil, nil, fmt.Errorf("loading channels for server: %w", err)
		}
		channelIDs = append(channelIDs, channels...)
	}

	for _, channelID := range channelIDs {
		g.sessions.Subscribe(channelID, userID)
	}

	g.presence.SetStatus(userID, models.StatusOnline)
	for _, channelID := range channelIDs {
		g.sessions.BroadcastToChannel(channelID, event(FramePresenceUpdate, PresenceUpdatePayload{
			UserID: userID,
			Status: models.StatusOnline,
		}))
	}

	user, err := g.store.UserPublicByID(ctx, userID)
	if err != nil {
		return nil, channelIDs, fmt.Errorf("loading user profile: %w", err)
	}

	mailbox := g.sessions.Connect(userID)

	if err := writeFrame(ctx, c, event(FrameReady, ReadyPayload{
		User:      user,
		SessionID: userID.String(),
	})); err != nil {
		return mailbox, channelIDs, fmt.Errorf("sending ready: %w", err)
	}

	return mailbox, channelIDs, nil
}

// active is the ACTIVE state: an outbound forwarder draining the user's
// mailbox to the socket runs concurrently with a single-threaded inbound
// reader dispatching client frames. Either side ending cancels the other.
func (g *Gateway) active(ctx context.Context, c *websocket.Conn, userID models.ULID, mailbox session.Mailbox, state *connState) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		g.forwardOutbound(ctx, c, mailbox)
	}()

	g.readInbound(ctx, c, userID, state)
	cancel()
	<-done
}

// forwardOutbound writes every event enqueued in mailbox to the socket
// until ctx is cancelled or a write fails.
func (g *Gateway) forwardOutbound(ctx context.Context, c *websocket.Conn, mailbox session.Mailbox) {
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-mailbox:
			if !ok {
				return
			}
			if err := c.Write(ctx, websocket.MessageText, payload); err != nil {
				return
			}
		}
	}
}

// readInbound reads and dispatches client frames one at a time until the
// socket closes or ctx is cancelled.
func (g *Gateway) readInbound(ctx context.Context, c *websocket.Conn, userID models.ULID, state *connState) {
	for {
		var frame ClientFrame
		if err := readFrame(ctx, c, &frame); err != nil {
			return
		}
		g.dispatch(ctx, c, userID, frame, state)
	}
}

// dispatch handles a single inbound frame. Unknown frame types are logged
// and ignored rather than closing the connection.
func (g *Gateway) dispatch(ctx context.Context, c *websocket.Conn, userID models.ULID, frame ClientFrame, state *connState) {
	switch frame.Type {
	case FrameHeartbeat:
		var payload HeartbeatPayload
		_ = json.Unmarshal(frame.Data, &payload)
		_ = writeFrame(ctx, c, event(FrameHeartbeatAck, payload))
	case FrameWebRTCSignal:
		g.dispatchWebRTCSignal(ctx, c, userID, frame, state)
	default:
		g.logger.Warn("gateway: unknown frame type", slog.String("type", frame.Type))
	}
}

// dispatchWebRTCSignal relays an offer or ICE candidate to the SFU. Only
// signals addressed to the zero user id (the SFU itself) are accepted;
// legacy peer-to-peer signaling is not supported.
func (g *Gateway) dispatchWebRTCSignal(ctx context.Context, c *websocket.Conn, userID models.ULID, frame ClientFrame, state *connState) {
	var signal WebRTCSignalPayload
	if err := json.Unmarshal(frame.Data, &signal); err != nil {
		g.logger.Warn("gateway: malformed webrtc signal", slog.String("error", err.Error()))
		return
	}
	if signal.ToUserID != models.ZeroULID {
		g.logger.Warn("gateway: rejected peer-to-peer webrtc signal", slog.String("user", userID.String()))
		return
	}

	switch signal.SignalType {
	case "offer":
		var offer offerAnswerPayload
		if err := json.Unmarshal(signal.Payload, &offer); err != nil {
			g.logger.Warn("gateway: malformed offer payload", slog.String("error", err.Error()))
			return
		}

		var answerSDP string
		var err error
		if !state.voiceChannel.IsZero() && state.voiceChannel != signal.ChannelID {
			g.leaveVoice(userID, state)
		}
		if state.voiceChannel == signal.ChannelID {
			answerSDP, err = g.sfu.Renegotiate(signal.ChannelID, userID, offer.SDP)
		} else {
			answerSDP, err = g.sfu.HandleOffer(signal.ChannelID, userID, offer.SDP)
		}
		if err != nil {
			g.logger.Warn("gateway: sfu offer failed", slog.String("error", err.Error()))
			return
		}

		wasJoined := state.voiceChannel == signal.ChannelID
		state.voiceChannel = signal.ChannelID
		if !wasJoined {
			g.sessions.BroadcastToChannel(signal.ChannelID, event(FrameVoiceStateUpdate, VoiceStateUpdatePayload{
				ChannelID: signal.ChannelID,
				UserID:    userID,
				Joined:    true,
			}))
		}

		_ = writeFrame(ctx, c, event(FrameWebRTCSignal, WebRTCSignalPayload{
			ToUserID:   models.ZeroULID,
			ChannelID:  signal.ChannelID,
			SignalType: "offer",
			Payload:    mustMarshal(offerAnswerPayload{SDP: answerSDP}),
		}))
	case "ice":
		var ice iceCandidatePayload
		if err := json.Unmarshal(signal.Payload, &ice); err != nil {
			g.logger.Warn("gateway: malformed ice payload", slog.String("error", err.Error()))
			return
		}
		if err := g.sfu.HandleICECandidate(signal.ChannelID, userID, ice.Candidate); err != nil {
			g.logger.Warn("gateway: sfu ice candidate failed", slog.String("error", err.Error()))
		}
	default:
		g.logger.Warn("gateway: unknown webrtc signal type", slog.String("signal_type", signal.SignalType))
	}
}

// leaveVoice removes userID from its currently joined voice channel, if
// any, and announces the departure.
func (g *Gateway) leaveVoice(userID models.ULID, state *connState) {
	if state.voiceChannel.IsZero() {
		return
	}
	channelID := state.voiceChannel
	g.sfu.LeaveChannel(channelID, userID)
	state.voiceChannel = models.ULID{}
	g.sessions.BroadcastToChannel(channelID, event(FrameVoiceStateUpdate, VoiceStateUpdatePayload{
		ChannelID: channelID,
		UserID:    userID,
		Joined:    false,
	}))
}

// cleanup is the CLEANUP state. subscribed is the subscription list
// captured before any of this runs: the final offline PresenceUpdate is
// broadcast to exactly those channels, after the user has already been
// removed from the session and subscriber indexes, so the departing user
// never observes their own departure.
func (g *Gateway) cleanup(userID models.ULID, subscribed []models.ULID, state *connState) {
	g.sessions.Disconnect(userID)

	g.leaveVoice(userID, state)

	for _, channelID := range subscribed {
		g.sessions.Unsubscribe(channelID, userID)
	}

	g.presence.SetOffline(userID)
	for _, channelID := range subscribed {
		g.sessions.BroadcastToChannel(channelID, event(FramePresenceUpdate, PresenceUpdatePayload{
			UserID: userID,
			Status: models.StatusOffline,
		}))
	}
}

func readFrame(ctx context.Context, c *websocket.Conn, out *ClientFrame) error {
	_, data, err := c.Read(ctx)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding frame: %w", err)
	}
	return nil
}

func writeFrame(ctx context.Context, c *websocket.Conn, frame serverFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return c.Write(ctx, websocket.MessageText, data)
}

func closeWithReason(ctx context.Context, c *websocket.Conn, reason string) {
	_ = c.Close(websocket.StatusNormalClosure, reason)
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return data
}
