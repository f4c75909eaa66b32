// Package voice implements the per-channel Selective Forwarding Unit
// (Component F): a raw RTP relay that accepts one audio track per
// participant and forwards it to every other participant in the channel
// without transcoding.
package voice

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	"github.com/boreal-chat/boreal/internal/models"
)

// iceGatherTimeout bounds how long handle_offer waits for ICE gathering to
// finish before answering with whatever candidates are available so far.
const iceGatherTimeout = 3 * time.Second

// user is a single participant's SFU-side state. my_track is preserved
// across reconnects so other participants' existing subscriptions to it
// stay valid without renegotiation.
type user struct {
	userID models.ULID
	pc     *webrtc.PeerConnection

	trackMu sync.RWMutex
	myTrack *webrtc.TrackLocalStaticRTP

	// subscribedMu guards subscribed, the set of other users' track ids
	// already added to this peer connection. Tracked so renegotiation only
	// adds tracks the client has not already subscribed to.
	subscribedMu sync.Mutex
	subscribed   map[string]bool
}

// channel is one voice channel's set of connected participants.
type channel struct {
	channelID models.ULID

	mu    sync.RWMutex
	users map[models.ULID]*user
}

// SFU holds every active voice channel and the shared WebRTC API instance
// used to construct peer connections.
type SFU struct {
	api    *webrtc.API
	logger *slog.Logger

	mu       sync.RWMutex
	channels map[models.ULID]*channel
}

// New constructs an SFU using only STUN servers for ICE (no TURN relay —
// out of scope per spec's Non-goals for this core).
func New(logger *slog.Logger) (*SFU, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("registering default codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, fmt.Errorf("registering default interceptors: %w", err)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(registry))

	return &SFU{
		api:      api,
		logger:   logger,
		channels: make(map[models.ULID]*channel),
	}, nil
}

func iceServers() []webrtc.ICEServer {
	return []webrtc.ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"}},
	}
}

func (s *SFU) getOrCreateChannel(channelID models.ULID) *channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[channelID]
	if !ok {
		ch = &channel{channelID: channelID, users: make(map[models.ULID]*user)}
		s.channels[channelID] = ch
	}
	return ch
}

// HandleOffer processes a participant's SDP offer: it tears down any prior
// connection for the same user (preserving their outbound track so other
// subscribers are unaffected), registers track and ICE handlers, subscribes
// the new connection to every other participant's existing track, and
// returns the SDP answer.
func (s *SFU) HandleOffer(channelID, userID models.ULID, offerSDP string) (string, error) {
	pc, err := s.api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers()})
	if err != nil {
		return "", fmt.Errorf("creating peer connection: %w", err)
	}

	ch := s.getOrCreateChannel(channelID)

	preserved := s.replaceExistingConnection(ch, userID)

	u := &user{userID: userID, pc: pc, myTrack: preserved, subscribed: make(map[string]bool)}

	ch.mu.Lock()
	ch.users[userID] = u
	ch.mu.Unlock()

	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		s.forwardTrack(u, remote)
	})

	gatherComplete := make(chan struct{})
	var once sync.Once
	pc.OnICEGatheringStateChange(func(state webrtc.ICEGathererState) {
		if state == webrtc.ICEGathererStateComplete {
			once.Do(func() { close(gatherComplete) })
		}
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}); err != nil {
		s.LeaveChannel(channelID, userID)
		return "", fmt.Errorf("setting remote description: %w", err)
	}

	s.subscribeToExistingTracks(ch, u)

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		s.LeaveChannel(channelID, userID)
		return "", fmt.Errorf("creating answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		s.LeaveChannel(channelID, userID)
		return "", fmt.Errorf("setting local description: %w", err)
	}

	select {
	case <-gatherComplete:
	case <-time.After(iceGatherTimeout):
	}

	local := pc.LocalDescription()
	if local == nil {
		return "", fmt.Errorf("no local description after ICE gathering")
	}
	return local.SDP, nil
}

// replaceExistingConnection closes userID's prior peer connection, if any,
// and returns the track it was publishing so the new connection can reuse
// it instead of breaking every other participant's subscription.
func (s *SFU) replaceExistingConnection(ch *channel, userID models.ULID) *webrtc.TrackLocalStaticRTP {
	ch.mu.Lock()
	old, existed := ch.users[userID]
	if existed {
		delete(ch.users, userID)
	}
	ch.mu.Unlock()

	if !existed {
		return nil
	}

	old.trackMu.RLock()
	preserved := old.myTrack
	old.trackMu.RUnlock()

	old.pc.Close()
	return preserved
}

// forwardTrack copies RTP packets from a participant's inbound track onto
// their outbound local track, creating the local track on first use or
// reusing a preserved one from before a reconnect.
func (s *SFU) forwardTrack(u *user, remote *webrtc.TrackRemote) {
	u.trackMu.Lock()
	local := u.myTrack
	if local == nil {
		var err error
		local, err = webrtc.NewTrackLocalStaticRTP(remote.Codec().RTPCodecCapability, remote.ID(), remote.StreamID())
		if err != nil {
			u.trackMu.Unlock()
			s.logger.Error("voice: creating local track", slog.String("error", err.Error()))
			return
		}
		u.myTrack = local
	}
	u.trackMu.Unlock()

	for {
		packet, _, err := remote.ReadRTP()
		if err != nil {
			if err != io.EOF {
				s.logger.Warn("voice: RTP read ended", slog.String("user", u.userID.String()), slog.String("error", err.Error()))
			}
			return
		}
		if err := local.WriteRTP(packet); err != nil {
			s.logger.Error("voice: writing RTP packet", slog.String("error", err.Error()))
			return
		}
	}
}

// subscribeToExistingTracks adds every other participant's current track to
// the joining user's peer connection. Must be called AFTER
// SetRemoteDescription so the offer's recvonly transceivers are available
// to attach to, and BEFORE CreateAnswer so the answer reflects them.
func (s *SFU) subscribeToExistingTracks(ch *channel, joining *user) {
	for _, other := range otherUsers(ch, joining.userID) {
		other.trackMu.RLock()
		track := other.myTrack
		other.trackMu.RUnlock()
		if track == nil {
			continue
		}

		joining.subscribedMu.Lock()
		already := joining.subscribed[track.ID()]
		if !already {
			joining.subscribed[track.ID()] = true
		}
		joining.subscribedMu.Unlock()
		if already {
			continue
		}

		if _, err := joining.pc.AddTrack(track); err != nil {
			s.logger.Error("voice: subscribing to existing track",
				slog.String("subscriber", joining.userID.String()),
				slog.String("publisher", other.userID.String()),
				slog.String("error", err.Error()))
		}
	}
}

func otherUsers(ch *channel, exclude models.ULID) []*user {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	others := make([]*user, 0, len(ch.users))
	for id, other := range ch.users {
		if id != exclude {
			others = append(others, other)
		}
	}
	return others
}

// Renegotiate handles a follow-up offer from a participant already
// connected to the channel (e.g. to pull in peers who joined after their
// initial offer), reusing the existing peer connection rather than
// reconstructing it. Only tracks not already in the subscriber's
// subscribed set are added.
func (s *SFU) Renegotiate(channelID, userID models.ULID, offerSDP string) (string, error) {
	s.mu.RLock()
	ch, ok := s.channels[channelID]
	s.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown channel")
	}

	ch.mu.RLock()
	u, ok := ch.users[userID]
	ch.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown participant")
	}

	if err := u.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offerSDP}); err != nil {
		return "", fmt.Errorf("setting remote description: %w", err)
	}

	s.subscribeToExistingTracks(ch, u)

	answer, err := u.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("creating answer: %w", err)
	}
	if err := u.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("setting local description: %w", err)
	}

	local := u.pc.LocalDescription()
	if local == nil {
		return "", fmt.Errorf("no local description after renegotiation")
	}
	return local.SDP, nil
}

// HandleICECandidate applies a trickled ICE candidate to a participant's
// peer connection.
func (s *SFU) HandleICECandidate(channelID, userID models.ULID, candidate string) error {
	s.mu.RLock()
	ch, ok := s.channels[channelID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	ch.mu.RLock()
	u, ok := ch.users[userID]
	ch.mu.RUnlock()
	if !ok {
		return nil
	}
	return u.pc.AddICECandidate(webrtc.ICECandidateInit{Candidate: candidate})
}

// LeaveChannel closes a participant's peer connection and removes them from
// the channel, tearing down the channel itself if it is left empty.
func (s *SFU) LeaveChannel(channelID, userID models.ULID) {
	s.mu.RLock()
	ch, ok := s.channels[channelID]
	s.mu.RUnlock()
	if !ok {
		return
	}

	ch.mu.Lock()
	u, existed := ch.users[userID]
	if existed {
		delete(ch.users, userID)
	}
	empty := len(ch.users) == 0
	ch.mu.Unlock()

	if existed {
		u.pc.Close()
	}
	if empty {
		s.mu.Lock()
		delete(s.channels, channelID)
		s.mu.Unlock()
	}
}

// Participants returns the ids of users currently connected to a channel.
func (s *SFU) Participants(channelID models.ULID) []models.ULID {
	s.mu.RLock()
	ch, ok := s.channels[channelID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	ids := make([]models.ULID, 0, len(ch.users))
	for id := range ch.users {
		ids = append(ids, id)
	}
	return ids
}
