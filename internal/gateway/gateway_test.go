package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/boreal-chat/boreal/internal/config"
	"github.com/boreal-chat/boreal/internal/federation"
	"github.com/boreal-chat/boreal/internal/models"
	"github.com/boreal-chat/boreal/internal/presence"
	"github.com/boreal-chat/boreal/internal/session"
	"github.com/boreal-chat/boreal/internal/voice"
)

type fakeStore struct {
	servers  map[models.ULID][]models.ULID
	channels map[models.ULID][]models.ULID
	users    map[models.ULID]models.UserPublic
}

func (f *fakeStore) ServersForUser(_ context.Context, userID models.ULID) ([]models.ULID, error) {
	return f.servers[userID], nil
}

func (f *fakeStore) ChannelsForServer(_ context.Context, serverID models.ULID) ([]models.ULID, error) {
	return f.channels[serverID], nil
}

func (f *fakeStore) UserPublicByID(_ context.Context, userID models.ULID) (models.UserPublic, error) {
	return f.users[userID], nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestGateway(t *testing.T) (*Gateway, *federation.Verifier, *fakeStore, models.ULID, models.ULID) {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		Mode: config.ModeStandalone,
		Auth: config.AuthConfig{
			JWTPrivateKeyPath: filepath.Join(dir, "priv.pem"),
			JWTPublicKeyPath:  filepath.Join(dir, "pub.pem"),
			TokenExpiry:       "1h",
		},
	}
	verifier, err := federation.New(cfg)
	if err != nil {
		t.Fatalf("federation.New: %v", err)
	}

	userID := models.NewULID()
	serverID := models.NewULID()
	channelID := models.NewULID()
	store := &fakeStore{
		servers:  map[models.ULID][]models.ULID{userID: {serverID}},
		channels: map[models.ULID][]models.ULID{serverID: {channelID}},
		users:    map[models.ULID]models.UserPublic{userID: {ID: userID, Username: "alice"}},
	}

	sessions := session.New(nil)
	pr := presence.New()
	t.Cleanup(pr.Close)
	sfu, err := voice.New(testLogger())
	if err != nil {
		t.Fatalf("voice.New: %v", err)
	}

	gw := New(verifier, sessions, pr, sfu, store, testLogger())
	return gw, verifier, store, userID, channelID
}

func dialGateway(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+srv.URL[len("http"):], nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func writeClientFrame(t *testing.T, conn *websocket.Conn, frameType string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	frame := ClientFrame{Type: frameType, Data: raw}
	payload, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func readServerFrame(t *testing.T, conn *websocket.Conn) serverFrame {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var frame struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	return serverFrame{Type: frame.Type, Data: frame.Data}
}

func TestIdentifyThenReady(t *testing.T) {
	gw, verifier, _, userID, _ := newTestGateway(t)
	srv := httptest.NewServer(http.HandlerFunc(gw.ServeHTTP))
	defer srv.Close()

	token, err := verifier.Sign(userID.String(), "alice")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	conn := dialGateway(t, srv)
	defer conn.Close(websocket.StatusNormalClosure, "")

	writeClientFrame(t, conn, FrameIdentify, IdentifyPayload{Token: token})

	frame := readServerFrame(t, conn)
	if frame.Type != FrameReady {
		t.Fatalf("first frame type = %q, want %q", frame.Type, FrameReady)
	}
}

func TestBadIdentifyTokenCloses(t *testing.T) {
	gw, _, _, _, _ := newTestGateway(t)
	srv := httptest.NewServer(http.HandlerFunc(gw.ServeHTTP))
	defer srv.Close()

	conn := dialGateway(t, srv)
	defer conn.Close(websocket.StatusNormalClosure, "")

	writeClientFrame(t, conn, FrameIdentify, IdentifyPayload{Token: "garbage"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, _, err := conn.Read(ctx); err == nil {
		t.Fatal("expected connection to be closed after invalid identify")
	}
}

func TestFirstFrameMustBeIdentify(t *testing.T) {
	gw, _, _, _, _ := newTestGateway(t)
	srv := httptest.NewServer(http.HandlerFunc(gw.ServeHTTP))
	defer srv.Close()

	conn := dialGateway(t, srv)
	defer conn.Close(websocket.StatusNormalClosure, "")

	writeClientFrame(t, conn, FrameHeartbeat, HeartbeatPayload{Seq: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, _, err := conn.Read(ctx); err == nil {
		t.Fatal("expected connection to be closed when first frame is not identify")
	}
}

func TestHeartbeatIsAcked(t *testing.T) {
	gw, verifier, _, userID, _ := newTestGateway(t)
	srv := httptest.NewServer(http.HandlerFunc(gw.ServeHTTP))
	defer srv.Close()

	token, err := verifier.Sign(userID.String(), "alice")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	conn := dialGateway(t, srv)
	defer conn.Close(websocket.StatusNormalClosure, "")

	writeClientFrame(t, conn, FrameIdentify, IdentifyPayload{Token: token})
	readServerFrame(t, conn) // Ready

	writeClientFrame(t, conn, FrameHeartbeat, HeartbeatPayload{Seq: 7})
	frame := readServerFrame(t, conn)
	if frame.Type != FrameHeartbeatAck {
		t.Fatalf("frame type = %q, want %q", frame.Type, FrameHeartbeatAck)
	}
}

func TestWebRTCSignalToOtherUserIsRejected(t *testing.T) {
	gw, verifier, _, userID, channelID := newTestGateway(t)
	srv := httptest.NewServer(http.HandlerFunc(gw.ServeHTTP))
	defer srv.Close()

	token, err := verifier.Sign(userID.String(), "alice")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	conn := dialGateway(t, srv)
	defer conn.Close(websocket.StatusNormalClosure, "")

	writeClientFrame(t, conn, FrameIdentify, IdentifyPayload{Token: token})
	readServerFrame(t, conn) // Ready

	writeClientFrame(t, conn, FrameWebRTCSignal, WebRTCSignalPayload{
		ToUserID:   models.NewULID(),
		ChannelID:  channelID,
		SignalType: "offer",
		Payload:    json.RawMessage(`{"sdp":"v=0"}`),
	})

	// Rejected signals produce no reply; a heartbeat afterward proves the
	// connection is still alive and the rejection didn't close it.
	writeClientFrame(t, conn, FrameHeartbeat, HeartbeatPayload{Seq: 1})
	frame := readServerFrame(t, conn)
	if frame.Type != FrameHeartbeatAck {
		t.Fatalf("frame type = %q, want %q", frame.Type, FrameHeartbeatAck)
	}
}

func TestDisconnectMarksPresenceOffline(t *testing.T) {
	gw, verifier, _, userID, _ := newTestGateway(t)
	srv := httptest.NewServer(http.HandlerFunc(gw.ServeHTTP))
	defer srv.Close()

	token, err := verifier.Sign(userID.String(), "alice")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	conn := dialGateway(t, srv)
	writeClientFrame(t, conn, FrameIdentify, IdentifyPayload{Token: token})
	readServerFrame(t, conn) // Ready
	conn.Close(websocket.StatusNormalClosure, "done")

	// The gateway's cleanup path runs asynchronously relative to the close;
	// give it a moment to run before checking presence.
	deadline := time.Now().Add(2 * time.Second)
	for gw.presence.GetStatus(userID) != models.StatusOffline {
		if time.Now().After(deadline) {
			t.Fatalf("presence for %s never went offline after disconnect", userID)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
