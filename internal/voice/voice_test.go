package voice

import (
	"log/slog"
	"io"
	"testing"

	"github.com/boreal-chat/boreal/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewBuildsAPI(t *testing.T) {
	sfu, err := New(testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if sfu.api == nil {
		t.Fatal("expected non-nil WebRTC API")
	}
}

func TestLeaveChannelOnUnknownChannelIsNoop(t *testing.T) {
	sfu, err := New(testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sfu.LeaveChannel(models.NewULID(), models.NewULID())
}

func TestParticipantsOfUnknownChannelIsEmpty(t *testing.T) {
	sfu, err := New(testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := sfu.Participants(models.NewULID()); len(got) != 0 {
		t.Fatalf("Participants = %+v, want empty", got)
	}
}

func TestHandleOfferWithEmptySDPFails(t *testing.T) {
	sfu, err := New(testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	channelID := models.NewULID()
	userID := models.NewULID()

	// An empty/invalid offer fails SDP parsing before any network I/O, which
	// is enough to exercise channel/user bookkeeping and error propagation
	// without a real peer on the other end.
	if _, err := sfu.HandleOffer(channelID, userID, ""); err == nil {
		t.Fatal("expected HandleOffer with empty SDP to fail")
	}
}

func TestRenegotiateOnUnknownChannelErrors(t *testing.T) {
	sfu, err := New(testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := sfu.Renegotiate(models.NewULID(), models.NewULID(), "sdp"); err == nil {
		t.Fatal("expected error for unknown channel")
	}
}

func TestHandleICECandidateOnUnknownChannelIsNoop(t *testing.T) {
	sfu, err := New(testLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := sfu.HandleICECandidate(models.NewULID(), models.NewULID(), "candidate:..."); err != nil {
		t.Fatalf("HandleICECandidate on unknown channel = %v, want nil", err)
	}
}
