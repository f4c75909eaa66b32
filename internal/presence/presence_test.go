package presence

import (
	"testing"
	"time"

	"github.com/boreal-chat/boreal/internal/models"
)

func TestStatusDefaultsToOffline(t *testing.T) {
	r := New()
	defer r.Close()

	if got := r.GetStatus(models.NewULID()); got != models.StatusOffline {
		t.Fatalf("GetStatus for unknown user = %v, want offline", got)
	}
}

func TestSetAndGetStatus(t *testing.T) {
	r := New()
	defer r.Close()

	u := models.NewULID()
	r.SetStatus(u, models.StatusOnline)
	if got := r.GetStatus(u); got != models.StatusOnline {
		t.Fatalf("GetStatus = %v, want online", got)
	}

	r.SetOffline(u)
	if got := r.GetStatus(u); got != models.StatusOffline {
		t.Fatalf("GetStatus after SetOffline = %v, want offline", got)
	}
}

func TestTypingExpires(t *testing.T) {
	r := New()
	defer r.Close()

	channel := models.NewULID()
	user := models.NewULID()
	r.SetTyping(channel, user)

	got := r.GetTyping(channel)
	if len(got) != 1 || got[0] != user {
		t.Fatalf("GetTyping immediately after SetTyping = %+v, want [%v]", got, user)
	}

	// Directly age the entry past the expiry window rather than sleeping 8s.
	entry, _ := r.typing.Load(channel)
	entry.Store(user, typingEntry{lastTyped: time.Now().Add(-TypingExpiry - time.Second)})

	if got := r.GetTyping(channel); len(got) != 0 {
		t.Fatalf("GetTyping after expiry = %+v, want empty", got)
	}
}

func TestGetBulkIsSnapshot(t *testing.T) {
	r := New()
	defer r.Close()

	a, b := models.NewULID(), models.NewULID()
	r.SetStatus(a, models.StatusOnline)

	got := r.GetBulk([]models.ULID{a, b})
	if got[a] != models.StatusOnline || got[b] != models.StatusOffline {
		t.Fatalf("GetBulk = %+v", got)
	}
}
