package session

import (
	"encoding/json"
	"testing"

	"github.com/boreal-chat/boreal/internal/models"
)

func TestBroadcastToChannelDedupesSubscribers(t *testing.T) {
	r := New(nil)
	u := models.NewULID()
	c := models.NewULID()

	mb := r.Connect(u)
	r.Subscribe(c, u)
	r.Subscribe(c, u) // duplicate insert, tolerated per spec

	r.BroadcastToChannel(c, map[string]string{"type": "Ping"})

	select {
	case payload := <-mb:
		var got map[string]string
		if err := json.Unmarshal(payload, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
	default:
		t.Fatal("expected one message in mailbox")
	}

	select {
	case <-mb:
		t.Fatal("duplicate subscriber entry caused a second delivery")
	default:
	}
}

func TestMailboxDropsWhenFull(t *testing.T) {
	r := New(nil)
	u := models.NewULID()
	mb := r.Connect(u)

	for i := 0; i < MailboxCapacity+10; i++ {
		r.BroadcastToUser(u, map[string]int{"n": i})
	}

	if len(mb) != MailboxCapacity {
		t.Fatalf("mailbox len = %d, want %d", len(mb), MailboxCapacity)
	}
}

func TestUnsubscribeRemovesAllOccurrences(t *testing.T) {
	r := New(nil)
	u := models.NewULID()
	c := models.NewULID()
	r.Subscribe(c, u)
	r.Subscribe(c, u)
	r.Unsubscribe(c, u)

	if subs := r.Subscribers(c); len(subs) != 0 {
		t.Fatalf("Subscribers after Unsubscribe = %+v, want empty", subs)
	}
}

func TestDisconnectRemovesSession(t *testing.T) {
	r := New(nil)
	u := models.NewULID()
	r.Connect(u)
	if !r.IsConnected(u) {
		t.Fatal("expected connected")
	}
	r.Disconnect(u)
	if r.IsConnected(u) {
		t.Fatal("expected disconnected")
	}
}

func TestBroadcastToServerUsesMemberLookup(t *testing.T) {
	u1, u2 := models.NewULID(), models.NewULID()
	server := models.NewULID()
	r := New(func(sid models.ULID) []models.ULID {
		if sid == server {
			return []models.ULID{u1, u2}
		}
		return nil
	})
	mb1 := r.Connect(u1)
	r.BroadcastToServer(server, map[string]string{"type": "ServerUpdate"})

	select {
	case <-mb1:
	default:
		t.Fatal("expected delivery to server member")
	}
}
