// Package session implements the gateway's session and subscription
// registry (Component D): a per-user outbound mailbox and a channel→
// subscribers index, with best-effort, non-blocking fan-out.
package session

import (
	"encoding/json"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/boreal-chat/boreal/internal/models"
)

// MailboxCapacity is the bounded broadcast capacity per session. When full,
// the newest event is dropped rather than blocking the sender or evicting
// older, already-observed events.
const MailboxCapacity = 256

// Mailbox is a session's outbound event queue. The registry keys mailboxes
// by user id, so it holds at most one per user: a second Connect for the
// same user replaces the first mailbox.
type Mailbox chan []byte

func newMailbox() Mailbox {
	return make(Mailbox, MailboxCapacity)
}

// send is non-blocking: if the mailbox is full, the new event is dropped
// and delivery to every other mailbox continues unaffected.
func (m Mailbox) send(payload []byte) {
	select {
	case m <- payload:
	default:
	}
}

// Registry holds the session map and the channel-subscribers index. All
// operations are safe for concurrent use and none block on I/O.
type Registry struct {
	sessions *xsync.MapOf[models.ULID, Mailbox]
	channels *xsync.MapOf[models.ULID, []models.ULID]

	// Member lookup for broadcast_to_server; supplied by the store at
	// construction so this package stays free of a database dependency.
	serverMembers func(serverID models.ULID) []models.ULID
}

// New constructs an empty Registry. memberLookup resolves a server's
// current member ids for broadcast_to_server; it is expected to hit the
// persistent store.
func New(memberLookup func(serverID models.ULID) []models.ULID) *Registry {
	return &Registry{
		sessions:      xsync.NewMapOf[models.ULID, Mailbox](),
		channels:      xsync.NewMapOf[models.ULID, []models.ULID](),
		serverMembers: memberLookup,
	}
}

// Connect registers a new mailbox for userID and returns it for the gateway
// connection to read from.
func (r *Registry) Connect(userID models.ULID) Mailbox {
	mb := newMailbox()
	r.sessions.Store(userID, mb)
	return mb
}

// Disconnect removes userID's session entirely.
func (r *Registry) Disconnect(userID models.ULID) {
	r.sessions.Delete(userID)
}

// Subscribe adds userID to channelID's subscriber list. Duplicate inserts
// are kept in the list and tolerated: BroadcastToChannel delivers at most
// once per user, and Unsubscribe removes every occurrence.
func (r *Registry) Subscribe(channelID, userID models.ULID) {
	r.channels.Compute(channelID, func(existing []models.ULID, loaded bool) ([]models.ULID, bool) {
		return append(existing, userID), false
	})
}

// Unsubscribe removes every occurrence of userID from channelID's
// subscriber list.
func (r *Registry) Unsubscribe(channelID, userID models.ULID) {
	r.channels.Compute(channelID, func(existing []models.ULID, loaded bool) ([]models.ULID, bool) {
		if !loaded {
			return nil, true
		}
		out := existing[:0]
		for _, id := range existing {
			if id != userID {
				out = append(out, id)
			}
		}
		if len(out) == 0 {
			return nil, true // delete the now-empty channel entry
		}
		return out, false
	})
}

// Subscribers returns a snapshot of channelID's subscriber list, possibly
// containing duplicates.
func (r *Registry) Subscribers(channelID models.ULID) []models.ULID {
	ids, _ := r.channels.Load(channelID)
	return ids
}

// BroadcastToChannel serializes event once and sends it to every session
// whose user is in channelID's subscriber list. Best-effort: a full or
// missing mailbox is silently skipped.
func (r *Registry) BroadcastToChannel(channelID models.ULID, event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	seen := make(map[models.ULID]bool)
	for _, userID := range r.Subscribers(channelID) {
		if seen[userID] {
			continue
		}
		seen[userID] = true
		if mb, ok := r.sessions.Load(userID); ok {
			mb.send(payload)
		}
	}
}

// BroadcastToUser sends event to userID's mailbox if one exists.
func (r *Registry) BroadcastToUser(userID models.ULID, event any) {
	mb, ok := r.sessions.Load(userID)
	if !ok {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	mb.send(payload)
}

// BroadcastToServer fans event out to every member of serverID currently
// present in the session map.
func (r *Registry) BroadcastToServer(serverID models.ULID, event any) {
	if r.serverMembers == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return
	}
	for _, userID := range r.serverMembers(serverID) {
		if mb, ok := r.sessions.Load(userID); ok {
			mb.send(payload)
		}
	}
}

// IsConnected reports whether userID currently has a live mailbox.
func (r *Registry) IsConnected(userID models.ULID) bool {
	_, ok := r.sessions.Load(userID)
	return ok
}
