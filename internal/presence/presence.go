// Package presence tracks in-process user online status and per-channel
// typing indicators. It is the default single-process backend for
// Component C; a Redis-backed implementation for the §9 multi-instance
// extension lives in redis.go behind the same Registry interface.
package presence

import (
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/boreal-chat/boreal/internal/models"
)

// TypingExpiry is how long a typing indicator remains active after its last
// refresh.
const TypingExpiry = 8 * time.Second

// SweepInterval is how often the background sweeper evicts expired typing
// entries and empty channels.
const SweepInterval = 10 * time.Second

// Registry is the interface both the in-process and distributed presence
// backends satisfy, so multi-instance deployments can swap the
// implementation without touching callers.
type Registry interface {
	SetStatus(userID models.ULID, status models.PresenceStatus)
	GetStatus(userID models.ULID) models.PresenceStatus
	SetOffline(userID models.ULID)
	SetTyping(channelID, userID models.ULID)
	GetTyping(channelID models.ULID) []models.ULID
	GetBulk(userIDs []models.ULID) map[models.ULID]models.PresenceStatus
	Close()
}

type typingEntry struct {
	lastTyped time.Time
}

// InProcess is the default Registry: two concurrent maps with fine-grained
// locking, swept on an interval rather than per-read so readers stay cheap.
type InProcess struct {
	statuses *xsync.MapOf[models.ULID, models.PresenceStatus]
	typing   *xsync.MapOf[models.ULID, *xsync.MapOf[models.ULID, typingEntry]]

	stop chan struct{}
}

// New starts an InProcess registry and its background sweeper.
func New() *InProcess {
	r := &InProcess{
		statuses: xsync.NewMapOf[models.ULID, models.PresenceStatus](),
		typing:   xsync.NewMapOf[models.ULID, *xsync.MapOf[models.ULID, typingEntry]](),
		stop:     make(chan struct{}),
	}
	go r.sweepLoop()
	return r
}

// SetStatus records a user's current presence status.
func (r *InProcess) SetStatus(userID models.ULID, status models.PresenceStatus) {
	r.statuses.Store(userID, status)
}

// GetStatus returns a user's current status, defaulting to offline for
// unknown users.
func (r *InProcess) GetStatus(userID models.ULID) models.PresenceStatus {
	s, ok := r.statuses.Load(userID)
	if !ok {
		return models.StatusOffline
	}
	return s
}

// SetOffline marks a user offline, as on gateway disconnect.
func (r *InProcess) SetOffline(userID models.ULID) {
	r.statuses.Store(userID, models.StatusOffline)
}

// SetTyping marks a user as typing in a channel, refreshing the expiry
// clock if they were already typing there.
func (r *InProcess) SetTyping(channelID, userID models.ULID) {
	users, _ := r.typing.LoadOrCompute(channelID, func() *xsync.MapOf[models.ULID, typingEntry] {
		return xsync.NewMapOf[models.ULID, typingEntry]()
	})
	users.Store(userID, typingEntry{lastTyped: time.Now()})
}

// GetTyping returns the ids of users currently typing in a channel,
// excluding entries past TypingExpiry.
func (r *InProcess) GetTyping(channelID models.ULID) []models.ULID {
	users, ok := r.typing.Load(channelID)
	if !ok {
		return nil
	}
	cutoff := time.Now().Add(-TypingExpiry)
	var out []models.ULID
	users.Range(func(userID models.ULID, e typingEntry) bool {
		if e.lastTyped.After(cutoff) {
			out = append(out, userID)
		}
		return true
	})
	return out
}

// GetBulk is a single non-blocking snapshot of status for many users.
func (r *InProcess) GetBulk(userIDs []models.ULID) map[models.ULID]models.PresenceStatus {
	out := make(map[models.ULID]models.PresenceStatus, len(userIDs))
	for _, id := range userIDs {
		out[id] = r.GetStatus(id)
	}
	return out
}

// Close stops the background sweeper.
func (r *InProcess) Close() {
	close(r.stop)
}

func (r *InProcess) sweepLoop() {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *InProcess) sweep() {
	cutoff := time.Now().Add(-TypingExpiry)
	var emptyChannels []models.ULID

	r.typing.Range(func(channelID models.ULID, users *xsync.MapOf[models.ULID, typingEntry]) bool {
		var expired []models.ULID
		users.Range(func(userID models.ULID, e typingEntry) bool {
			if !e.lastTyped.After(cutoff) {
				expired = append(expired, userID)
			}
			return true
		})
		for _, userID := range expired {
			users.Delete(userID)
		}
		if users.Size() == 0 {
			emptyChannels = append(emptyChannels, channelID)
		}
		return true
	})

	for _, channelID := range emptyChannels {
		r.typing.Delete(channelID)
	}
}
