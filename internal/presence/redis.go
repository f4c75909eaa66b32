package presence

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/boreal-chat/boreal/internal/models"
)

// RedisBacked is the §9 multi-instance alternative to InProcess: status and
// typing state live in Redis so multiple gateway processes observe the same
// presence picture. It satisfies the same Registry interface, so switching
// backends requires no change at any call site.
type RedisBacked struct {
	client *redis.Client
	ctx    context.Context
	cancel context.CancelFunc
}

const statusKeyPrefix = "boreal:presence:status:"
const typingKeyPrefix = "boreal:presence:typing:"

// NewRedisBacked connects to the given Redis URL (as produced by
// redis.ParseURL) and returns a Registry backed by it.
func NewRedisBacked(redisURL string) (*RedisBacked, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisBacked{
		client: redis.NewClient(opt),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

func (r *RedisBacked) SetStatus(userID models.ULID, status models.PresenceStatus) {
	r.client.Set(r.ctx, statusKeyPrefix+userID.String(), string(status), 0)
}

func (r *RedisBacked) GetStatus(userID models.ULID) models.PresenceStatus {
	v, err := r.client.Get(r.ctx, statusKeyPrefix+userID.String()).Result()
	if err != nil {
		return models.StatusOffline
	}
	return models.PresenceStatus(v)
}

func (r *RedisBacked) SetOffline(userID models.ULID) {
	r.SetStatus(userID, models.StatusOffline)
}

func (r *RedisBacked) SetTyping(channelID, userID models.ULID) {
	key := typingKeyPrefix + channelID.String()
	r.client.HSet(r.ctx, key, userID.String(), time.Now().Unix())
	r.client.Expire(r.ctx, key, TypingExpiry)
}

func (r *RedisBacked) GetTyping(channelID models.ULID) []models.ULID {
	key := typingKeyPrefix + channelID.String()
	entries, err := r.client.HGetAll(r.ctx, key).Result()
	if err != nil {
		return nil
	}
	cutoff := time.Now().Add(-TypingExpiry).Unix()
	var out []models.ULID
	for idStr, tsStr := range entries {
		parsed, err := models.ParseULID(idStr)
		if err != nil {
			continue
		}
		unixTS, err := strconv.ParseInt(tsStr, 10, 64)
		if err != nil || unixTS <= cutoff {
			continue
		}
		out = append(out, parsed)
	}
	return out
}

func (r *RedisBacked) GetBulk(userIDs []models.ULID) map[models.ULID]models.PresenceStatus {
	out := make(map[models.ULID]models.PresenceStatus, len(userIDs))
	for _, id := range userIDs {
		out[id] = r.GetStatus(id)
	}
	return out
}

func (r *RedisBacked) Close() {
	r.cancel()
	r.client.Close()
}
