package store

import (
	"context"

	"github.com/boreal-chat/boreal/internal/corerr"
	"github.com/boreal-chat/boreal/internal/models"
)

// CreateBan records a ban and removes any existing membership so a banned
// user stops appearing as a member immediately.
func (s *Store) CreateBan(ctx context.Context, serverID, userID models.ULID, reason *string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return corerr.Database(err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO bans (server_id, user_id, reason, banned_at) VALUES ($1, $2, $3, now())
		ON CONFLICT (server_id, user_id) DO UPDATE SET reason = EXCLUDED.reason
	`, serverID.String(), userID.String(), reason)
	if err != nil {
		return corerr.Database(err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM members WHERE server_id = $1 AND user_id = $2`, serverID.String(), userID.String()); err != nil {
		return corerr.Database(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return corerr.Database(err)
	}
	return nil
}

// BansForServer lists every ban on a server with denormalized user
// profiles for bans whose user still exists.
func (s *Store) BansForServer(ctx context.Context, serverID models.ULID) ([]models.Ban, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT b.server_id, b.user_id, b.reason, b.banned_at,
		       u.username, u.display_name, u.avatar_hash
		FROM bans b LEFT JOIN users u ON u.id = b.user_id
		WHERE b.server_id = $1
		ORDER BY b.banned_at DESC
	`, serverID.String())
	if err != nil {
		return nil, corerr.Database(err)
	}
	defer rows.Close()

	var bans []models.Ban
	for rows.Next() {
		var ban models.Ban
		var username, displayName *string
		var avatarHash *string
		if err := rows.Scan(&ban.ServerID, &ban.UserID, &ban.Reason, &ban.BannedAt, &username, &displayName, &avatarHash); err != nil {
			return nil, corerr.Database(err)
		}
		if username != nil {
			ban.User = &models.UserPublic{
				ID:          ban.UserID,
				Username:    *username,
				DisplayName: derefOr(displayName, ""),
				AvatarHash:  avatarHash,
			}
		}
		bans = append(bans, ban)
	}
	if err := rows.Err(); err != nil {
		return nil, corerr.Database(err)
	}
	return bans, nil
}

// RemoveBan lifts a ban.
func (s *Store) RemoveBan(ctx context.Context, serverID, userID models.ULID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM bans WHERE server_id = $1 AND user_id = $2`, serverID.String(), userID.String())
	if err != nil {
		return corerr.Database(err)
	}
	if tag.RowsAffected() == 0 {
		return corerr.NotFound("ban not found")
	}
	return nil
}

func derefOr(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}
