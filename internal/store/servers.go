package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/boreal-chat/boreal/internal/corerr"
	"github.com/boreal-chat/boreal/internal/models"
	"github.com/boreal-chat/boreal/internal/permissions"
)

// CreateServer inserts a new server, adds its owner as a member, and seeds
// the implicit @everyone role. By convention the @everyone role's id equals
// its server's id, so RoleByID(serverID) doubles as the server's default
// permission lookup without a separate column or join.
func (s *Store) CreateServer(ctx context.Context, name string, ownerID models.ULID, e2eeEnabled bool) (models.Server, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.Server{}, corerr.Database(err)
	}
	defer tx.Rollback(ctx)

	id := models.NewULID()
	var server models.Server
	err = tx.QueryRow(ctx, `
		INSERT INTO servers (id, name, owner_id, e2ee_enabled, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, name, icon_hash, owner_id, e2ee_enabled, created_at
	`, id.String(), name, ownerID.String(), e2eeEnabled).Scan(
		&server.ID, &server.Name, &server.IconHash, &server.OwnerID, &server.E2EEEnabled, &server.CreatedAt,
	)
	if err != nil {
		return models.Server{}, corerr.Database(err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO members (user_id, server_id, joined_at) VALUES ($1, $2, now())
	`, ownerID.String(), id.String()); err != nil {
		return models.Server{}, corerr.Database(err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO roles (id, server_id, name, permissions, color, position) VALUES ($1, $1, '@everyone', $2, 0, 0)
	`, id.String(), int64(permissions.SendMessages)); err != nil {
		return models.Server{}, corerr.Database(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Server{}, corerr.Database(err)
	}
	return server, nil
}

// ServerByID looks up a single server.
func (s *Store) ServerByID(ctx context.Context, serverID models.ULID) (models.Server, error) {
	var server models.Server
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, icon_hash, owner_id, e2ee_enabled, created_at FROM servers WHERE id = $1
	`, serverID.String()).Scan(
		&server.ID, &server.Name, &server.IconHash, &server.OwnerID, &server.E2EEEnabled, &server.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Server{}, corerr.NotFound("server not found")
		}
		return models.Server{}, corerr.Database(err)
	}
	return server, nil
}

// ServersForUser lists every server a user is a member of, ordered by
// name. Used by the gateway's subscribe step and the GET /api/servers
// handler.
func (s *Store) ServersForUser(ctx context.Context, userID models.ULID) ([]models.ULID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.id FROM servers s
		INNER JOIN members m ON m.server_id = s.id
		WHERE m.user_id = $1
		ORDER BY s.name
	`, userID.String())
	if err != nil {
		return nil, corerr.Database(err)
	}
	defer rows.Close()

	var ids []models.ULID
	for rows.Next() {
		var id models.ULID
		if err := rows.Scan(&id); err != nil {
			return nil, corerr.Database(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, corerr.Database(err)
	}
	return ids, nil
}

// TransferOwnership atomically reassigns a server's owner, used to claim
// an unclaimed default server (owner_id = models.ZeroULID) on first join.
func (s *Store) TransferOwnership(ctx context.Context, serverID, fromOwnerID, toOwnerID models.ULID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE servers SET owner_id = $3 WHERE id = $1 AND owner_id = $2
	`, serverID.String(), fromOwnerID.String(), toOwnerID.String())
	if err != nil {
		return corerr.Database(err)
	}
	if tag.RowsAffected() == 0 {
		return corerr.Conflict("server ownership changed concurrently")
	}
	return nil
}

// JoinServer adds a user as a member, rejecting existing bans.
func (s *Store) JoinServer(ctx context.Context, serverID, userID models.ULID) error {
	var banned bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM bans WHERE server_id = $1 AND user_id = $2)
	`, serverID.String(), userID.String()).Scan(&banned)
	if err != nil {
		return corerr.Database(err)
	}
	if banned {
		return corerr.Forbidden("banned from this server")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO members (user_id, server_id, joined_at) VALUES ($1, $2, now())
		ON CONFLICT (user_id, server_id) DO NOTHING
	`, userID.String(), serverID.String())
	if err != nil {
		return corerr.Database(err)
	}
	return nil
}

// LeaveServer removes a user's membership. The owner-cannot-leave
// invariant (spec §3) is enforced by the caller, which must transfer
// ownership first.
func (s *Store) LeaveServer(ctx context.Context, serverID, userID models.ULID) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM members WHERE server_id = $1 AND user_id = $2
	`, serverID.String(), userID.String())
	if err != nil {
		return corerr.Database(err)
	}
	return nil
}
