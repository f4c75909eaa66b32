package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/boreal-chat/boreal/internal/corerr"
	"github.com/boreal-chat/boreal/internal/models"
)

// CreateRole inserts a new role under a server.
func (s *Store) CreateRole(ctx context.Context, serverID models.ULID, name string, permissions uint64, color int32, position int) (models.Role, error) {
	id := models.NewULID()
	var role models.Role
	err := s.pool.QueryRow(ctx, `
		INSERT INTO roles (id, server_id, name, permissions, color, position)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, server_id, name, permissions, color, position
	`, id.String(), serverID.String(), name, int64(permissions), color, position).Scan(
		&role.ID, &role.ServerID, &role.Name, &role.Permissions, &role.Color, &role.Position,
	)
	if err != nil {
		return models.Role{}, corerr.Database(err)
	}
	return role, nil
}

// RolesForServer lists every role belonging to a server, ordered by
// position.
func (s *Store) RolesForServer(ctx context.Context, serverID models.ULID) ([]models.Role, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, server_id, name, permissions, color, position FROM roles WHERE server_id = $1 ORDER BY position
	`, serverID.String())
	if err != nil {
		return nil, corerr.Database(err)
	}
	defer rows.Close()

	var roles []models.Role
	for rows.Next() {
		var role models.Role
		if err := rows.Scan(&role.ID, &role.ServerID, &role.Name, &role.Permissions, &role.Color, &role.Position); err != nil {
			return nil, corerr.Database(err)
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, corerr.Database(err)
	}
	return roles, nil
}

// RoleByID looks up a single role.
func (s *Store) RoleByID(ctx context.Context, roleID models.ULID) (models.Role, error) {
	var role models.Role
	err := s.pool.QueryRow(ctx, `
		SELECT id, server_id, name, permissions, color, position FROM roles WHERE id = $1
	`, roleID.String()).Scan(&role.ID, &role.ServerID, &role.Name, &role.Permissions, &role.Color, &role.Position)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Role{}, corerr.NotFound("role not found")
		}
		return models.Role{}, corerr.Database(err)
	}
	return role, nil
}

// UpdateRole patches a role's mutable fields.
func (s *Store) UpdateRole(ctx context.Context, roleID models.ULID, name string, permissions uint64, color int32, position int) (models.Role, error) {
	var role models.Role
	err := s.pool.QueryRow(ctx, `
		UPDATE roles SET name = $2, permissions = $3, color = $4, position = $5
		WHERE id = $1
		RETURNING id, server_id, name, permissions, color, position
	`, roleID.String(), name, int64(permissions), color, position).Scan(
		&role.ID, &role.ServerID, &role.Name, &role.Permissions, &role.Color, &role.Position,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Role{}, corerr.NotFound("role not found")
		}
		return models.Role{}, corerr.Database(err)
	}
	return role, nil
}

// DeleteRole removes a role; member_roles referencing it cascade.
func (s *Store) DeleteRole(ctx context.Context, roleID models.ULID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, roleID.String())
	if err != nil {
		return corerr.Database(err)
	}
	if tag.RowsAffected() == 0 {
		return corerr.NotFound("role not found")
	}
	return nil
}
