package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/boreal-chat/boreal/internal/corerr"
	"github.com/boreal-chat/boreal/internal/models"
)

// MembersForServer lists every member of a server, joined with their
// public user profile and role ids, ordered by join time.
func (s *Store) MembersForServer(ctx context.Context, serverID models.ULID) ([]models.Member, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT m.user_id, m.server_id, m.nickname, m.joined_at,
		       u.username, u.display_name, u.avatar_hash
		FROM members m JOIN users u ON u.id = m.user_id
		WHERE m.server_id = $1
		ORDER BY m.joined_at
	`, serverID.String())
	if err != nil {
		return nil, corerr.Database(err)
	}
	defer rows.Close()

	var members []models.Member
	for rows.Next() {
		var member models.Member
		var user models.UserPublic
		if err := rows.Scan(
			&member.UserID, &member.ServerID, &member.Nickname, &member.JoinedAt,
			&user.Username, &user.DisplayName, &user.AvatarHash,
		); err != nil {
			return nil, corerr.Database(err)
		}
		user.ID = member.UserID
		member.User = &user
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, corerr.Database(err)
	}

	for i := range members {
		roleIDs, err := s.roleIDsForMember(ctx, members[i].ServerID, members[i].UserID)
		if err != nil {
			return nil, err
		}
		members[i].RoleIDs = roleIDs
	}
	return members, nil
}

// MemberByID looks up a single (server, user) membership.
func (s *Store) MemberByID(ctx context.Context, serverID, userID models.ULID) (models.Member, error) {
	var member models.Member
	err := s.pool.QueryRow(ctx, `
		SELECT user_id, server_id, nickname, joined_at FROM members WHERE server_id = $1 AND user_id = $2
	`, serverID.String(), userID.String()).Scan(&member.UserID, &member.ServerID, &member.Nickname, &member.JoinedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Member{}, corerr.NotFound("member not found")
		}
		return models.Member{}, corerr.Database(err)
	}
	roleIDs, err := s.roleIDsForMember(ctx, serverID, userID)
	if err != nil {
		return models.Member{}, err
	}
	member.RoleIDs = roleIDs
	return member, nil
}

// RemoveMember removes a (server, user) membership, for KICK_MEMBERS and
// leave.
func (s *Store) RemoveMember(ctx context.Context, serverID, userID models.ULID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM members WHERE server_id = $1 AND user_id = $2`, serverID.String(), userID.String())
	if err != nil {
		return corerr.Database(err)
	}
	if tag.RowsAffected() == 0 {
		return corerr.NotFound("member not found")
	}
	return nil
}

// AssignRole grants a role to a member.
func (s *Store) AssignRole(ctx context.Context, serverID, userID, roleID models.ULID) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO member_roles (user_id, server_id, role_id) VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, userID.String(), serverID.String(), roleID.String())
	if err != nil {
		return corerr.Database(err)
	}
	return nil
}

// UnassignRole revokes a role from a member.
func (s *Store) UnassignRole(ctx context.Context, serverID, userID, roleID models.ULID) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM member_roles WHERE user_id = $1 AND server_id = $2 AND role_id = $3
	`, userID.String(), serverID.String(), roleID.String())
	if err != nil {
		return corerr.Database(err)
	}
	return nil
}

func (s *Store) roleIDsForMember(ctx context.Context, serverID, userID models.ULID) ([]models.ULID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT role_id FROM member_roles WHERE server_id = $1 AND user_id = $2
	`, serverID.String(), userID.String())
	if err != nil {
		return nil, corerr.Database(err)
	}
	defer rows.Close()

	var roleIDs []models.ULID
	for rows.Next() {
		var id models.ULID
		if err := rows.Scan(&id); err != nil {
			return nil, corerr.Database(err)
		}
		roleIDs = append(roleIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, corerr.Database(err)
	}
	return roleIDs, nil
}
