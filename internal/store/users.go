package store

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/boreal-chat/boreal/internal/corerr"
	"github.com/boreal-chat/boreal/internal/models"
)

// CreateUser inserts a new user with a lowercased uniqueness key derived
// from username, returning corerr.Conflict if the username is already
// taken (case-insensitively).
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (models.User, error) {
	id := models.NewULID()
	var user models.User
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, username, username_lower, display_name, password_hash, created_at, last_seen)
		VALUES ($1, $2, $3, $2, $4, now(), now())
		RETURNING id, username, display_name, avatar_hash, password_hash, identity_key, created_at, last_seen
	`, id.String(), username, strings.ToLower(username), passwordHash).Scan(
		&user.ID, &user.Username, &user.DisplayName, &user.AvatarHash,
		&user.PasswordHash, &user.IdentityKey, &user.CreatedAt, &user.LastSeen,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, corerr.Conflict("username is already taken")
		}
		return models.User{}, corerr.Database(err)
	}
	return user, nil
}

// UserByUsername looks up a user case-insensitively.
func (s *Store) UserByUsername(ctx context.Context, username string) (models.User, error) {
	var user models.User
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, display_name, avatar_hash, password_hash, identity_key, created_at, last_seen
		FROM users WHERE username_lower = $1
	`, strings.ToLower(username)).Scan(
		&user.ID, &user.Username, &user.DisplayName, &user.AvatarHash,
		&user.PasswordHash, &user.IdentityKey, &user.CreatedAt, &user.LastSeen,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, corerr.NotFound("user not found")
		}
		return models.User{}, corerr.Database(err)
	}
	return user, nil
}

// UserByID looks up a user by id.
func (s *Store) UserByID(ctx context.Context, userID models.ULID) (models.User, error) {
	var user models.User
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, display_name, avatar_hash, password_hash, identity_key, created_at, last_seen
		FROM users WHERE id = $1
	`, userID.String()).Scan(
		&user.ID, &user.Username, &user.DisplayName, &user.AvatarHash,
		&user.PasswordHash, &user.IdentityKey, &user.CreatedAt, &user.LastSeen,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, corerr.NotFound("user not found")
		}
		return models.User{}, corerr.Database(err)
	}
	return user, nil
}

// UserPublicByID is the denormalized view used by the gateway's Ready
// frame and message/member/ban author attachment.
func (s *Store) UserPublicByID(ctx context.Context, userID models.ULID) (models.UserPublic, error) {
	user, err := s.UserByID(ctx, userID)
	if err != nil {
		return models.UserPublic{}, err
	}
	return user.Public(), nil
}

// UpdateLastSeen bumps a user's last-seen timestamp to now.
func (s *Store) UpdateLastSeen(ctx context.Context, userID models.ULID) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET last_seen = now() WHERE id = $1`, userID.String())
	if err != nil {
		return corerr.Database(err)
	}
	return nil
}

// UpdateAvatar sets a user's avatar content hash after a successful
// upload.
func (s *Store) UpdateAvatar(ctx context.Context, userID models.ULID, hash string) error {
	_, err := s.pool.Exec(ctx, `UPDATE users SET avatar_hash = $2 WHERE id = $1`, userID.String(), hash)
	if err != nil {
		return corerr.Database(err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
