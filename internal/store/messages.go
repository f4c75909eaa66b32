package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/boreal-chat/boreal/internal/corerr"
	"github.com/boreal-chat/boreal/internal/models"
	"github.com/boreal-chat/boreal/internal/snowflake"
)

// CreateMessage inserts a message under a freshly minted Snowflake id and
// attaches the author's public profile to the returned value.
func (s *Store) CreateMessage(ctx context.Context, gen *snowflake.Generator, channelID, authorID models.ULID, content string, nonce *string, replyToID *int64) (models.Message, error) {
	id := gen.Next()

	var msg models.Message
	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (id, channel_id, author_id, content, nonce, created_at, reply_to_id)
		VALUES ($1, $2, $3, $4, $5, now(), $6)
		RETURNING id, channel_id, author_id, content, nonce, created_at, edited_at, reply_to_id, is_deleted
	`, id, channelID.String(), authorID.String(), content, nonce, replyToID).Scan(
		&msg.ID, &msg.ChannelID, &msg.AuthorID, &msg.Content, &msg.Nonce,
		&msg.CreatedAt, &msg.EditedAt, &msg.ReplyToID, &msg.IsDeleted,
	)
	if err != nil {
		return models.Message{}, corerr.Database(err)
	}

	author, err := s.UserPublicByID(ctx, authorID)
	if err != nil {
		return models.Message{}, err
	}
	msg.Author = &author
	return msg, nil
}

// MessagesForChannel returns up to limit messages from a channel, newest
// first. When before is non-nil, only messages with id < *before are
// returned — spec's resolved semantics for the `before` pagination cursor
// (fetch-by-id, independent of whether that id still exists).
func (s *Store) MessagesForChannel(ctx context.Context, channelID models.ULID, before *int64, limit int) ([]models.Message, error) {
	var rows pgx.Rows
	var err error
	if before != nil {
		rows, err = s.pool.Query(ctx, `
			SELECT m.id, m.channel_id, m.author_id, m.content, m.nonce, m.created_at, m.edited_at, m.reply_to_id, m.is_deleted,
			       u.username, u.display_name, u.avatar_hash
			FROM messages m JOIN users u ON u.id = m.author_id
			WHERE m.channel_id = $1 AND m.id < $2 AND m.is_deleted = false
			ORDER BY m.id DESC LIMIT $3
		`, channelID.String(), *before, limit)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT m.id, m.channel_id, m.author_id, m.content, m.nonce, m.created_at, m.edited_at, m.reply_to_id, m.is_deleted,
			       u.username, u.display_name, u.avatar_hash
			FROM messages m JOIN users u ON u.id = m.author_id
			WHERE m.channel_id = $1 AND m.is_deleted = false
			ORDER BY m.id DESC LIMIT $2
		`, channelID.String(), limit)
	}
	if err != nil {
		return nil, corerr.Database(err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var msg models.Message
		var author models.UserPublic
		if err := rows.Scan(
			&msg.ID, &msg.ChannelID, &msg.AuthorID, &msg.Content, &msg.Nonce,
			&msg.CreatedAt, &msg.EditedAt, &msg.ReplyToID, &msg.IsDeleted,
			&author.Username, &author.DisplayName, &author.AvatarHash,
		); err != nil {
			return nil, corerr.Database(err)
		}
		author.ID = msg.AuthorID
		msg.Author = &author
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, corerr.Database(err)
	}
	return messages, nil
}

// UpdateMessageContent edits a message's content and stamps edited_at,
// returning corerr.NotFound if it does not exist.
func (s *Store) UpdateMessageContent(ctx context.Context, messageID int64, content string) (models.Message, error) {
	var msg models.Message
	err := s.pool.QueryRow(ctx, `
		UPDATE messages SET content = $2, edited_at = now()
		WHERE id = $1 AND is_deleted = false
		RETURNING id, channel_id, author_id, content, nonce, created_at, edited_at, reply_to_id, is_deleted
	`, messageID, content).Scan(
		&msg.ID, &msg.ChannelID, &msg.AuthorID, &msg.Content, &msg.Nonce,
		&msg.CreatedAt, &msg.EditedAt, &msg.ReplyToID, &msg.IsDeleted,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Message{}, corerr.NotFound("message not found")
		}
		return models.Message{}, corerr.Database(err)
	}
	return msg, nil
}

// MessageByID looks up a single message, including deleted ones, for
// permission checks (author-or-MANAGE_MESSAGES) before delete/edit.
func (s *Store) MessageByID(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	err := s.pool.QueryRow(ctx, `
		SELECT id, channel_id, author_id, content, nonce, created_at, edited_at, reply_to_id, is_deleted
		FROM messages WHERE id = $1
	`, messageID).Scan(
		&msg.ID, &msg.ChannelID, &msg.AuthorID, &msg.Content, &msg.Nonce,
		&msg.CreatedAt, &msg.EditedAt, &msg.ReplyToID, &msg.IsDeleted,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Message{}, corerr.NotFound("message not found")
		}
		return models.Message{}, corerr.Database(err)
	}
	return msg, nil
}

// DeleteMessage hard-deletes a message row. The MessageDelete gateway
// event's is_deleted field is always true independent of this call.
func (s *Store) DeleteMessage(ctx context.Context, messageID int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM messages WHERE id = $1`, messageID)
	if err != nil {
		return corerr.Database(err)
	}
	if tag.RowsAffected() == 0 {
		return corerr.NotFound("message not found")
	}
	return nil
}
