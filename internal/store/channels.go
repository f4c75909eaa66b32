package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/boreal-chat/boreal/internal/corerr"
	"github.com/boreal-chat/boreal/internal/models"
)

// CreateChannel inserts a new channel belonging to a server.
func (s *Store) CreateChannel(ctx context.Context, serverID models.ULID, name string, channelType models.ChannelType, position int, categoryID *models.ULID) (models.Channel, error) {
	id := models.NewULID()
	var categoryStr *string
	if categoryID != nil {
		v := categoryID.String()
		categoryStr = &v
	}

	var channel models.Channel
	var category *string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO channels (id, server_id, name, type, position, category_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, server_id, name, type, position, category_id
	`, id.String(), serverID.String(), name, string(channelType), position, categoryStr).Scan(
		&channel.ID, &channel.ServerID, &channel.Name, &channel.Type, &channel.Position, &category,
	)
	if err != nil {
		return models.Channel{}, corerr.Database(err)
	}
	if category != nil {
		parsed, err := models.ParseULID(*category)
		if err != nil {
			return models.Channel{}, corerr.Internal(err)
		}
		channel.CategoryID = &parsed
	}
	return channel, nil
}

// ChannelByID looks up a single channel.
func (s *Store) ChannelByID(ctx context.Context, channelID models.ULID) (models.Channel, error) {
	var channel models.Channel
	var category *string
	err := s.pool.QueryRow(ctx, `
		SELECT id, server_id, name, type, position, category_id FROM channels WHERE id = $1
	`, channelID.String()).Scan(
		&channel.ID, &channel.ServerID, &channel.Name, &channel.Type, &channel.Position, &category,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Channel{}, corerr.NotFound("channel not found")
		}
		return models.Channel{}, corerr.Database(err)
	}
	if category != nil {
		parsed, err := models.ParseULID(*category)
		if err != nil {
			return models.Channel{}, corerr.Internal(err)
		}
		channel.CategoryID = &parsed
	}
	return channel, nil
}

// ChannelsForServer lists every channel belonging to a server, ordered by
// position. Used by the gateway's subscribe step and the channel-list
// REST handler.
func (s *Store) ChannelsForServer(ctx context.Context, serverID models.ULID) ([]models.ULID, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM channels WHERE server_id = $1 ORDER BY position
	`, serverID.String())
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

// DeleteChannel removes a channel; messages cascade per the schema's
// foreign key.
func (s *Store) DeleteChannel(ctx context.Context, channelID models.ULID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM channels WHERE id = $1`, channelID.String())
	if err != nil {
		return corerr.Database(err)
	}
	if tag.RowsAffected() == 0 {
		return corerr.NotFound("channel not found")
	}
	return nil
}
