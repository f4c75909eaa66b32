// Package models defines the shared data types for Boreal entities: User,
// Server, Channel, Message, Member, Role, and Ban. Types carry JSON tags for
// API serialization and match the PostgreSQL schema in internal/database's
// embedded migrations.
package models

import "time"

// ZeroULID is the all-zero sentinel identifier. A Server owned by ZeroULID
// is an unclaimed default server; a WebRTCSignal addressed to ZeroULID
// targets the SFU rather than a peer.
var ZeroULID ULID

// User is a federation-wide identity. Created at registration; mutated by
// its owner and by avatar upload; never destroyed by the core.
type User struct {
	ID           ULID      `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	AvatarHash   *string   `json:"avatar_hash,omitempty"`
	PasswordHash string    `json:"-"`
	IdentityKey  []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	LastSeen     time.Time `json:"last_seen"`
}

// Public returns the subset of User fields safe to expose to other users.
func (u User) Public() UserPublic {
	return UserPublic{
		ID:          u.ID,
		Username:    u.Username,
		DisplayName: u.DisplayName,
		AvatarHash:  u.AvatarHash,
	}
}

// UserPublic is the denormalized, federation-safe view of a User.
type UserPublic struct {
	ID          ULID    `json:"id"`
	Username    string  `json:"username"`
	DisplayName string  `json:"display_name"`
	AvatarHash  *string `json:"avatar_hash,omitempty"`
}

// Server is a community container. A Server owned by ZeroULID is the
// unclaimed default server; the first user to join claims it via atomic
// ownership transfer.
type Server struct {
	ID          ULID      `json:"id"`
	Name        string    `json:"name"`
	IconHash    *string   `json:"icon_hash,omitempty"`
	OwnerID     ULID      `json:"owner_id"`
	E2EEEnabled bool      `json:"e2ee_enabled"`
	CreatedAt   time.Time `json:"created_at"`
}

// ChannelType enumerates the kinds of channel a Server can contain.
type ChannelType string

const (
	ChannelText         ChannelType = "text"
	ChannelVoice        ChannelType = "voice"
	ChannelAnnouncement ChannelType = "announcement"
)

// Channel belongs to exactly one Server. Destruction cascades to messages.
type Channel struct {
	ID         ULID        `json:"id"`
	ServerID   ULID        `json:"server_id"`
	Name       string      `json:"name"`
	Type       ChannelType `json:"type"`
	Position   int         `json:"position"`
	CategoryID *ULID       `json:"category_id,omitempty"`
}

// Message is identified by a 63-bit Snowflake, sortable and suitable as a
// pagination cursor.
type Message struct {
	ID        int64      `json:"id,string"`
	ChannelID ULID       `json:"channel_id"`
	AuthorID  ULID       `json:"author_id"`
	Content   string     `json:"content"`
	Nonce     *string    `json:"nonce,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	EditedAt  *time.Time `json:"edited_at,omitempty"`
	ReplyToID *int64     `json:"reply_to_id,omitempty,string"`
	IsDeleted bool       `json:"is_deleted"`

	Author *UserPublic `json:"author,omitempty"`
}

// Member is the (user, server) relation.
type Member struct {
	UserID   ULID      `json:"user_id"`
	ServerID ULID      `json:"server_id"`
	Nickname *string   `json:"nickname,omitempty"`
	JoinedAt time.Time `json:"joined_at"`

	RoleIDs []ULID          `json:"role_ids,omitempty"`
	User    *UserPublic     `json:"user,omitempty"`
	Status  *PresenceStatus `json:"status,omitempty"`
}

// Role belongs to a Server. Every Server has an implicit @everyone role
// carrying a default bitmask (represented in storage as the role whose ID
// equals its Server's ID, by convention of internal/store).
type Role struct {
	ID          ULID   `json:"id"`
	ServerID    ULID   `json:"server_id"`
	Name        string `json:"name"`
	Permissions uint64 `json:"permissions"`
	Color       int32  `json:"color"`
	Position    int    `json:"position"`
}

// Ban is a (server, user) pair whose existence prevents re-join.
type Ban struct {
	ServerID ULID      `json:"server_id"`
	UserID   ULID      `json:"user_id"`
	Reason   *string   `json:"reason,omitempty"`
	BannedAt time.Time `json:"banned_at"`

	User *UserPublic `json:"user,omitempty"`
}

// PresenceStatus is a user's derived, transient online status.
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusIdle    PresenceStatus = "idle"
	StatusDND     PresenceStatus = "dnd"
	StatusOffline PresenceStatus = "offline"
)

// VoiceParticipant is a transient (user, channel) pair tracked only by the
// in-process voice registry, never persisted.
type VoiceParticipant struct {
	UserID    ULID        `json:"user_id"`
	ChannelID ULID        `json:"channel_id"`
	Muted     bool        `json:"muted"`
	Deafened  bool        `json:"deafened"`
	User      *UserPublic `json:"user,omitempty"`
}
