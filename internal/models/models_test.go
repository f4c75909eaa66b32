package models

import "testing"

func TestZeroULIDIsZeroValue(t *testing.T) {
	if !ZeroULID.IsZero() {
		t.Fatalf("ZeroULID.IsZero() = false, want true")
	}
}

func TestUserPublicOmitsSecrets(t *testing.T) {
	u := User{
		ID:           NewULID(),
		Username:     "alice",
		DisplayName:  "Alice",
		PasswordHash: "$argon2id$...",
	}
	pub := u.Public()
	if pub.Username != u.Username || pub.DisplayName != u.DisplayName {
		t.Fatalf("Public() dropped fields it should keep: %+v", pub)
	}
}

func TestChannelTypeConstantsAreDistinct(t *testing.T) {
	seen := map[ChannelType]bool{}
	for _, ct := range []ChannelType{ChannelText, ChannelVoice, ChannelAnnouncement} {
		if seen[ct] {
			t.Fatalf("duplicate channel type %q", ct)
		}
		seen[ct] = true
	}
}

func TestPresenceStatusConstantsAreDistinct(t *testing.T) {
	seen := map[PresenceStatus]bool{}
	for _, s := range []PresenceStatus{StatusOnline, StatusIdle, StatusDND, StatusOffline} {
		if seen[s] {
			t.Fatalf("duplicate presence status %q", s)
		}
		seen[s] = true
	}
}
