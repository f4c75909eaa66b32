package mentions

import (
	"strings"
	"testing"

	"github.com/boreal-chat/boreal/internal/models"
)

func TestParseOrderAndKinds(t *testing.T) {
	u := models.NewULID()
	r := models.NewULID()
	c := models.NewULID()

	content := "hey <@" + u.String() + "> check <#" + c.String() + "> and <@&" + r.String() + ">"
	got := Parse(content)
	if len(got) != 3 {
		t.Fatalf("Parse returned %d mentions, want 3: %+v", len(got), got)
	}
	if got[0].Kind != KindUser || got[0].ID != u {
		t.Fatalf("mention 0 = %+v, want user %s", got[0], u)
	}
	if got[1].Kind != KindChannel || got[1].ID != c {
		t.Fatalf("mention 1 = %+v, want channel %s", got[1], c)
	}
	if got[2].Kind != KindRole || got[2].ID != r {
		t.Fatalf("mention 2 = %+v, want role %s", got[2], r)
	}
}

func TestParseNoMentionsYieldsEmpty(t *testing.T) {
	if got := Parse("just some plain text, no angle brackets"); got != nil {
		t.Fatalf("Parse = %+v, want nil", got)
	}
}

func TestParseSkipsMalformedIDs(t *testing.T) {
	got := Parse("<@not-a-valid-ulid> and <@&also-bad>")
	if len(got) != 0 {
		t.Fatalf("Parse = %+v, want empty", got)
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	input := "  Hello\x00World\x01!  "
	once := Sanitize(input)
	twice := Sanitize(once)
	if once != twice {
		t.Fatalf("Sanitize not idempotent: %q != %q", once, twice)
	}
}

func TestSanitizeStripsControlPreservesNewlineTab(t *testing.T) {
	input := "Hello\nWorld\tFoo\x00\x01Bar"
	got := Sanitize(input)
	want := "Hello\nWorld\tFooBar"
	if got != want {
		t.Fatalf("Sanitize = %q, want %q", got, want)
	}
}

func TestSanitizeTrimsSurroundingWhitespace(t *testing.T) {
	if got := Sanitize("   hi   "); got != "hi" {
		t.Fatalf("Sanitize = %q, want %q", got, "hi")
	}
}

func TestValidateLengthRejectsEmptyAndTooLong(t *testing.T) {
	if err := ValidateLength(""); err == nil {
		t.Fatal("expected error for empty content")
	}
	if err := ValidateLength("hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	long := strings.Repeat("a", MaxMessageLength+1)
	if err := ValidateLength(long); err == nil {
		t.Fatal("expected error for too-long content")
	}
}
