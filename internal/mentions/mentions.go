// Package mentions implements message content validation, mention parsing,
// and sanitization for Boreal chat messages.
package mentions

import (
	"fmt"
	"strings"

	"github.com/boreal-chat/boreal/internal/corerr"
	"github.com/boreal-chat/boreal/internal/models"
)

// MaxMessageLength is the maximum accepted message content length, in runes.
const MaxMessageLength = 4000

// Kind discriminates the three mention forms a message can contain.
type Kind int

const (
	KindUser Kind = iota
	KindRole
	KindChannel
)

// Mention is one parsed mention, in the document order it was found.
type Mention struct {
	Kind Kind
	ID   models.ULID
}

// Parse extracts every well-formed <@id> (user), <@&id> (role), and <#id>
// (channel) mention from content with a single left-to-right scan,
// preserving document order. Malformed or unparseable ids are skipped
// without aborting the scan. Strings with no well-formed mentions yield a
// nil slice.
func Parse(content string) []Mention {
	var out []Mention
	runes := []rune(content)
	i := 0
	for i < len(runes) {
		if runes[i] != '<' || i+1 >= len(runes) {
			i++
			continue
		}
		switch runes[i+1] {
		case '@':
			if i+2 < len(runes) && runes[i+2] == '&' {
				id, rest, ok := scanID(runes, i+3)
				if ok {
					if parsed, err := models.ParseULID(id); err == nil {
						out = append(out, Mention{Kind: KindRole, ID: parsed})
					}
				}
				i = rest
				continue
			}
			id, rest, ok := scanID(runes, i+2)
			if ok {
				if parsed, err := models.ParseULID(id); err == nil {
					out = append(out, Mention{Kind: KindUser, ID: parsed})
				}
			}
			i = rest
			continue
		case '#':
			id, rest, ok := scanID(runes, i+2)
			if ok {
				if parsed, err := models.ParseULID(id); err == nil {
					out = append(out, Mention{Kind: KindChannel, ID: parsed})
				}
			}
			i = rest
			continue
		default:
			i++
		}
	}
	return out
}

// scanID reads runes from start until a '>' and returns the collected
// string, the index just past the '>' (or end of input if none was found),
// and whether a closing '>' was actually found.
func scanID(runes []rune, start int) (string, int, bool) {
	var b strings.Builder
	i := start
	for i < len(runes) && runes[i] != '>' {
		b.WriteRune(runes[i])
		i++
	}
	if i >= len(runes) {
		return "", i, false
	}
	return b.String(), i + 1, true
}

// Sanitize strips control bytes other than '\n' and '\t', then trims
// surrounding whitespace. It is idempotent: Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(content string) string {
	var b strings.Builder
	b.Grow(len(content))
	for _, r := range content {
		if r == '\n' || r == '\t' || !isControl(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f
}

// ValidateLength rejects empty or overlong message content.
func ValidateLength(content string) error {
	n := len([]rune(content))
	if n == 0 {
		return corerr.BadRequest("message cannot be empty")
	}
	if n > MaxMessageLength {
		return corerr.BadRequest(fmt.Sprintf("message exceeds maximum length of %d characters", MaxMessageLength))
	}
	return nil
}
