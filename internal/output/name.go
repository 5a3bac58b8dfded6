package output

import (
	"strings"
	"time"
	"unicode"
)

// maxHintRunes bounds the sanitized hint segment of a generated file name.
const maxHintRunes = 25

// MakeName builds a collision-resistant, human-traceable file name of the
// form "{tag}_{hint}_{YYYYMMDD_HHMMSS}.{ext}".
//
// When fullID is set the hint is an opaque identifier (e.g. a generated voice
// id) and is used verbatim so the resulting file stays greppable by id.
// Otherwise the hint is slugged down to a bounded run of filesystem-safe
// characters. The second-resolution timestamp means two calls within the same
// second for the same tag+hint produce the same name; last writer wins, by
// policy.
func MakeName(tag, hint, ext string, fullID bool) string {
	return makeNameAt(tag, hint, ext, fullID, time.Now())
}

func makeNameAt(tag, hint, ext string, fullID bool, now time.Time) string {
	h := hint
	if !fullID {
		h = slugify(hint, maxHintRunes)
	}
	stamp := now.Format("20060102_150405")
	return tag + "_" + h + "_" + stamp + "." + strings.TrimPrefix(strings.TrimSpace(ext), ".")
}

// slugify collapses whitespace runs to single underscores, drops path
// separators and control characters, and truncates to max runes. An empty
// result degrades to "output" so names never contain a bare double
// underscore.
func slugify(s string, max int) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		case r == '/' || r == '\\' || r == ':' || unicode.IsControl(r):
			// path separators and control characters never survive
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			// everything else (quotes, punctuation, emoji) is dropped
		}
	}

	out := strings.Trim(b.String(), "_")
	runes := []rune(out)
	if len(runes) > max {
		out = strings.Trim(string(runes[:max]), "_")
	}
	if out == "" {
		return "output"
	}
	return out
}
