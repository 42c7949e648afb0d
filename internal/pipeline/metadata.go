package pipeline

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"partsuite/internal"
	"partsuite/internal/util"
)

var tokenPattern = regexp.MustCompile(`\S+`)

const unknownType = "unknown"

// ParseMetadata reads the invoice number, type and date from the first page
// of a section.
func (r *Rules) ParseMetadata(text string) (internal.InvoiceMetadata, error) {
	var md internal.InvoiceMetadata

	m := r.number.FindStringSubmatch(text)
	if m == nil {
		return md, fmt.Errorf("%w: no %q field", internal.ErrInvalidNumber, r.profile.BoundaryLabel)
	}
	md.NumberRaw = r.numberValue(m[1])
	md.NumberNorm = util.NormalizeAlnum(md.NumberRaw)

	prefix := r.profile.NumberPrefix
	if !strings.HasPrefix(md.NumberNorm, prefix) {
		return md, fmt.Errorf("%w: %q does not start with %s", internal.ErrInvalidNumber, md.NumberNorm, prefix)
	}
	tm := typeCodePattern.FindStringSubmatch(md.NumberNorm[len(prefix):])
	if tm == nil {
		return md, fmt.Errorf("%w: %q has no type code and digits after %s", internal.ErrInvalidTypeCode, md.NumberNorm, prefix)
	}
	md.TypeCode = tm[1]
	md.Digits = tm[2]
	md.Key = md.TypeCode + md.Digits
	md.TypeDesc = unknownType
	if desc, ok := r.profile.InvoiceTypes[md.TypeCode]; ok {
		md.TypeDesc = desc
	}

	md.DateRaw = r.dateValue(text)
	md.DateISO = isoDate(md.DateRaw)
	return md, nil
}

// numberValue trims the greedy label capture down to the invoice number. It
// stops at the next label word. Once a complete number has been read it also
// stops at a line break or at a token that starts with a letter.
func (r *Rules) numberValue(capture string) string {
	end := 0
	var seen strings.Builder
	for _, loc := range tokenPattern.FindAllStringIndex(capture, -1) {
		tok := capture[loc[0]:loc[1]]
		if len(tok) >= 3 && isLetters(tok) {
			break
		}
		if r.fullNumber.MatchString(util.NormalizeAlnum(seen.String())) {
			first, _ := utf8.DecodeRuneInString(tok)
			if strings.Contains(capture[end:loc[0]], "\n") || unicode.IsLetter(first) {
				break
			}
		}
		seen.WriteString(tok)
		end = loc[1]
	}
	return strings.TrimSpace(capture[:end])
}

func (r *Rules) dateValue(text string) string {
	if m := r.dateStrict.FindStringSubmatch(text); m != nil {
		return util.CollapseSpaces(m[1])
	}
	if m := r.dateLoose.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func isoDate(raw string) string {
	if raw == "" {
		return ""
	}
	s := util.CollapseSpaces(util.TitleCase(raw))
	s = commaPattern.ReplaceAllString(s, ", ")
	for _, layout := range []string{"January 2, 2006", "January 2 2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return ""
}

func isLetters(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
