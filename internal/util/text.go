package util

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var reSpaces = regexp.MustCompile(`\s+`)

// NormalizeAlnum uppercases input and keeps only ASCII letters and digits.
func NormalizeAlnum(input string) string {
	s := strings.ToUpper(input)
	out := strings.Builder{}
	out.Grow(len(s))
	for _, r := range s {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out.WriteRune(r)
		}
	}
	return out.String()
}

func CollapseSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

func TitleCase(input string) string {
	return cases.Title(language.English).String(input)
}

// SplitLines returns the trimmed, non-empty lines of text.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
