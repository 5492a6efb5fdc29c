package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// minTitleRunes drops lines shorter than this after marker stripping.
const minTitleRunes = 3

var (
	bulletPrefixRE   = regexp.MustCompile(`^[-•*]\s*`)
	numberedPrefixRE = regexp.MustCompile(`^\d+\.\s*`)
)

// ExtractLocal splits text into one candidate per meaningful line using the
// default classifier. It never fails; output preserves line order.
func ExtractLocal(text string) []Candidate {
	return Classifier{}.ExtractLocal(text)
}

// ExtractLocal is ExtractLocal with this classifier's clock.
func (c Classifier) ExtractLocal(text string) []Candidate {
	lines := strings.Split(text, "\n")
	out := make([]Candidate, 0, len(lines))
	for _, line := range lines {
		title := StripListMarker(line)
		if utf8.RuneCountInString(title) < minTitleRunes {
			continue
		}
		cls := c.Classify(title)
		out = append(out, Candidate{
			Title:    title,
			Category: cls.Category,
			Priority: cls.Priority,
			DueDate:  cls.DueDate,
		})
	}
	return out
}

// StripListMarker trims line and removes one leading bullet ("-", "•", "*")
// and then one leading "N." numbering marker.
func StripListMarker(line string) string {
	s := strings.TrimSpace(line)
	s = bulletPrefixRE.ReplaceAllString(s, "")
	s = numberedPrefixRE.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}
