// Package textfeat extracts simple counters from a message text: words, links, emoji, phones,
// invite links and the share of upper-case letters. These are the same features rspamd rules look at,
// and they are used locally for reply anti-evasion checks and for training metadata.
package textfeat

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/forPelevin/gomoji"
)

var phoneRe = regexp.MustCompile(`\+\d[\d\-\s\(\)]{7,}\d`)

var invitePrefixes = []string{"t.me/joinchat", "telegram.me/joinchat", "t.me/+"}

// Features is a set of counters extracted from a text
type Features struct {
	WordCount   int     `json:"word_count"`
	LinkCount   int     `json:"link_count"`
	EmojiCount  int     `json:"emoji_count"`
	PhoneCount  int     `json:"phone_count"`
	InviteCount int     `json:"invite_count"`
	CapsRatio   float64 `json:"caps_ratio"`
	Letters     int     `json:"letters"`
}

// Extract calculates all features of the text
func Extract(text string) Features {
	return Features{
		WordCount:   len(strings.Fields(text)),
		LinkCount:   CountLinks(text),
		EmojiCount:  CountEmoji(text),
		PhoneCount:  CountPhones(text),
		InviteCount: CountInvites(text),
		CapsRatio:   CapsRatio(text),
		Letters:     countLetters(text),
	}
}

// CountLinks returns number of http and www occurrences, so "http://www.example.com" counts twice.
func CountLinks(text string) int {
	lower := strings.ToLower(text)
	return strings.Count(lower, "http") + strings.Count(lower, "www")
}

// CountEmoji returns number of emoji in the text, sequences like flags count as one
func CountEmoji(text string) int {
	return len(gomoji.CollectAll(text))
}

// CountPhones returns number of phone-like sequences in international format
func CountPhones(text string) int {
	return len(phoneRe.FindAllString(text, -1))
}

// CountInvites returns number of telegram invite links
func CountInvites(text string) int {
	lower := strings.ToLower(text)
	res := 0
	for _, p := range invitePrefixes {
		res += strings.Count(lower, p)
	}
	return res
}

// CapsRatio returns ratio of upper-case letters to all letters, 0 if no letters
func CapsRatio(text string) float64 {
	letters, upper := 0, 0
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}

func countLetters(text string) int {
	res := 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			res++
		}
	}
	return res
}
