package monitor

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// FallbackResolutionMessage replaces a support reply that is empty or
// nothing but portal chrome once cleaned.
const FallbackResolutionMessage = "Your support case has been resolved, but the support team's reply could not be read. " +
	"Please check the case on the manufacturer portal using your tracking number."

// minResponseLength is the shortest cleaned reply, in runes, shown to users.
const minResponseLength = 15

const (
	leadingSeparators  = " \t-–—:|,;.>»•·"
	trailingSeparators = " \t-–—:|,;>»•·"
)

var (
	whitespacePattern = regexp.MustCompile(`\s+`)

	// Fragments the portal leaves around the reply, removed wherever they occur.
	boilerplatePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?s)©.*$`),
		regexp.MustCompile(`(?i)\bhttps?://\S*|\bwww\.\S+`),
		regexp.MustCompile(`(?i)\b(?:January|February|March|April|May|June|July|August|September|October|November|December)\s+\d{1,2},\s+\d{4}(?:\s+at\s+\d{1,2}:\d{2}\s*(?:AM|PM)\b)?`),
		regexp.MustCompile(`(?i)\bSUP-[A-Z0-9]+\b`),
		regexp.MustCompile(`(?i)\bstatus\s*:\s*(?:resolved|open|pending|closed)\b`),
		regexp.MustCompile(`(?i)\b(?:TechManufacture\s+ProSupport\s+Portal|ProSupport\s+Portal|TechManufacture|Submit\s+(?:a\s+)?Case|Check\s+Status|Send\s+Reminder|Search\s+Current\s+Status|Current\s+Status|Task\s+Number|Support\s+Team\s+Response|All\s+rights\s+reserved)\b`),
	}

	// Single-word menu items are only chrome when they lead the text.
	leadingMenuPattern = regexp.MustCompile(`(?i)^(?:(?:menu|home|admin|reminder|dashboard|navigation)\b[\s:|>»-]*)+`)
)

// FormatResolutionResponse turns the raw reply scraped from the portal into
// text fit to show a user. It is idempotent.
func FormatResolutionResponse(raw string) string {
	text := stripBoilerplate(raw)
	if utf8.RuneCountInString(text) < minResponseLength {
		return FallbackResolutionMessage
	}

	first, size := utf8.DecodeRuneInString(text)
	if unicode.IsLower(first) {
		text = string(unicode.ToUpper(first)) + text[size:]
	}
	if !strings.ContainsRune(".!?", lastRune(text)) {
		text += "."
	}
	return text
}

// stripBoilerplate removes portal fragments until nothing more matches;
// removing one fragment can expose a leading menu word behind it.
func stripBoilerplate(s string) string {
	for {
		prev := s
		for _, p := range boilerplatePatterns {
			s = p.ReplaceAllString(s, " ")
		}
		s = strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
		s = leadingMenuPattern.ReplaceAllString(s, "")
		s = strings.TrimLeft(s, leadingSeparators)
		s = strings.TrimRight(s, trailingSeparators)
		if s == prev {
			return s
		}
	}
}

func lastRune(s string) rune {
	r, _ := utf8.DecodeLastRuneInString(s)
	return r
}

// ResolutionMessage is the markdown pushed into the chat session when a
// case resolves.
func ResolutionMessage(taskNumber, formatted string) string {
	return fmt.Sprintf("✅ **YOUR SUPPORT CASE HAS BEEN RESOLVED!**\n\n"+
		"📋 **Tracking Number:** `%s`\n\n"+
		"**Support Team Response:**\n\n%s\n\n"+
		"---\nIf you have any further questions, feel free to ask!", taskNumber, formatted)
}
