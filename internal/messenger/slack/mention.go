package slack

import (
	"regexp"
	"strings"
)

// mentionPattern matches Slack-encoded user mentions (<@U12345> or <@U12345|name>).
var mentionPattern = regexp.MustCompile(`<@[A-Z0-9]+(?:\|[^>]*)?>`) //nolint:gochecknoglobals // compiled regexp

// StripMention removes user mentions, typically the bot's own, and collapses
// the surrounding whitespace.
func StripMention(text string) string {
	return strings.Join(strings.Fields(mentionPattern.ReplaceAllString(text, " ")), " ")
}
