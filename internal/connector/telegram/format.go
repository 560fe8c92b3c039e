package telegram

import (
	"regexp"
	"strings"
)

// Replies are conversational prose: bold, italic, inline code, links, and
// bullet lists. Order matters — code spans are protected before the other
// rules run.
var (
	reInlineCode = regexp.MustCompile("`([^`]+)`")
	reBold       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	reItalic     = regexp.MustCompile(`\*(.+?)\*`)
	reLink       = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	reBullet     = regexp.MustCompile(`^(\s*)[-*] `)
)

// MarkdownToTelegramHTML converts assistant Markdown to Telegram's HTML
// subset, line by line.
func MarkdownToTelegramHTML(md string) string {
	lines := strings.Split(md, "\n")
	for i, line := range lines {
		lines[i] = processInline(line)
	}
	return strings.Join(lines, "\n")
}

func processInline(line string) string {
	// Protect inline code spans first
	type codeSpan struct {
		placeholder string
		html        string
	}
	var spans []codeSpan
	counter := 0

	line = reInlineCode.ReplaceAllStringFunc(line, func(match string) string {
		inner := reInlineCode.FindStringSubmatch(match)[1]
		placeholder := "\x00CODE" + string(rune('A'+counter)) + "\x00"
		counter++
		spans = append(spans, codeSpan{
			placeholder: placeholder,
			html:        "<code>" + escapeHTML(inner) + "</code>",
		})
		return placeholder
	})

	line = escapeHTML(line)
	line = reBullet.ReplaceAllString(line, "$1• ")

	// Bold before italic (** before *)
	line = reBold.ReplaceAllString(line, "<b>$1</b>")
	line = reItalic.ReplaceAllString(line, "<i>$1</i>")
	line = reLink.ReplaceAllString(line, `<a href="$2">$1</a>`)

	for _, s := range spans {
		line = strings.Replace(line, escapeHTML(s.placeholder), s.html, 1)
	}
	return line
}

func escapeHTML(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

// StripMarkdown removes formatting, returning plain text for the fallback
// send path.
func StripMarkdown(md string) string {
	result := reInlineCode.ReplaceAllString(md, "$1")
	result = reBold.ReplaceAllString(result, "$1")
	result = reItalic.ReplaceAllString(result, "$1")
	result = reLink.ReplaceAllString(result, "$1 ($2)")
	return result
}
