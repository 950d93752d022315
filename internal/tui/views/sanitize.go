package views

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rivo/tview"

	"github.com/matheus3301/pmsync/internal/api"
)

// sanitizeForTerminal removes codepoints tcell cannot lay out reliably: skin
// tone modifiers, zero width joiners and variation selectors. Newlines become
// spaces since each message renders on one table row.
func sanitizeForTerminal(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			b.WriteByte(' ')
		case !isProblematicRune(r):
			b.WriteRune(r)
		}
	}
	return b.String()
}

func isProblematicRune(r rune) bool {
	switch {
	case r >= 0x1F3FB && r <= 0x1F3FF:
		return true
	case r == 0x200D:
		return true
	case r >= 0xFE00 && r <= 0xFE0F:
		return true
	case r >= 0xE0100 && r <= 0xE01EF:
		return true
	default:
		return false
	}
}

// safe prepares backend text for a tview cell.
func safe(s string) string {
	return tview.Escape(sanitizeForTerminal(s))
}

// formatTimestamp renders ms as a clock time for today and a date otherwise.
func formatTimestamp(ms int64, now time.Time) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms).In(now.Location())
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	if t.Year() == now.Year() {
		return t.Format("01/02")
	}
	return t.Format("2006-01-02")
}

// messageBody is the text shown for m: the recall stub, a media label or the
// plain text.
func messageBody(m api.Message) string {
	if m.Recalled {
		if m.DisplayText != "" {
			return m.DisplayText
		}
		return "message recalled"
	}
	if m.Stub {
		return m.DisplayText
	}
	text := m.Text
	if m.DisplayText != "" {
		text = m.DisplayText
	}
	switch m.Type {
	case "image", "video":
		label := fmt.Sprintf("[%s] %s", m.Type, m.MediaURL)
		if text != "" {
			label += " " + text
		}
		return label
	}
	return text
}

// messageFlags marks pending and recallable messages.
func messageFlags(m api.Message) string {
	switch {
	case m.Pending:
		return "…"
	case m.CanRecall:
		return "↺"
	}
	return ""
}
