package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"

	"github.com/matheus3301/pmsync/internal/api"
	"github.com/matheus3301/pmsync/internal/tui/ui"
)

// ConversationInfo shows what is known about the open conversation.
type ConversationInfo struct {
	*tview.TextView
	theme *ui.Theme
	now   func() time.Time
}

// NewConversationInfo creates the details page.
func NewConversationInfo(theme *ui.Theme) *ConversationInfo {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Details ")
	tv.SetTitleColor(theme.TitleColor)
	return &ConversationInfo{TextView: tv, theme: theme, now: time.Now}
}

// Name implements ui.Component.
func (ci *ConversationInfo) Name() string { return "Details" }

// FocusTarget implements ui.Component.
func (ci *ConversationInfo) FocusTarget() tview.Primitive { return ci.TextView }

// Update renders sum and snap. sum may be zero for partners missing from the
// sidebar.
func (ci *ConversationInfo) Update(sum api.Summary, snap api.Snapshot) {
	ci.Clear()
	fg, val := ui.Tag(ci.theme.FgColor), ui.Tag(ci.theme.CounterColor)

	pending, recalled := 0, 0
	for _, m := range snap.Messages {
		if m.Pending {
			pending++
		}
		if m.Recalled {
			recalled++
		}
	}
	lastAt := formatTimestamp(sum.LastAt, ci.now())
	if lastAt == "" {
		lastAt = "-"
	}
	fields := []struct{ label, value string }{
		{"Name", sum.Nickname},
		{"User ID", fmt.Sprint(snap.OtherID)},
		{"Unread", fmt.Sprint(sum.UnreadCount)},
		{"Last active", lastAt},
		{"Last message", sum.LastMessage},
		{"Loaded", fmt.Sprint(len(snap.Messages))},
		{"Older pages", fmt.Sprint(snap.HasMore)},
		{"Pending", fmt.Sprint(pending)},
		{"Recalled", fmt.Sprint(recalled)},
		{"Push", strings.ToLower(snap.Push)},
		{"Viewing", fmt.Sprint(snap.Viewing)},
	}
	var b strings.Builder
	b.WriteString("\n")
	for _, f := range fields {
		fmt.Fprintf(&b, " [%s::b]%-13s[-:-:-] [%s]%s[-]\n", fg, f.label+":", val, safe(f.value))
	}
	_, _ = fmt.Fprint(ci, b.String())

	title := sum.Nickname
	if title == "" {
		title = fmt.Sprint(snap.OtherID)
	}
	ci.SetTitle(fmt.Sprintf(" %s details ", tview.Escape(title)))
}
