package views

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"github.com/matheus3301/pmsync/internal/tui/ui"
)

// HelpView is the key and command reference.
type HelpView struct {
	*tview.TextView
}

// NewHelpView creates the help page.
func NewHelpView(theme *ui.Theme) *HelpView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	tv.SetBorder(true)
	tv.SetBorderColor(theme.BorderColor)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetTextColor(theme.FgColor)
	tv.SetTitle(" Help ")
	tv.SetTitleColor(theme.TitleColor)

	hv := &HelpView{TextView: tv}
	_, _ = fmt.Fprint(hv, helpText(ui.Tag(theme.MenuKeyColor)))
	return hv
}

// Name implements ui.Component.
func (hv *HelpView) Name() string { return "Help" }

// FocusTarget implements ui.Component.
func (hv *HelpView) FocusTarget() tview.Primitive { return hv.TextView }

var helpSections = []struct {
	title string
	rows  [][2]string
}{
	{"Global", [][2]string{
		{":", "Command prompt"},
		{"?", "This help"},
		{"Ctrl-R", "Rebuild conversation list"},
		{"Esc", "Back"},
		{"q", "Quit"},
	}},
	{"Conversations", [][2]string{
		{"Enter", "Open conversation"},
		{"1-9", "Open the Nth conversation"},
		{"/", "Filter"},
	}},
	{"Thread", [][2]string{
		{"i", "Focus composer (Enter sends)"},
		{"o", "Load older messages (also at the top)"},
		{"r", "Recall selected message"},
		{"x", "Delete selected message"},
		{"e", "Re-edit a recalled message"},
		{"m", "Mark read"},
		{"d", "Details"},
	}},
	{"Commands", [][2]string{
		{":open <id|name>", "Open a conversation"},
		{":search <text>", "Search cached messages"},
		{":media image|video <url> [caption]", "Send media by URL"},
		{":reconcile", "Rebuild conversation list"},
		{":read", "Mark the open conversation read"},
		{":clear", "Drop the open conversation's cache"},
		{":help / :quit", ""},
	}},
}

func helpText(kc string) string {
	var b strings.Builder
	for _, s := range helpSections {
		fmt.Fprintf(&b, "\n  [::b]%s[-:-:-]\n\n", s.title)
		for _, r := range s.rows {
			fmt.Fprintf(&b, "  [%s]%-36s[-:-:-] %s\n", kc, tview.Escape(r[0]), r[1])
		}
	}
	return b.String()
}
