package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"github.com/matheus3301/pmsync/internal/api"
	"github.com/matheus3301/pmsync/internal/tui/keys"
)

// Logo is the wordmark in the header's right corner.
type Logo struct {
	*tview.TextView
}

// NewLogo creates the logo.
func NewLogo(theme *Theme) *Logo {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(1, 0, 1, 0)
	title, fg := Tag(theme.TitleColor), Tag(theme.FgColor)
	_, _ = fmt.Fprintf(tv,
		"[%s::b]┏━┓┏┳┓┏━┓╻ ╻┏┓╻┏━╸[-:-:-]\n"+
			"[%s::b]┣━┛┃┃┃┗━┓┗┳┛┃┗┫┃  [-:-:-]\n"+
			"[%s::b]╹  ╹ ╹┗━┛ ╹ ╹ ╹┗━╸[-:-:-]\n"+
			"[%s]private messages[-:-:-]",
		title, title, title, fg)
	return &Logo{TextView: tv}
}

// ProfileInfo shows the daemon status in the header.
type ProfileInfo struct {
	*tview.TextView
	theme *Theme
}

// NewProfileInfo creates the status panel.
func NewProfileInfo(theme *Theme) *ProfileInfo {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)
	return &ProfileInfo{TextView: tv, theme: theme}
}

// Update renders st.
func (pi *ProfileInfo) Update(st api.Status) {
	pi.Clear()
	fg, val := Tag(pi.theme.FgColor), Tag(pi.theme.CounterColor)
	row := func(label, value string) string {
		return fmt.Sprintf("[%s::b]%-8s[-:-:-] [%s]%s[-]\n", fg, label+":", val, tview.Escape(value))
	}

	cache := "off"
	if st.CacheAvailable {
		cache = fmt.Sprintf("%d msgs", st.CachedMessages)
	}
	var b strings.Builder
	b.WriteString(row("Profile", st.Profile))
	b.WriteString(row("User", fmt.Sprint(st.OwnerID)))
	b.WriteString(row("Global", pi.pushLabel(st.GlobalPush)))
	b.WriteString(row("Thread", pi.pushLabel(st.ConversationPush)))
	b.WriteString(row("Unread", fmt.Sprint(st.Unread)))
	b.WriteString(row("Cache", cache))
	_, _ = fmt.Fprint(pi, strings.TrimSuffix(b.String(), "\n"))
}

func (pi *ProfileInfo) pushLabel(state string) string {
	if state == "" {
		return "-"
	}
	return strings.ToLower(state)
}

// Menu lists the key hints of the current page.
type Menu struct {
	*tview.TextView
	theme *Theme
}

// NewMenu creates the hint list.
func NewMenu(theme *Theme) *Menu {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 2, 0)
	return &Menu{TextView: tv, theme: theme}
}

// Update renders hints in two columns.
func (m *Menu) Update(hints []keys.Hint) {
	m.Clear()
	kc := Tag(m.theme.MenuKeyColor)
	cell := func(h keys.Hint) string {
		return fmt.Sprintf("[%s::b]<%s>[-:-:-] %-12s", kc, tview.Escape(h.Key), h.Description)
	}
	half := (len(hints) + 1) / 2
	for i := 0; i < half; i++ {
		line := cell(hints[i])
		if j := i + half; j < len(hints) {
			line += " " + cell(hints[j])
		}
		_, _ = fmt.Fprintln(m, line)
	}
}
