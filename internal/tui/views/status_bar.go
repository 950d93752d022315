package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"

	"github.com/matheus3301/pmsync/internal/api"
	"github.com/matheus3301/pmsync/internal/tui/model"
	"github.com/matheus3301/pmsync/internal/tui/ui"
)

// StatusBar is the bottom line: profile, push state, unread badge and the
// current flash message.
type StatusBar struct {
	*tview.TextView
	theme  *ui.Theme
	status api.Status
	flash  *model.FlashMessage
	now    func() time.Time
}

// NewStatusBar creates the status bar.
func NewStatusBar(theme *ui.Theme) *StatusBar {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)
	return &StatusBar{TextView: tv, theme: theme, now: time.Now}
}

// SetStatus updates the daemon status shown.
func (sb *StatusBar) SetStatus(st api.Status) {
	sb.status = st
	sb.render()
}

// SetFlash shows msg, or clears the flash area when msg is nil.
func (sb *StatusBar) SetFlash(msg *model.FlashMessage) {
	sb.flash = msg
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()
	_, _ = fmt.Fprint(sb, sb.line())
}

func (sb *StatusBar) line() string {
	st := sb.status
	parts := []string{fmt.Sprintf(" [::b]%s[-:-:-]", tview.Escape(st.Profile))}
	parts = append(parts, "push "+sb.pushTag(st.GlobalPush))
	if st.OpenOtherID != 0 {
		parts = append(parts, fmt.Sprintf("thread %d %s", st.OpenOtherID, sb.pushTag(st.ConversationPush)))
	}
	if st.Unread > 0 {
		parts = append(parts, fmt.Sprintf("[%s::b]%d unread[-:-:-]", ui.Tag(sb.theme.UnreadColor), st.Unread))
	}
	if !st.CacheAvailable && st.Profile != "" {
		parts = append(parts, fmt.Sprintf("[%s]no cache[-]", ui.Tag(sb.theme.FlashWarnColor)))
	}
	parts = append(parts, sb.now().Format("15:04"))

	if sb.flash != nil {
		color := sb.theme.FlashInfoColor
		switch sb.flash.Level {
		case model.FlashWarn:
			color = sb.theme.FlashWarnColor
		case model.FlashErr:
			color = sb.theme.FlashErrColor
		}
		parts = append(parts, fmt.Sprintf("[%s]%s[-]", ui.Tag(color), tview.Escape(sb.flash.Text)))
	}
	return strings.Join(parts, " | ")
}

func (sb *StatusBar) pushTag(state string) string {
	switch state {
	case "LIVE":
		return fmt.Sprintf("[%s]live[-]", ui.Tag(sb.theme.LiveColor))
	case "POLLING":
		return fmt.Sprintf("[%s]polling[-]", ui.Tag(sb.theme.PollingColor))
	case "":
		return "-"
	}
	return strings.ToLower(state)
}
