package views

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/pmsync/internal/api"
	"github.com/matheus3301/pmsync/internal/history"
	"github.com/matheus3301/pmsync/internal/tui/ui"
)

// Thread shows the open conversation, one message per row, above the
// composer. It is the history.Viewport older pages are anchored against.
type Thread struct {
	*tview.Flex
	theme    *ui.Theme
	messages *tview.Table
	composer *tview.InputField

	otherID  int64
	name     string
	rows     []api.Message
	hasMore  bool
	now      func() time.Time
	onSend   func(text string)
	onTop    func()
	updating bool
}

var _ history.Viewport = (*Thread)(nil)

// NewThread creates the thread view.
func NewThread(theme *ui.Theme) *Thread {
	messages := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTitleColor(theme.TitleColor)
	messages.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetLabelColor(theme.MenuKeyColor)
	composer.SetTitle(" Compose (i to focus, Esc to leave) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(composer, 3, 0, false)

	t := &Thread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		composer: composer,
		now:      time.Now,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter || t.onSend == nil {
			return
		}
		if text := composer.GetText(); text != "" {
			t.onSend(text)
			composer.SetText("")
		}
	})
	messages.SetSelectionChangedFunc(func(row, _ int) {
		if t.updating || t.onTop == nil || !t.hasMore {
			return
		}
		if history.AtTop(row) {
			t.onTop()
		}
	})
	t.setTitle()
	return t
}

// Name implements ui.Component.
func (t *Thread) Name() string {
	if t.name != "" {
		return t.name
	}
	return "Thread"
}

// FocusTarget implements ui.Component.
func (t *Thread) FocusTarget() tview.Primitive { return t.messages }

// SetOnSend sets the callback for composer submissions.
func (t *Thread) SetOnSend(fn func(text string)) { t.onSend = fn }

// SetOnReachTop sets the callback fired when the selection reaches the
// oldest loaded message while older ones exist.
func (t *Thread) SetOnReachTop(fn func()) { t.onTop = fn }

// SetConversation resets the view for otherID.
func (t *Thread) SetConversation(otherID int64, name string) {
	if name == "" {
		name = fmt.Sprint(otherID)
	}
	t.otherID, t.name = otherID, name
	t.rows = nil
	t.hasMore = false
	t.messages.Clear()
	t.setTitle()
}

// OtherID returns the conversation shown.
func (t *Thread) OtherID() int64 { return t.otherID }

// Update renders snap. Snapshots of another conversation are ignored. The
// view follows new messages when the selection was on the newest one.
func (t *Thread) Update(snap api.Snapshot, ownerID int64) {
	if snap.OtherID != t.otherID {
		return
	}
	t.updating = true
	defer func() { t.updating = false }()

	selected, _ := t.messages.GetSelection()
	follow := len(t.rows) == 0 || selected >= len(t.rows)-1
	var selectedKey string
	if !follow && selected >= 0 && selected < len(t.rows) {
		selectedKey = rowKey(t.rows[selected])
	}

	t.rows = snap.Messages
	t.hasMore = snap.HasMore
	t.messages.Clear()
	now := t.now()
	for i, m := range t.rows {
		t.setRow(i, m, ownerID, now)
	}
	t.setTitle()

	switch {
	case len(t.rows) == 0:
	case follow:
		t.messages.Select(len(t.rows)-1, 0)
		t.messages.ScrollToEnd()
	default:
		for i, m := range t.rows {
			if rowKey(m) == selectedKey {
				t.messages.Select(i, 0)
				break
			}
		}
	}
}

func rowKey(m api.Message) string {
	if m.ID != 0 {
		return fmt.Sprint(m.ID)
	}
	return m.ClientID
}

func (t *Thread) setRow(row int, m api.Message, ownerID int64, now time.Time) {
	sender, color := t.name, t.theme.PeerColor
	if m.SenderID == ownerID {
		sender, color = "you", t.theme.SelfColor
	}
	bodyColor := t.theme.FgColor
	switch {
	case m.Recalled:
		bodyColor = t.theme.RecalledColor
	case m.Pending:
		bodyColor = t.theme.PendingColor
	}
	t.messages.SetCell(row, 0, tview.NewTableCell(formatTimestamp(m.CreatedAt, now)).SetTextColor(t.theme.CounterColor))
	t.messages.SetCell(row, 1, tview.NewTableCell(" "+safe(sender)).SetMaxWidth(16).SetTextColor(color).SetAttributes(tcell.AttrBold))
	t.messages.SetCell(row, 2, tview.NewTableCell(" "+safe(messageBody(m))).SetExpansion(1).SetTextColor(bodyColor))
	t.messages.SetCell(row, 3, tview.NewTableCell(messageFlags(m)).SetTextColor(t.theme.PendingColor))
}

func (t *Thread) setTitle() {
	more := ""
	if t.hasMore {
		more = " ↑ more"
	}
	t.messages.SetTitle(fmt.Sprintf(" %s (%d)%s ", tview.Escape(t.Name()), len(t.rows), more))
}

// SelectedMessage returns the message under the cursor.
func (t *Thread) SelectedMessage() (api.Message, bool) {
	row, _ := t.messages.GetSelection()
	if row < 0 || row >= len(t.rows) {
		return api.Message{}, false
	}
	return t.rows[row], true
}

// ContentExtent implements history.Viewport in rows.
func (t *Thread) ContentExtent() int { return t.messages.GetRowCount() }

// ScrollOffset implements history.Viewport.
func (t *Thread) ScrollOffset() int {
	row, _ := t.messages.GetOffset()
	return row
}

// SetScrollOffset implements history.Viewport. Update already keeps the
// selection on the same message, so only the offset moves.
func (t *Thread) SetScrollOffset(offset int) {
	t.messages.SetOffset(offset, 0)
}

// Composer returns the input field.
func (t *Thread) Composer() *tview.InputField { return t.composer }

// Messages returns the message table.
func (t *Thread) Messages() *tview.Table { return t.messages }

// SetDraft replaces the composer text.
func (t *Thread) SetDraft(text string) { t.composer.SetText(text) }
