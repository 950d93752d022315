package views

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/matheus3301/pmsync/internal/api"
	"github.com/matheus3301/pmsync/internal/tui/ui"
)

// Sidebar lists conversation summaries, newest activity first.
type Sidebar struct {
	*tview.Table
	theme   *ui.Theme
	all     []api.Summary
	visible []api.Summary
	filter  string
	openID  int64
	now     func() time.Time
}

// NewSidebar creates the conversation list.
func NewSidebar(theme *ui.Theme) *Sidebar {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true)
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetSelectedStyle(tcell.StyleDefault.
		Foreground(theme.TableCursorFg).
		Background(theme.TableCursorBg))
	table.SetTitleColor(theme.TitleColor)

	s := &Sidebar{Table: table, theme: theme, now: time.Now}
	s.render()
	return s
}

// Name implements ui.Component.
func (s *Sidebar) Name() string { return "Conversations" }

// FocusTarget implements ui.Component.
func (s *Sidebar) FocusTarget() tview.Primitive { return s.Table }

// Update replaces the summaries, keeping the selected conversation selected.
func (s *Sidebar) Update(list []api.Summary) {
	selected := s.SelectedOther()
	s.all = list
	s.render()
	s.selectOther(selected)
}

// SetOpen marks otherID as the open conversation.
func (s *Sidebar) SetOpen(otherID int64) {
	s.openID = otherID
	s.render()
}

// SetFilter keeps only conversations whose name, id or last message contain
// filter, case-insensitively. An empty filter shows all.
func (s *Sidebar) SetFilter(filter string) {
	s.filter = strings.TrimSpace(filter)
	s.render()
	s.Select(1, 0)
}

// Filter returns the active filter.
func (s *Sidebar) Filter() string { return s.filter }

func (s *Sidebar) matches(sum api.Summary) bool {
	if s.filter == "" {
		return true
	}
	f := strings.ToLower(s.filter)
	return strings.Contains(strings.ToLower(sum.Nickname), f) ||
		strings.Contains(strings.ToLower(sum.LastMessage), f) ||
		strings.Contains(strconv.FormatInt(sum.OtherID, 10), f)
}

func (s *Sidebar) render() {
	s.Clear()
	headers := []struct {
		text string
		exp  int
	}{
		{" #", 0},
		{" NAME", 1},
		{" LAST MESSAGE", 3},
		{" TIME", 0},
	}
	for col, h := range headers {
		s.SetCell(0, col, tview.NewTableCell(h.text).
			SetSelectable(false).
			SetTextColor(s.theme.TableHeaderFg).
			SetAttributes(tcell.AttrBold).
			SetExpansion(h.exp))
	}

	s.visible = s.visible[:0]
	now := s.now()
	for _, sum := range s.all {
		if !s.matches(sum) {
			continue
		}
		s.visible = append(s.visible, sum)
		row := len(s.visible)

		name := sum.Nickname
		if name == "" {
			name = strconv.FormatInt(sum.OtherID, 10)
		}
		color := s.theme.FgColor
		if sum.UnreadCount > 0 {
			name = fmt.Sprintf("(%d) %s", sum.UnreadCount, name)
			color = s.theme.UnreadColor
		}
		marker := " "
		if sum.OtherID == s.openID {
			marker = "▸"
		}

		s.SetCell(row, 0, tview.NewTableCell(fmt.Sprintf("%s%d", marker, row)).SetTextColor(s.theme.CounterColor))
		s.SetCell(row, 1, tview.NewTableCell(" "+safe(name)).SetExpansion(1).SetMaxWidth(24).SetTextColor(color))
		s.SetCell(row, 2, tview.NewTableCell(" "+safe(sum.LastMessage)).SetExpansion(3).SetTextColor(s.theme.FgColor))
		s.SetCell(row, 3, tview.NewTableCell(formatTimestamp(sum.LastAt, now)).SetAlign(tview.AlignRight).SetTextColor(s.theme.FgColor))
	}

	if s.filter != "" {
		s.SetTitle(fmt.Sprintf(" Conversations (%d/%d) /%s ", len(s.visible), len(s.all), tview.Escape(s.filter)))
	} else {
		s.SetTitle(fmt.Sprintf(" Conversations (%d) ", len(s.all)))
	}
}

// SelectedOther returns the partner id of the selected row, or 0.
func (s *Sidebar) SelectedOther() int64 {
	row, _ := s.GetSelection()
	return s.OtherAt(row)
}

// OtherAt returns the partner id of the nth visible row (1-based), or 0.
func (s *Sidebar) OtherAt(n int) int64 {
	if n < 1 || n > len(s.visible) {
		return 0
	}
	return s.visible[n-1].OtherID
}

// Lookup finds a conversation by id or by case-insensitive nickname prefix.
func (s *Sidebar) Lookup(query string) (int64, bool) {
	query = strings.TrimSpace(query)
	if id, err := strconv.ParseInt(query, 10, 64); err == nil && id > 0 {
		return id, true
	}
	q := strings.ToLower(query)
	for _, sum := range s.all {
		if q != "" && strings.HasPrefix(strings.ToLower(sum.Nickname), q) {
			return sum.OtherID, true
		}
	}
	return 0, false
}

// Summary returns the sidebar entry of otherID.
func (s *Sidebar) Summary(otherID int64) (api.Summary, bool) {
	for _, sum := range s.all {
		if sum.OtherID == otherID {
			return sum, true
		}
	}
	return api.Summary{}, false
}

func (s *Sidebar) selectOther(otherID int64) {
	if otherID == 0 {
		return
	}
	for i, sum := range s.visible {
		if sum.OtherID == otherID {
			s.Select(i+1, 0)
			return
		}
	}
}
